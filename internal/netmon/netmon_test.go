package netmon

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testMonitor(t *testing.T, config *Config) *Monitor {
	t.Helper()
	if config == nil {
		config = DefaultConfig()
	}
	config.Logger = log.New(io.Discard, "", 0)
	return New(config)
}

func wifiLink() Link {
	reachable := true
	return Link{Connected: true, InternetReachable: &reachable, Transport: TransportWifi}
}

func offlineLink() Link {
	return Link{Connected: false, Transport: TransportNone}
}

// TestInitialState tests that a fresh monitor reports offline
func TestInitialState(t *testing.T) {
	m := testMonitor(t, nil)

	state := m.State()
	if state.Connected {
		t.Error("fresh monitor should be disconnected")
	}
	if state.Quality != QualityOffline {
		t.Errorf("Quality = %q, want offline", state.Quality)
	}
}

// TestSetLink_QualityOfflineIffDisconnected tests the offline invariant
func TestSetLink_QualityOfflineIffDisconnected(t *testing.T) {
	m := testMonitor(t, nil)

	m.SetLink(wifiLink())
	if state := m.State(); state.Quality == QualityOffline {
		t.Error("connected link must not be offline")
	}

	m.SetLink(offlineLink())
	if state := m.State(); state.Quality != QualityOffline {
		t.Errorf("Quality = %q after disconnect, want offline", state.Quality)
	}
}

// TestClassify_StableWifiIsExcellent tests the stable-link classification
func TestClassify_StableWifiIsExcellent(t *testing.T) {
	m := testMonitor(t, nil)

	m.SetLink(wifiLink())
	if state := m.State(); state.Quality != QualityExcellent {
		t.Errorf("Quality = %q for stable wifi, want excellent", state.Quality)
	}

	// Cellular never reaches excellent with the defaults.
	reachable := true
	m.SetLink(Link{Connected: true, InternetReachable: &reachable, Transport: TransportCellular})
	if state := m.State(); state.Quality != QualityGood {
		t.Errorf("Quality = %q for stable cellular, want good", state.Quality)
	}
}

// TestClassify_FrequentDisconnectsArePoor tests the disconnect window
func TestClassify_FrequentDisconnectsArePoor(t *testing.T) {
	m := testMonitor(t, nil)

	now := time.UnixMilli(1_700_000_000_000)
	m.SetClock(func() time.Time { return now })

	// Flap three times within the window.
	for i := 0; i < 3; i++ {
		m.SetLink(wifiLink())
		now = now.Add(10 * time.Second)
		m.SetLink(offlineLink())
		now = now.Add(10 * time.Second)
	}
	m.SetLink(wifiLink())

	if state := m.State(); state.Quality != QualityPoor {
		t.Errorf("Quality = %q after 3 disconnects, want poor", state.Quality)
	}

	// Once the window slides past the flapping, quality recovers.
	now = now.Add(10 * time.Minute)
	m.SetLink(offlineLink())

	now = now.Add(6 * time.Minute)
	m.SetLink(wifiLink())
	if state := m.State(); state.Quality != QualityExcellent {
		t.Errorf("Quality = %q after window passed, want excellent", state.Quality)
	}
}

// TestClassify_UnreachableInternetIsPoor tests the reachability override
func TestClassify_UnreachableInternetIsPoor(t *testing.T) {
	m := testMonitor(t, nil)

	unreachable := false
	m.SetLink(Link{Connected: true, InternetReachable: &unreachable, Transport: TransportWifi})
	if state := m.State(); state.Quality != QualityPoor {
		t.Errorf("Quality = %q with unreachable internet, want poor", state.Quality)
	}
}

// TestSubscribe_ImmediateAndEdgeTriggered tests subscription semantics
func TestSubscribe_ImmediateAndEdgeTriggered(t *testing.T) {
	m := testMonitor(t, nil)

	var calls []NetworkState
	cancel := m.Subscribe(func(state NetworkState) {
		calls = append(calls, state)
	})
	defer cancel()

	// Immediate fire with current state.
	if len(calls) != 1 || calls[0].Quality != QualityOffline {
		t.Fatalf("Subscribe should fire immediately with current state, got %v", calls)
	}

	m.SetLink(wifiLink())
	if len(calls) != 2 {
		t.Fatalf("transition should fire callback, got %d calls", len(calls))
	}

	// Same observation again: no transition, no callback.
	m.SetLink(wifiLink())
	if len(calls) != 2 {
		t.Errorf("repeated identical link fired callback (%d calls); must be edge-triggered", len(calls))
	}

	m.SetLink(offlineLink())
	if len(calls) != 3 || calls[2].Quality != QualityOffline {
		t.Errorf("disconnect should fire callback, got %v", calls)
	}
}

// TestSubscribe_Cancel tests unsubscription
func TestSubscribe_Cancel(t *testing.T) {
	m := testMonitor(t, nil)

	calls := 0
	cancel := m.Subscribe(func(NetworkState) { calls++ })
	cancel()

	m.SetLink(wifiLink())
	if calls != 1 {
		t.Errorf("cancelled subscriber got %d calls, want 1 (the immediate fire)", calls)
	}
}

// TestOptimalForSync tests quality and wifi-only gating
func TestOptimalForSync(t *testing.T) {
	m := testMonitor(t, nil)

	if m.OptimalForSync() {
		t.Error("offline monitor should not be optimal for sync")
	}

	m.SetLink(wifiLink())
	if !m.OptimalForSync() {
		t.Error("excellent wifi should be optimal for sync")
	}

	reachable := true
	cellular := Link{Connected: true, InternetReachable: &reachable, Transport: TransportCellular}

	m.SetLink(cellular)
	if !m.OptimalForSync() {
		t.Error("good cellular should be optimal without wifi-only")
	}

	m.SetWifiOnly(true)
	if m.OptimalForSync() {
		t.Error("cellular must not be optimal under wifi-only")
	}

	m.SetLink(wifiLink())
	if !m.OptimalForSync() {
		t.Error("wifi should be optimal under wifi-only")
	}
}

// TestLoadPolicy tests TOML policy parsing and defaults
func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quality.toml")
	content := `
disconnect_window = "2m"
poor_threshold = 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() failed: %v", err)
	}
	if policy.DisconnectWindow.Duration != 2*time.Minute {
		t.Errorf("DisconnectWindow = %v, want 2m", policy.DisconnectWindow.Duration)
	}
	if policy.PoorThreshold != 5 {
		t.Errorf("PoorThreshold = %d, want 5", policy.PoorThreshold)
	}
	// Unset fields keep defaults.
	if len(policy.ExcellentTransports) == 0 {
		t.Error("ExcellentTransports should keep the default")
	}
}

// TestLoadPolicy_Invalid tests rejection of bad thresholds
func TestLoadPolicy_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quality.toml")
	if err := os.WriteFile(path, []byte(`poor_threshold = 0`), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	if _, err := LoadPolicy(path); err == nil {
		t.Error("LoadPolicy() should reject poor_threshold = 0")
	}
}
