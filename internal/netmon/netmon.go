// Package netmon classifies connectivity and notifies subscribers on
// state transitions.
//
// The monitor is push-first: the platform integration (or a test) feeds
// raw Link observations through SetLink, and subscribers hear about the
// resulting NetworkState only when it actually changes (edge-triggered).
// A periodic prober can run as a backstop for platforms without a
// connectivity callback.
//
// Quality is a coarse policy-driven classification used by the sync
// engine to gate and pace passes; see Policy for the thresholds.
package netmon

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// Transport is the link's transport category.
type Transport string

const (
	TransportWifi     Transport = "wifi"
	TransportCellular Transport = "cellular"
	TransportEthernet Transport = "ethernet"
	TransportOther    Transport = "other"
	TransportNone     Transport = "none"
	TransportUnknown  Transport = "unknown"
)

// Quality is the derived link usability classification.
type Quality string

const (
	QualityOffline   Quality = "offline"
	QualityPoor      Quality = "poor"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// Link is a raw connectivity observation from the platform or prober.
type Link struct {
	Connected bool

	// InternetReachable is nil when unknown.
	InternetReachable *bool

	Transport Transport
}

// NetworkState is a classified connectivity snapshot.
// Quality is offline exactly when Connected is false.
type NetworkState struct {
	Connected         bool      `json:"is_connected"`
	InternetReachable *bool     `json:"is_internet_reachable"`
	Transport         Transport `json:"type"`
	Quality           Quality   `json:"quality"`
}

// Prober checks connectivity on demand, as a fallback for platforms that
// don't push link changes.
type Prober interface {
	Probe(ctx context.Context) (Link, error)
}

// Config holds monitor configuration.
type Config struct {
	// Policy provides quality thresholds (default: DefaultPolicy)
	Policy *Policy

	// WifiOnly restricts OptimalForSync to wifi links
	WifiOnly bool

	// Prober, if set, is polled by Start as a fallback
	Prober Prober

	// PollInterval is the fallback probe cadence (default: 30s)
	PollInterval time.Duration

	// Logger for monitor activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Policy:       DefaultPolicy(),
		PollInterval: 30 * time.Second,
		Logger:       log.New(os.Stderr, "[netmon] ", log.LstdFlags),
	}
}

// Monitor tracks connectivity state and fans out transitions.
type Monitor struct {
	mu          sync.Mutex
	state       NetworkState
	disconnects []time.Time
	subscribers map[int]func(NetworkState)
	nextSubID   int

	policy   *Policy
	wifiOnly bool
	prober   Prober
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a monitor. Until the first SetLink or probe, the state is
// disconnected with unknown transport.
func New(config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Policy == nil {
		config.Policy = DefaultPolicy()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}

	return &Monitor{
		state: NetworkState{
			Connected: false,
			Transport: TransportUnknown,
			Quality:   QualityOffline,
		},
		subscribers: make(map[int]func(NetworkState)),
		policy:      config.Policy,
		wifiOnly:    config.WifiOnly,
		prober:      config.Prober,
		interval:    config.PollInterval,
		logger:      config.Logger,
		now:         time.Now,
	}
}

// SetClock overrides the time source. Tests use this to control the
// disconnect window.
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetWifiOnly toggles the wifi-only sync policy at runtime.
func (m *Monitor) SetWifiOnly(wifiOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wifiOnly = wifiOnly
}

// State returns the current classified state.
func (m *Monitor) State() NetworkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetLink feeds a raw connectivity observation into the monitor. This is
// the platform-callback entry point. Subscribers fire only if the
// classified state changed.
func (m *Monitor) SetLink(link Link) {
	m.mu.Lock()

	now := m.now()
	if m.state.Connected && !link.Connected {
		m.disconnects = append(m.disconnects, now)
	}
	m.pruneDisconnectsLocked(now)

	next := NetworkState{
		Connected:         link.Connected,
		InternetReachable: link.InternetReachable,
		Transport:         link.Transport,
		Quality:           m.policy.Classify(link, len(m.disconnects)),
	}
	if !link.Connected {
		next.Transport = TransportNone
	}

	if stateEqual(m.state, next) {
		m.mu.Unlock()
		return
	}

	prev := m.state
	m.state = next
	subs := make([]func(NetworkState), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.logger.Printf("State change: %s/%v -> %s/%v", prev.Quality, prev.Connected, next.Quality, next.Connected)

	// Callbacks run outside the lock so they can call back into the
	// monitor.
	for _, fn := range subs {
		fn(next)
	}
}

// Subscribe registers a transition callback. The callback fires
// immediately with the current state, then on every subsequent change.
// The returned function cancels the subscription.
func (m *Monitor) Subscribe(fn func(NetworkState)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	current := m.state
	m.mu.Unlock()

	fn(current)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// OptimalForSync reports whether the link is good enough to attempt a
// sync pass: quality good or excellent, and wifi transport when the
// wifi-only policy is set.
func (m *Monitor) OptimalForSync() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Quality != QualityGood && m.state.Quality != QualityExcellent {
		return false
	}
	if m.wifiOnly && m.state.Transport != TransportWifi {
		return false
	}
	return true
}

// Start runs the fallback probe loop until the context is cancelled.
// It is a no-op if no Prober was configured.
func (m *Monitor) Start(ctx context.Context) {
	if m.prober == nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.probeLoop(ctx)
}

// Stop cancels the probe loop and waits for it to finish.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// probeLoop periodically re-probes connectivity as a backstop for missed
// platform callbacks.
func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			link, err := m.prober.Probe(ctx)
			if err != nil {
				m.logger.Printf("Probe error: %v", err)
				continue
			}
			m.SetLink(link)
		}
	}
}

// pruneDisconnectsLocked drops disconnect events older than the policy
// window. Caller holds m.mu.
func (m *Monitor) pruneDisconnectsLocked(now time.Time) {
	cutoff := now.Add(-m.policy.DisconnectWindow.Duration)
	kept := m.disconnects[:0]
	for _, event := range m.disconnects {
		if event.After(cutoff) {
			kept = append(kept, event)
		}
	}
	m.disconnects = kept
}

func stateEqual(a, b NetworkState) bool {
	if a.Connected != b.Connected || a.Transport != b.Transport || a.Quality != b.Quality {
		return false
	}
	switch {
	case a.InternetReachable == nil && b.InternetReachable == nil:
		return true
	case a.InternetReachable == nil || b.InternetReachable == nil:
		return false
	default:
		return *a.InternetReachable == *b.InternetReachable
	}
}
