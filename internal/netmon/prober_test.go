package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestTransportForName walks the interface-name heuristics.
func TestTransportForName(t *testing.T) {
	tests := []struct {
		name string
		want Transport
	}{
		{"wlan0", TransportWifi},
		{"wlp3s0", TransportWifi},
		{"eth0", TransportEthernet},
		{"en0", TransportEthernet},
		{"enp0s31f6", TransportEthernet},
		{"wwan0", TransportCellular},
		{"rmnet_data0", TransportCellular},
		{"tun0", TransportOther},
		{"docker0", TransportOther},
	}
	for _, tt := range tests {
		if got := transportForName(tt.name); got != tt.want {
			t.Errorf("transportForName(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

// TestHTTPProber_Reachability verifies the reachability flag tracks the
// probe endpoint, when any interface is up at all.
func TestHTTPProber_Reachability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	link, err := NewHTTPProber(server.URL).Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if !link.Connected {
		t.Skip("No usable network interface in this environment")
	}
	if link.InternetReachable == nil || !*link.InternetReachable {
		t.Error("Expected probe endpoint to be reachable")
	}

	server.Close()
	link, err = NewHTTPProber(server.URL).Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if link.InternetReachable == nil || *link.InternetReachable {
		t.Error("Expected closed endpoint to be unreachable")
	}
}
