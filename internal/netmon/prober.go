package netmon

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultProbeURL answers 204 with no body, which keeps probes cheap.
const DefaultProbeURL = "http://connectivitycheck.gstatic.com/generate_204"

// HTTPProber observes the link from userspace: network interfaces tell
// us whether and how we are connected, a small HTTP request tells us
// whether the internet is actually reachable behind it.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober against url, or DefaultProbeURL when
// empty.
func NewHTTPProber(url string) *HTTPProber {
	if url == "" {
		url = DefaultProbeURL
	}
	return &HTTPProber{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) (Link, error) {
	transport, up := activeTransport()
	if !up {
		return Link{Connected: false, Transport: TransportNone}, nil
	}

	link := Link{Connected: true, Transport: transport}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return link, err
	}
	resp, err := p.client.Do(req)
	reachable := err == nil
	if resp != nil {
		resp.Body.Close()
	}
	link.InternetReachable = &reachable
	return link, nil
}

// activeTransport scans interfaces for a usable non-loopback link and
// guesses its transport from the interface name.
func activeTransport() (Transport, bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return TransportUnknown, false
	}

	best := TransportNone
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}

		t := transportForName(iface.Name)
		// Prefer the most specific guess seen so far: a recognized
		// transport beats "other", anything beats "none".
		if best == TransportNone || (best == TransportOther && t != TransportOther) {
			best = t
		}
	}
	return best, best != TransportNone
}

func transportForName(name string) Transport {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "wl"), strings.HasPrefix(lower, "wifi"),
		strings.HasPrefix(lower, "ath"):
		return TransportWifi
	case strings.HasPrefix(lower, "eth"), strings.HasPrefix(lower, "en"),
		strings.HasPrefix(lower, "em"):
		return TransportEthernet
	case strings.HasPrefix(lower, "wwan"), strings.HasPrefix(lower, "rmnet"),
		strings.HasPrefix(lower, "pdp"), strings.HasPrefix(lower, "cell"):
		return TransportCellular
	default:
		return TransportOther
	}
}
