package netmon

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Policy holds the quality classification thresholds. The exact numbers
// are tuning constants, not correctness requirements; they ship with
// defaults and can be overridden from a TOML file.
type Policy struct {
	// DisconnectWindow is the trailing window over which disconnect
	// events count against quality.
	DisconnectWindow duration `toml:"disconnect_window"`

	// PoorThreshold is the disconnect count in the window at or above
	// which a nominally connected link is classified poor.
	PoorThreshold int `toml:"poor_threshold"`

	// ExcellentTransports lists transports eligible for the excellent
	// classification when the link has been stable.
	ExcellentTransports []Transport `toml:"excellent_transports"`
}

// duration wraps time.Duration for TOML decoding of strings like "5m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// DefaultPolicy returns the built-in thresholds.
func DefaultPolicy() *Policy {
	return &Policy{
		DisconnectWindow:    duration{5 * time.Minute},
		PoorThreshold:       3,
		ExcellentTransports: []Transport{TransportWifi, TransportEthernet},
	}
}

// LoadPolicy reads thresholds from a TOML file, filling unset fields with
// defaults.
func LoadPolicy(path string) (*Policy, error) {
	policy := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quality policy: %w", err)
	}
	if err := toml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("failed to parse quality policy: %w", err)
	}

	if policy.DisconnectWindow.Duration <= 0 {
		return nil, fmt.Errorf("disconnect_window must be positive")
	}
	if policy.PoorThreshold <= 0 {
		return nil, fmt.Errorf("poor_threshold must be positive")
	}
	return policy, nil
}

// Classify derives quality from a link observation and the recent
// disconnect count.
func (p *Policy) Classify(link Link, recentDisconnects int) Quality {
	if !link.Connected {
		return QualityOffline
	}

	// A connected link that provably can't reach the internet is as good
	// as flaky.
	if link.InternetReachable != nil && !*link.InternetReachable {
		return QualityPoor
	}

	if recentDisconnects >= p.PoorThreshold {
		return QualityPoor
	}
	if recentDisconnects > 0 {
		return QualityGood
	}

	for _, transport := range p.ExcellentTransports {
		if link.Transport == transport {
			return QualityExcellent
		}
	}
	return QualityGood
}
