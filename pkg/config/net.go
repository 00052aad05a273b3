package config

import (
	"time"

	"aeroncap/pkg/idle"
)

// NetConfig contains the retry/backoff tuning handed to the handshake and
// stream write paths.
type NetConfig struct {
	DialBackoffInitialMS int `mapstructure:"dial_backoff_initial_ms"`
	DialBackoffMaxMS     int `mapstructure:"dial_backoff_max_ms"`
	DialBackoffJitterMS  int `mapstructure:"dial_backoff_jitter_ms"`
}

// BackoffOptions converts the millisecond tuning knobs into an
// idle.BackoffOptions, approximating the configured cap with enough
// doublings from the initial delay, so a host application's YAML config
// can drive the transport's actual retry idler rather than just describing
// it. Jitter is not modeled by idle.Backoff and is accepted here only so
// existing config files that set it don't fail to decode.
func (n NetConfig) BackoffOptions() idle.BackoffOptions {
	initial := n.DialBackoffInitialMS
	if initial <= 0 {
		initial = 1
	}
	capMS := n.DialBackoffMaxMS
	if capMS <= 0 {
		capMS = initial
	}

	var count uint16
	for delay := initial; delay < capMS && count < 32; count++ {
		delay *= 2
	}

	return idle.BackoffOptions{
		Spin:  3,
		Count: count,
		Delay: time.Duration(initial) * time.Millisecond,
	}
}
