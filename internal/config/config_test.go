package config

import (
	"testing"
	"time"
)

func TestRetryBackoffSchedule(t *testing.T) {
	cases := []struct {
		name string
		raw  []string
		want []time.Duration
	}{
		{"defaults when empty", nil, []time.Duration{30 * time.Minute, 2 * time.Hour, 24 * time.Hour}},
		{"configured", []string{"10m", "1h"}, []time.Duration{10 * time.Minute, time.Hour}},
		{"malformed falls back", []string{"10m", "soon"}, []time.Duration{30 * time.Minute, 2 * time.Hour, 24 * time.Hour}},
		{"non-positive falls back", []string{"0s"}, []time.Duration{30 * time.Minute, 2 * time.Hour, 24 * time.Hour}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DialerConfig{RetryBackoff: tc.raw}
			got := cfg.RetryBackoffSchedule()
			if len(got) != len(tc.want) {
				t.Fatalf("schedule = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("schedule[%d] = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestApplyDialerDefaults(t *testing.T) {
	var d DialerConfig
	ApplyDialerDefaults(&d)

	if d.MaxConcurrentCalls != 10 {
		t.Errorf("MaxConcurrentCalls = %d, want 10", d.MaxConcurrentCalls)
	}
	if d.MaxCallAttempts != 3 {
		t.Errorf("MaxCallAttempts = %d, want 3", d.MaxCallAttempts)
	}
	if d.MaxClarificationRounds != 2 {
		t.Errorf("MaxClarificationRounds = %d, want 2", d.MaxClarificationRounds)
	}
	if d.MaxSilenceRetries != 1 {
		t.Errorf("MaxSilenceRetries = %d, want 1", d.MaxSilenceRetries)
	}
	if d.ListenTimeout != 15*time.Second {
		t.Errorf("ListenTimeout = %v, want 15s", d.ListenTimeout)
	}

	// Explicit values survive.
	custom := DialerConfig{MaxConcurrentCalls: 4, MaxClarificationRounds: 3}
	ApplyDialerDefaults(&custom)
	if custom.MaxConcurrentCalls != 4 || custom.MaxClarificationRounds != 3 {
		t.Errorf("explicit values overwritten: %+v", custom)
	}
}
