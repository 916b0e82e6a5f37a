package reconnect

import (
	"math"
	"testing"
	"time"

	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/stretchr/testify/require"
)

// fixedJitter returns a jitter function that always yields v in [0,1).
func fixedJitter(v float64) func() float64 {
	return func() float64 { return v }
}

func TestDecideReconnectsOnConnectionErrors(t *testing.T) {
	for _, kind := range []errkind.Kind{errkind.Connection, errkind.Network, errkind.Timeout, errkind.HeartbeatLost, errkind.Protocol} {
		s := New(DefaultConfig(), fixedJitter(0.5))
		d := s.Decide(kind)
		require.True(t, d.ShouldReconnect, "kind %v should reconnect", kind)
		require.False(t, d.Escalate)
	}
}

func TestDecideDropsDataParsingWithoutReconnect(t *testing.T) {
	s := New(DefaultConfig(), fixedJitter(0.5))
	d := s.Decide(errkind.DataParsing)
	require.False(t, d.ShouldReconnect)
	require.False(t, d.Escalate)
}

func TestDecideEscalatesAuthAndConfig(t *testing.T) {
	for _, kind := range []errkind.Kind{errkind.Auth, errkind.Config} {
		s := New(DefaultConfig(), fixedJitter(0.5))
		d := s.Decide(kind)
		require.False(t, d.ShouldReconnect)
		require.True(t, d.Escalate)
	}
}

func TestDecideEscalatesAfterMaxRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	s := New(cfg, fixedJitter(0.5))

	for i := 0; i < 3; i++ {
		d := s.Decide(errkind.Network)
		require.True(t, d.ShouldReconnect)
	}
	d := s.Decide(errkind.Network)
	require.True(t, d.Escalate)
}

func TestNotifyStableActiveResetsAttemptCounter(t *testing.T) {
	s := New(DefaultConfig(), fixedJitter(0.5))
	s.Decide(errkind.Network)
	s.Decide(errkind.Network)
	require.Equal(t, 2, s.Attempts())

	s.NotifyStableActive()
	require.Equal(t, 0, s.Attempts())
}

// Given attempts 1..5 with initialDelay=1s, maxDelay=60s, jitter=0.2,
// each delay must lie in [0.8*2^(k-1), 1.2*2^(k-1)] seconds, capped at 60s.
func TestBackoffStaysWithinJitterBounds(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 60 * time.Second, Jitter: 0.2, MaxRetries: 100}

	for _, jitterSample := range []float64{0, 0.25, 0.5, 0.75, 0.999} {
		s := New(cfg, fixedJitter(jitterSample))
		for attempt := 1; attempt <= 5; attempt++ {
			d := s.Decide(errkind.Network)
			require.True(t, d.ShouldReconnect)

			base := math.Pow(2, float64(attempt-1))
			lo := 0.8 * base
			hi := 1.2 * base
			capped := math.Min(hi, 60)

			seconds := d.Delay.Seconds()
			require.GreaterOrEqual(t, seconds, lo-1e-9)
			require.LessOrEqual(t, seconds, capped+1e-9)
		}
	}
}
