package heartbeat

import (
	"testing"
	"time"

	"github.com/exchangecollector/core/pkg/clock"
	"github.com/stretchr/testify/require"
)

func TestOnPingReceivedEchoesPayloadByteForByte(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	c := New(DefaultConfig(), fc)

	payload := []byte("ping-token-1")
	echoed := c.OnPingReceived(payload)

	require.Equal(t, payload, echoed)
	// mutate original to prove it's a defensive copy
	payload[0] = 'X'
	require.NotEqual(t, payload, echoed)
}

func TestRecordPongDispatchedScoresFastResponseNearOne(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	cfg := DefaultConfig()
	c := New(cfg, fc)

	c.OnPingReceived([]byte("p"))
	c.RecordPongDispatched(10 * time.Millisecond)

	require.Greater(t, c.Score(), 0.9)
}

func TestRecordPongDispatchedPenalizesSlowResponse(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	cfg := DefaultConfig()
	c := New(cfg, fc)

	c.OnPingReceived([]byte("p"))
	c.RecordPongDispatched(cfg.PongResponseTimeout) // at timeout -> raw score 0

	require.Less(t, c.Score(), 0.5)
}

func TestTimedOutAfterThreshold(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	cfg := DefaultConfig()
	c := New(cfg, fc)

	c.OnPingReceived([]byte("p"))
	fc.Advance(cfg.PingTimeoutThreshold + time.Second)

	require.True(t, c.TimedOut(fc.Now()))
}

func TestNotTimedOutBeforeThreshold(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	cfg := DefaultConfig()
	c := New(cfg, fc)

	c.OnPingReceived([]byte("p"))
	fc.Advance(cfg.PingTimeoutThreshold - time.Second)

	require.False(t, c.TimedOut(fc.Now()))
}

func TestDriftPenaltyAppliedWhenIntervalsDrift(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	cfg := DefaultConfig()
	cfg.ExpectedInterval = 20 * time.Second
	c := New(cfg, fc)

	// simulate pings arriving much slower than expected, drifting >20%
	for i := 0; i < 5; i++ {
		c.OnPingReceived([]byte("p"))
		fc.Advance(40 * time.Second)
	}
	c.RecordPongDispatched(10 * time.Millisecond)

	withoutDrift := 1.0 - minFloat(1.0, (10*time.Millisecond).Seconds()/cfg.PongResponseTimeout.Seconds())
	require.Less(t, c.Score(), withoutDrift)
}
