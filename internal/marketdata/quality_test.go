package marketdata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScorePerfectFreshMessage(t *testing.T) {
	m := MarketData{EventTimestamp: 1000, ReceivedTimestamp: 1010}
	require.Equal(t, 1.0, Score(m, ScoreInputs{}))
}

func TestScoreMissingFieldsPenalty(t *testing.T) {
	m := MarketData{EventTimestamp: 1000, ReceivedTimestamp: 1010}
	require.InDelta(t, 0.4, Score(m, ScoreInputs{MissingFields: 2}), 1e-9)
}

func TestScoreStalenessPenalty(t *testing.T) {
	fresh := MarketData{EventTimestamp: 1000, ReceivedTimestamp: 2500}
	require.InDelta(t, 0.9, Score(fresh, ScoreInputs{}), 1e-9)

	stale := MarketData{EventTimestamp: 1000, ReceivedTimestamp: 6001}
	require.InDelta(t, 0.8, Score(stale, ScoreInputs{}), 1e-9)
}

func TestScoreFloorsAtZero(t *testing.T) {
	m := MarketData{EventTimestamp: 1000, ReceivedTimestamp: 10000}
	require.Equal(t, 0.0, Score(m, ScoreInputs{MissingFields: 10}))
}
