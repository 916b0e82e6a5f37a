package marketdata

// ScoreInputs carries the facts the quality score needs
// beyond what's already on the record: which required fields were
// missing from the raw frame before normalization filled defaults.
type ScoreInputs struct {
	MissingFields int // count of required fields the decoder had to default
}

// Score computes quality score:
// 1.0 minus 0.3 per missing required field, minus a staleness penalty
// (0.2 if received-event > 5000ms, 0.1 if 1000-5000ms), floored at 0.
func Score(m MarketData, in ScoreInputs) float64 {
	score := 1.0 - 0.3*float64(in.MissingFields)

	skew := m.ReceivedTimestamp - m.EventTimestamp
	switch {
	case skew > 5_000:
		score -= 0.2
	case skew >= 1_000:
		score -= 0.1
	}

	if score < 0 {
		score = 0
	}
	return score
}
