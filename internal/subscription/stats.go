package subscription

import "strings"

// Stats is the result of GetStats(names).
type Stats struct {
	Total      int
	ByType     map[string]int
	BySymbol   map[string]int
	Duplicates int
}

// GetStats computes getStats(names): totals by the stream
// name's suffix "type" token and by its symbol prefix, plus a count of
// names observed two or more times in the input.
func GetStats(names []StreamName) Stats {
	stats := Stats{ByType: map[string]int{}, BySymbol: map[string]int{}}
	seen := make(map[StreamName]int, len(names))

	for _, n := range names {
		stats.Total++
		seen[n]++

		symbol, typ := splitForStats(n)
		stats.BySymbol[symbol]++
		stats.ByType[typ]++
	}

	for _, count := range seen {
		if count >= 2 {
			stats.Duplicates++
		}
	}

	return stats
}

// splitForStats extracts the symbol and the base type token (ignoring
// depth levels/speed suffixes) from a raw stream name, best-effort —
// used only for aggregate reporting, not for parsing correctness.
func splitForStats(n StreamName) (symbol, typ string) {
	s := string(n)
	parts := strings.Split(s, "@")
	if len(parts) == 0 {
		return s, ""
	}
	symbol = parts[0]
	if len(parts) < 2 {
		return symbol, ""
	}
	suffix := parts[1]
	switch {
	case strings.HasPrefix(suffix, "depth"):
		return symbol, "depth"
	case strings.HasPrefix(suffix, "kline_"):
		return symbol, "kline"
	default:
		return symbol, suffix
	}
}
