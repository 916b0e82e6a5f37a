package binance

import (
	"encoding/json"
	"fmt"

	"github.com/exchangecollector/core/internal/subscription"
	"github.com/exchangecollector/core/pkg/errkind"
)

// combinedEnvelope is the outer wrapper Binance's combined-stream
// endpoint puts around every frame: {"stream": "<streamName>", "data": {...}}.
type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// unwrapFrame strips the combined-stream envelope if present, returning
// the stream name (when known) and the inner payload bytes. A raw
// frame with no "stream" envelope is returned as-is with an empty
// stream name, for callers on a single-stream (non-combined) connection.
func unwrapFrame(raw []byte) (subscription.StreamName, json.RawMessage, error) {
	const op = "binance.unwrapFrame"

	var env combinedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, errkind.Wrap(errkind.DataParsing, op, fmt.Sprintf("invalid json frame: %s", truncate(raw)), err)
	}
	if env.Stream != "" && env.Data != nil {
		return subscription.StreamName(env.Stream), env.Data, nil
	}
	return "", raw, nil
}

func truncate(b []byte) string {
	const max = 200
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
