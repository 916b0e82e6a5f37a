package wsproxy

import "github.com/exchangecollector/core/internal/marketdata"

// inboundMessage is the only shape a connected client may send.
type inboundMessage struct {
	Action   string `json:"action"` // subscribe | unsubscribe | ping
	Exchange string `json:"exchange,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Type     string `json:"type,omitempty"`
}

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
	actionPing        = "ping"
)

// welcomeMessage is sent once, immediately after a client is accepted.
type welcomeMessage struct {
	Event    string `json:"event"`
	ClientID string `json:"client_id"`
}

// ackMessage confirms a subscribe/unsubscribe request.
type ackMessage struct {
	Event    string `json:"event"`
	Exchange string `json:"exchange,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Type     string `json:"type,omitempty"`
}

// errorMessage reports a malformed or unsupported client request.
type errorMessage struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// pongMessage answers a client-initiated application-level ping.
type pongMessage struct {
	Event string `json:"event"`
}

const wildcard = "*"

// subscriptionKey is one client's interest in a (exchange, symbol,
// type) dimension, where any dimension may be wildcarded.
type subscriptionKey struct {
	Exchange string
	Symbol   string
	Type     string
}

func newSubscriptionKey(exchange, symbol, typ string) subscriptionKey {
	if exchange == "" {
		exchange = wildcard
	}
	if symbol == "" {
		symbol = wildcard
	}
	if typ == "" {
		typ = wildcard
	}
	return subscriptionKey{Exchange: exchange, Symbol: symbol, Type: typ}
}

func (k subscriptionKey) String() string {
	return k.Exchange + "|" + k.Symbol + "|" + k.Type
}

func (k subscriptionKey) matches(m marketdata.MarketData) bool {
	return (k.Exchange == wildcard || k.Exchange == m.Exchange) &&
		(k.Symbol == wildcard || k.Symbol == m.Symbol) &&
		(k.Type == wildcard || k.Type == string(m.Type))
}
