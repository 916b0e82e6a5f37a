package binance

// Raw wire-level event frames. Field names and JSON tags mirror
// Binance's documented WebSocket payload shapes: numeric prices and
// quantities arrive as decimal strings, never as JSON numbers.

type tradeEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
	BuyerMkr  bool   `json:"m"`
}

type tickerEvent struct {
	EventType          string `json:"e"`
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	PriceChangePercent string `json:"P"`
	LastPrice          string `json:"c"`
	OpenPrice          string `json:"o"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
}

type klineData struct {
	OpenTime    int64  `json:"t"`
	CloseTime   int64  `json:"T"`
	Interval    string `json:"i"`
	OpenPrice   string `json:"o"`
	ClosePrice  string `json:"c"`
	HighPrice   string `json:"h"`
	LowPrice    string `json:"l"`
	BaseVolume  string `json:"v"`
	TradeCount  int64  `json:"n"`
	IsClosed    bool   `json:"x"`
	QuoteVolume string `json:"q"`
}

type klineEvent struct {
	EventType string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     klineData `json:"k"`
}

type depthUpdateEvent struct {
	EventType     string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// partialDepthEvent is the shape of a combined-stream partial book
// depth frame (<symbol>@depthN[@speedms]), which carries no "e"/"E"/"s"
// fields — the symbol and type are only known from the stream name.
type partialDepthEvent struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}
