package binance

// ExchangeName is the lowercase exchange identifier carried on every
// MarketData record normalized by this package.
const ExchangeName = "binance"

// Event-type discriminators carried on the "e" field of every raw
// Binance stream frame.
const (
	eventTrade        = "trade"
	eventAggTrade     = "aggTrade"
	eventTicker       = "24hrTicker"
	eventKline        = "kline"
	eventDepthUpdate  = "depthUpdate"
	eventPartialDepth = "depth"
)

const maxStreamsPerConnection = 1024
