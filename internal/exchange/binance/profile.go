package binance

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/internal/subscription"
	"github.com/exchangecollector/core/pkg/errkind"
)

// Profile implements subscription.Profile for Binance's combined-stream
// WebSocket API: lowercase-concatenated symbol, "@"-delimited stream
// type token, with kline carrying an interval suffix and depth
// carrying an optional level count and update-speed suffix.
type Profile struct{}

// NewProfile builds the Binance stream-name profile.
func NewProfile() Profile { return Profile{} }

func (Profile) Exchange() string { return ExchangeName }

func (Profile) MaxStreamsPerConnection() int { return maxStreamsPerConnection }

func (Profile) BuildStreamName(symbol string, dataType marketdata.Type, params subscription.Params) (subscription.StreamName, error) {
	const op = "binance.Profile.BuildStreamName"

	lower := normalizeSymbolToken(symbol)
	if lower == "" {
		return "", errkind.New(errkind.InvalidArgument, op, "symbol must not be empty")
	}

	switch {
	case dataType == marketdata.TypeTrade:
		return subscription.StreamName(lower + "@trade"), nil
	case dataType == marketdata.TypeTicker:
		return subscription.StreamName(lower + "@ticker"), nil
	case dataType.IsKline():
		interval := dataType.KlineInterval()
		if interval == "" {
			return "", errkind.New(errkind.InvalidArgument, op, "kline type must carry an interval")
		}
		return subscription.StreamName(lower + "@kline_" + interval), nil
	case dataType == marketdata.TypeDepth || dataType == marketdata.TypeOrderBook:
		suffix := "depth"
		if params.DepthLevels > 0 {
			suffix += strconv.Itoa(params.DepthLevels)
		}
		if params.DepthSpeed > 0 {
			suffix += "@" + strconv.Itoa(params.DepthSpeed) + "ms"
		}
		return subscription.StreamName(lower + "@" + suffix), nil
	default:
		return "", errkind.New(errkind.InvalidArgument, op, fmt.Sprintf("unsupported data type %q", dataType))
	}
}

func (Profile) ParseStreamName(name subscription.StreamName) (string, marketdata.Type, subscription.Params, error) {
	const op = "binance.Profile.ParseStreamName"

	if !subscription.ValidStreamName(name) {
		return "", "", subscription.Params{}, errkind.New(errkind.InvalidArgument, op, fmt.Sprintf("malformed stream name %q", name))
	}

	parts := strings.Split(string(name), "@")
	symbolToken := parts[0]
	symbol := marketdata.SplitSymbol(symbolToken)

	switch {
	case len(parts) == 2 && parts[1] == "trade":
		return symbol, marketdata.TypeTrade, subscription.Params{}, nil
	case len(parts) == 2 && parts[1] == "ticker":
		return symbol, marketdata.TypeTicker, subscription.Params{}, nil
	case len(parts) == 2 && strings.HasPrefix(parts[1], "kline_"):
		interval := strings.TrimPrefix(parts[1], "kline_")
		return symbol, marketdata.KlineType(interval), subscription.Params{}, nil
	case strings.HasPrefix(parts[1], "depth"):
		params := subscription.Params{}
		levelStr := strings.TrimPrefix(parts[1], "depth")
		if levelStr != "" {
			lvl, err := strconv.Atoi(levelStr)
			if err != nil {
				return "", "", subscription.Params{}, errkind.New(errkind.InvalidArgument, op, "bad depth level in "+string(name))
			}
			params.DepthLevels = lvl
		}
		if len(parts) == 3 {
			speedStr := strings.TrimSuffix(parts[2], "ms")
			speed, err := strconv.Atoi(speedStr)
			if err != nil {
				return "", "", subscription.Params{}, errkind.New(errkind.InvalidArgument, op, "bad depth speed in "+string(name))
			}
			params.DepthSpeed = speed
		}
		return symbol, marketdata.TypeDepth, params, nil
	default:
		return "", "", subscription.Params{}, errkind.New(errkind.InvalidArgument, op, fmt.Sprintf("unrecognized stream token in %q", name))
	}
}

// normalizeSymbolToken reduces an abstract symbol (either "BTC/USDT" or
// "BTCUSDT") to Binance's lowercase concatenated wire form.
func normalizeSymbolToken(symbol string) string {
	s := strings.ToLower(strings.ReplaceAll(symbol, "/", ""))
	return s
}
