package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

const (
	DefaultBinanceFuturesURL = "wss://fstream.binance.com/stream"

	// 单个 SUBSCRIBE 请求携带的 stream 上限
	binanceStreamsPerFrame = 200
)

// BinanceFuturesFeed reads aggTrade and markPrice streams from the USDⓈ-M
// futures combined endpoint. Payloads are decoded into go-binance event types.
type BinanceFuturesFeed struct {
	url       string
	markPrice bool
	nextID    atomic.Int64
}

type BinanceOption func(f *BinanceFuturesFeed)

// WithMarkPrice toggles the markPrice@1s stream per symbol.
func WithMarkPrice(enabled bool) BinanceOption {
	return func(f *BinanceFuturesFeed) {
		f.markPrice = enabled
	}
}

func NewBinanceFuturesFeed(url string, opts ...BinanceOption) *BinanceFuturesFeed {
	if url == "" {
		url = DefaultBinanceFuturesURL
	}
	f := &BinanceFuturesFeed{
		url:       url,
		markPrice: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *BinanceFuturesFeed) Exchange() market.Exchange {
	return market.BinanceFutures
}

func (f *BinanceFuturesFeed) URL() string {
	return f.url
}

type binanceRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func (f *BinanceFuturesFeed) SubscribeFrames(sub Subscription) ([][]byte, error) {
	if len(sub.Symbols) == 0 {
		return nil, errors.New("no symbols to subscribe")
	}
	params := make([]string, 0, len(sub.Symbols)*2)
	for _, s := range sub.Symbols {
		s = strings.ToLower(s)
		params = append(params, s+"@aggTrade")
		if f.markPrice {
			params = append(params, s+"@markPrice@1s")
		}
	}

	var frames [][]byte
	for start := 0; start < len(params); start += binanceStreamsPerFrame {
		end := min(start+binanceStreamsPerFrame, len(params))
		data, err := json.Marshal(binanceRequest{
			Method: "SUBSCRIBE",
			Params: params[start:end],
			ID:     f.nextID.Add(1),
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, data)
	}
	return frames, nil
}

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
	ID     *int64          `json:"id"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// Time 字段不能省, 否则 "E" 会按大小写不敏感规则落到 Event 上
type binanceEventType struct {
	Event string `json:"e"`
	Time  int64  `json:"E"`
}

func (f *BinanceFuturesFeed) Decode(frame []byte) ([]market.Event, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &DecodeError{Exchange: market.BinanceFutures, Reason: "invalid json", Err: err}
	}
	if env.Error != nil {
		return nil, &DecodeError{Exchange: market.BinanceFutures, Reason: fmt.Sprintf("error response %d: %s", env.Error.Code, env.Error.Msg)}
	}
	payload := []byte(env.Data)
	if len(payload) == 0 {
		if env.ID != nil {
			// {"result":null,"id":1} 订阅应答
			return nil, nil
		}
		// 非 combined 端点直接推送事件本身
		payload = frame
	}

	var typ binanceEventType
	if err := json.Unmarshal(payload, &typ); err != nil {
		return nil, &DecodeError{Exchange: market.BinanceFutures, Reason: "invalid payload", Err: err}
	}

	var (
		ev  market.Event
		err error
	)
	switch typ.Event {
	case "aggTrade":
		ev, err = decodeAggTrade(payload)
	case "markPriceUpdate":
		ev, err = decodeMarkPrice(payload)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, &DecodeError{Exchange: market.BinanceFutures, Reason: typ.Event, Err: err}
	}
	if err := ev.Validate(); err != nil {
		return nil, &DecodeError{Exchange: market.BinanceFutures, Reason: "invalid " + typ.Event, Err: err}
	}
	return []market.Event{ev}, nil
}

func decodeAggTrade(payload []byte) (market.Event, error) {
	var e futures.WsAggTradeEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	qty, err := decimal.NewFromString(e.Quantity)
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	// 买方是挂单方说明主动成交的是卖方
	side := market.Buy
	if e.Maker {
		side = market.Sell
	}
	ts := e.TradeTime
	if ts == 0 {
		ts = e.Time
	}
	return market.Trade{
		Exchange:  market.BinanceFutures,
		Symbol:    e.Symbol,
		Price:     price,
		Quantity:  qty,
		Side:      side,
		Timestamp: unixMilli(ts),
	}, nil
}

func decodeMarkPrice(payload []byte) (market.Event, error) {
	var e futures.WsMarkPriceEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(e.MarkPrice)
	if err != nil {
		return nil, fmt.Errorf("mark price: %w", err)
	}
	return market.Ticker{
		Exchange:  market.BinanceFutures,
		Symbol:    e.Symbol,
		Price:     price,
		Mark:      true,
		Timestamp: unixMilli(e.Time),
	}, nil
}
