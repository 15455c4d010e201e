package stream

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/KNICEX/trade-alert/pkg/decimalx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpbitFeed_SubscribeFrames(t *testing.T) {
	f := NewUpbitFeed("")
	assert.Equal(t, DefaultUpbitURL, f.URL())

	frames, err := f.SubscribeFrames(Subscription{
		Symbols:      []string{"KRW-BTC", "KRW-ETH"},
		DepthSymbols: []string{"KRW-BTC"},
	})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	var req []map[string]any
	require.NoError(t, json.Unmarshal(frames[0], &req))
	require.Len(t, req, 4)
	assert.NotEmpty(t, req[0]["ticket"])
	assert.Equal(t, "trade", req[1]["type"])
	assert.Equal(t, []any{"KRW-BTC", "KRW-ETH"}, req[1]["codes"])
	assert.Equal(t, "ticker", req[2]["type"])
	assert.Equal(t, "orderbook", req[3]["type"])
	assert.Equal(t, []any{"KRW-BTC"}, req[3]["codes"])

	_, err = f.SubscribeFrames(Subscription{})
	assert.Error(t, err)
}

func TestUpbitFeed_Decode(t *testing.T) {
	f := NewUpbitFeed("")
	ts := time.UnixMilli(1709253000000)

	testCases := []struct {
		name      string
		frame     string
		wantEvent market.Event
		wantErr   bool
	}{
		{
			name:  "trade bid",
			frame: `{"type":"trade","code":"KRW-BTC","trade_price":100000000.0,"trade_volume":0.25,"ask_bid":"BID","prev_closing_price":95000000.0,"trade_timestamp":1709253000000,"timestamp":1709253000100,"sequential_id":1,"stream_type":"REALTIME"}`,
			wantEvent: market.Trade{
				Exchange:  market.Upbit,
				Symbol:    "KRW-BTC",
				Price:     decimalx.MustFromString("100000000"),
				Quantity:  decimalx.MustFromString("0.25"),
				Side:      market.Buy,
				PrevClose: decimal.NewNullDecimal(decimalx.MustFromString("95000000")),
				Timestamp: ts,
			},
		},
		{
			name:  "trade ask",
			frame: `{"type":"trade","code":"KRW-XRP","trade_price":700,"trade_volume":100,"ask_bid":"ASK","trade_timestamp":1709253000000}`,
			wantEvent: market.Trade{
				Exchange:  market.Upbit,
				Symbol:    "KRW-XRP",
				Price:     decimalx.MustFromString("700"),
				Quantity:  decimalx.MustFromString("100"),
				Side:      market.Sell,
				Timestamp: ts,
			},
		},
		{
			name:  "ticker",
			frame: `{"type":"ticker","code":"KRW-BTC","trade_price":101000000,"prev_closing_price":100000000,"timestamp":1709253000000}`,
			wantEvent: market.Ticker{
				Exchange:  market.Upbit,
				Symbol:    "KRW-BTC",
				Price:     decimalx.MustFromString("101000000"),
				PrevClose: decimal.NewNullDecimal(decimalx.MustFromString("100000000")),
				Timestamp: ts,
			},
		},
		{
			name:  "orderbook",
			frame: `{"type":"orderbook","code":"KRW-BTC","timestamp":1709253000000,"total_ask_size":10,"orderbook_units":[{"ask_price":101,"bid_price":100,"ask_size":1.5,"bid_size":52.3}]}`,
			wantEvent: market.Depth{
				Exchange:  market.Upbit,
				Symbol:    "KRW-BTC",
				BidPrice:  decimalx.MustFromString("100"),
				BidSize:   decimalx.MustFromString("52.3"),
				AskPrice:  decimalx.MustFromString("101"),
				AskSize:   decimalx.MustFromString("1.5"),
				Timestamp: ts,
			},
		},
		{name: "status ack", frame: `{"status":"UP"}`},
		{name: "unknown type", frame: `{"type":"myTrade","code":"KRW-BTC"}`},
		{name: "not json", frame: `hello`, wantErr: true},
		{name: "truncated", frame: `{"type":"trade","code":`, wantErr: true},
		{name: "missing volume", frame: `{"type":"trade","code":"KRW-BTC","trade_price":1,"ask_bid":"BID"}`, wantErr: true},
		{name: "unknown side", frame: `{"type":"trade","code":"KRW-BTC","trade_price":1,"trade_volume":1,"ask_bid":"MID"}`, wantErr: true},
		{name: "negative volume", frame: `{"type":"trade","code":"KRW-BTC","trade_price":1,"trade_volume":-1,"ask_bid":"BID"}`, wantErr: true},
		{name: "empty orderbook", frame: `{"type":"orderbook","code":"KRW-BTC","orderbook_units":[]}`, wantErr: true},
		{name: "error response", frame: `{"error":{"name":"INVALID_PARAM","message":"bad codes"}}`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			events, err := f.Decode([]byte(tc.frame))
			if tc.wantErr {
				require.Error(t, err)
				var decErr *DecodeError
				assert.True(t, errors.As(err, &decErr))
				assert.Empty(t, events)
				return
			}
			require.NoError(t, err)
			if tc.wantEvent == nil {
				assert.Empty(t, events)
				return
			}
			require.Len(t, events, 1)
			assertEventEqual(t, tc.wantEvent, events[0])
		})
	}
}

// assertEventEqual 比较 decimal 时按数值比较
func assertEventEqual(t *testing.T, want, got market.Event) {
	t.Helper()
	switch w := want.(type) {
	case market.Trade:
		g, ok := got.(market.Trade)
		require.True(t, ok, "want Trade, got %T", got)
		assert.Equal(t, w.Exchange, g.Exchange)
		assert.Equal(t, w.Symbol, g.Symbol)
		assert.True(t, w.Price.Equal(g.Price), "price %s != %s", w.Price, g.Price)
		assert.True(t, w.Quantity.Equal(g.Quantity), "quantity %s != %s", w.Quantity, g.Quantity)
		assert.Equal(t, w.Side, g.Side)
		assert.Equal(t, w.PrevClose.Valid, g.PrevClose.Valid)
		assert.True(t, w.PrevClose.Decimal.Equal(g.PrevClose.Decimal))
		assert.True(t, w.Timestamp.Equal(g.Timestamp))
	case market.Ticker:
		g, ok := got.(market.Ticker)
		require.True(t, ok, "want Ticker, got %T", got)
		assert.Equal(t, w.Exchange, g.Exchange)
		assert.Equal(t, w.Symbol, g.Symbol)
		assert.True(t, w.Price.Equal(g.Price), "price %s != %s", w.Price, g.Price)
		assert.Equal(t, w.PrevClose.Valid, g.PrevClose.Valid)
		assert.True(t, w.PrevClose.Decimal.Equal(g.PrevClose.Decimal))
		assert.Equal(t, w.Mark, g.Mark)
		assert.True(t, w.Timestamp.Equal(g.Timestamp))
	case market.Depth:
		g, ok := got.(market.Depth)
		require.True(t, ok, "want Depth, got %T", got)
		assert.Equal(t, w.Symbol, g.Symbol)
		assert.True(t, w.BidPrice.Equal(g.BidPrice))
		assert.True(t, w.BidSize.Equal(g.BidSize))
		assert.True(t, w.AskPrice.Equal(g.AskPrice))
		assert.True(t, w.AskSize.Equal(g.AskSize))
		assert.True(t, w.Timestamp.Equal(g.Timestamp))
	default:
		t.Fatalf("unexpected event type %T", want)
	}
}
