package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/KNICEX/trade-alert/pkg/decimalx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinanceFuturesFeed_SubscribeFrames(t *testing.T) {
	f := NewBinanceFuturesFeed("")
	assert.Equal(t, DefaultBinanceFuturesURL, f.URL())

	frames, err := f.SubscribeFrames(Subscription{Symbols: []string{"BTCUSDT", "ETHUSDT"}})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	var req binanceRequest
	require.NoError(t, json.Unmarshal(frames[0], &req))
	assert.Equal(t, "SUBSCRIBE", req.Method)
	assert.Equal(t, []string{"btcusdt@aggTrade", "btcusdt@markPrice@1s", "ethusdt@aggTrade", "ethusdt@markPrice@1s"}, req.Params)
	assert.Equal(t, int64(1), req.ID)

	noMark := NewBinanceFuturesFeed("", WithMarkPrice(false))
	symbols := make([]string, 250)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%dUSDT", i)
	}
	frames, err = noMark.SubscribeFrames(Subscription{Symbols: symbols})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	var second binanceRequest
	require.NoError(t, json.Unmarshal(frames[1], &second))
	assert.Len(t, second.Params, 50)
	assert.Equal(t, int64(2), second.ID)

	_, err = f.SubscribeFrames(Subscription{})
	assert.Error(t, err)
}

func TestBinanceFuturesFeed_Decode(t *testing.T) {
	f := NewBinanceFuturesFeed("")
	ts := time.UnixMilli(1709253000000)

	testCases := []struct {
		name      string
		frame     string
		wantEvent market.Event
		wantErr   bool
	}{
		{
			name:  "aggTrade taker buy",
			frame: `{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","E":1709253000100,"s":"BTCUSDT","a":5933014,"p":"62000.10","q":"20.5","f":100,"l":105,"T":1709253000000,"m":false}}`,
			wantEvent: market.Trade{
				Exchange:  market.BinanceFutures,
				Symbol:    "BTCUSDT",
				Price:     decimalx.MustFromString("62000.10"),
				Quantity:  decimalx.MustFromString("20.5"),
				Side:      market.Buy,
				Timestamp: ts,
			},
		},
		{
			name:  "aggTrade buyer is maker",
			frame: `{"stream":"ethusdt@aggTrade","data":{"e":"aggTrade","E":1709253000100,"s":"ETHUSDT","p":"3000","q":"1","T":1709253000000,"m":true}}`,
			wantEvent: market.Trade{
				Exchange:  market.BinanceFutures,
				Symbol:    "ETHUSDT",
				Price:     decimalx.MustFromString("3000"),
				Quantity:  decimalx.MustFromString("1"),
				Side:      market.Sell,
				Timestamp: ts,
			},
		},
		{
			name:  "mark price",
			frame: `{"stream":"btcusdt@markPrice@1s","data":{"e":"markPriceUpdate","E":1709253000000,"s":"BTCUSDT","p":"150000.50000000","i":"149990.1","P":"149995.0","r":"0.00010000","T":1709280000000}}`,
			wantEvent: market.Ticker{
				Exchange:  market.BinanceFutures,
				Symbol:    "BTCUSDT",
				Price:     decimalx.MustFromString("150000.5"),
				Mark:      true,
				Timestamp: ts,
			},
		},
		{
			name:  "raw stream payload",
			frame: `{"e":"aggTrade","E":1709253000000,"s":"BTCUSDT","p":"1","q":"2","T":1709253000000,"m":false}`,
			wantEvent: market.Trade{
				Exchange:  market.BinanceFutures,
				Symbol:    "BTCUSDT",
				Price:     decimalx.MustFromString("1"),
				Quantity:  decimalx.MustFromString("2"),
				Side:      market.Buy,
				Timestamp: ts,
			},
		},
		{name: "subscribe ack", frame: `{"result":null,"id":1}`},
		{name: "other stream", frame: `{"stream":"btcusdt@kline_1m","data":{"e":"kline"}}`},
		{name: "not json", frame: `{{`, wantErr: true},
		{name: "bad price", frame: `{"stream":"x","data":{"e":"aggTrade","s":"BTCUSDT","p":"abc","q":"1"}}`, wantErr: true},
		{name: "negative quantity", frame: `{"stream":"x","data":{"e":"aggTrade","s":"BTCUSDT","p":"1","q":"-1"}}`, wantErr: true},
		{name: "error response", frame: `{"error":{"code":2,"msg":"Invalid request"},"id":3}`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			events, err := f.Decode([]byte(tc.frame))
			if tc.wantErr {
				require.Error(t, err)
				var decErr *DecodeError
				assert.True(t, errors.As(err, &decErr))
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
