package stream

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultUpbitURL = "wss://api.upbit.com/websocket/v1"

// UpbitFeed speaks the Upbit quotation websocket. One request frame carries
// the ticket and every type/codes pair, responses arrive as binary JSON.
type UpbitFeed struct {
	url string
}

func NewUpbitFeed(url string) *UpbitFeed {
	if url == "" {
		url = DefaultUpbitURL
	}
	return &UpbitFeed{url: url}
}

func (f *UpbitFeed) Exchange() market.Exchange {
	return market.Upbit
}

func (f *UpbitFeed) URL() string {
	return f.url
}

type upbitTicket struct {
	Ticket string `json:"ticket"`
}

type upbitType struct {
	Type  string   `json:"type"`
	Codes []string `json:"codes"`
}

func (f *UpbitFeed) SubscribeFrames(sub Subscription) ([][]byte, error) {
	if len(sub.Symbols) == 0 && len(sub.DepthSymbols) == 0 {
		return nil, errors.New("no symbols to subscribe")
	}
	req := []any{upbitTicket{Ticket: uuid.NewString()}}
	if len(sub.Symbols) > 0 {
		req = append(req,
			upbitType{Type: "trade", Codes: sub.Symbols},
			upbitType{Type: "ticker", Codes: sub.Symbols},
		)
	}
	if len(sub.DepthSymbols) > 0 {
		req = append(req, upbitType{Type: "orderbook", Codes: sub.DepthSymbols})
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

type upbitOrderbookUnit struct {
	AskPrice decimal.Decimal `json:"ask_price"`
	BidPrice decimal.Decimal `json:"bid_price"`
	AskSize  decimal.Decimal `json:"ask_size"`
	BidSize  decimal.Decimal `json:"bid_size"`
}

type upbitFrame struct {
	Type             string               `json:"type"`
	Code             string               `json:"code"`
	TradePrice       decimal.NullDecimal  `json:"trade_price"`
	TradeVolume      decimal.NullDecimal  `json:"trade_volume"`
	AskBid           string               `json:"ask_bid"`
	PrevClosingPrice decimal.NullDecimal  `json:"prev_closing_price"`
	TradeTimestamp   int64                `json:"trade_timestamp"`
	Timestamp        int64                `json:"timestamp"`
	OrderbookUnits   []upbitOrderbookUnit `json:"orderbook_units"`

	// {"status":"UP"} 是对文本 PING 的应答
	Status string `json:"status"`
	Error  *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *UpbitFeed) Decode(frame []byte) ([]market.Event, error) {
	var msg upbitFrame
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, &DecodeError{Exchange: market.Upbit, Reason: "invalid json", Err: err}
	}
	if msg.Error != nil {
		return nil, &DecodeError{Exchange: market.Upbit, Reason: "error response " + msg.Error.Name + ": " + msg.Error.Message}
	}

	var ev market.Event
	switch msg.Type {
	case "trade":
		if !msg.TradePrice.Valid || !msg.TradeVolume.Valid {
			return nil, &DecodeError{Exchange: market.Upbit, Reason: "trade without price or volume"}
		}
		side, err := upbitSide(msg.AskBid)
		if err != nil {
			return nil, &DecodeError{Exchange: market.Upbit, Reason: "trade side", Err: err}
		}
		ts := msg.TradeTimestamp
		if ts == 0 {
			ts = msg.Timestamp
		}
		ev = market.Trade{
			Exchange:  market.Upbit,
			Symbol:    msg.Code,
			Price:     msg.TradePrice.Decimal,
			Quantity:  msg.TradeVolume.Decimal,
			Side:      side,
			PrevClose: msg.PrevClosingPrice,
			Timestamp: unixMilli(ts),
		}
	case "ticker":
		if !msg.TradePrice.Valid {
			return nil, &DecodeError{Exchange: market.Upbit, Reason: "ticker without price"}
		}
		ev = market.Ticker{
			Exchange:  market.Upbit,
			Symbol:    msg.Code,
			Price:     msg.TradePrice.Decimal,
			PrevClose: msg.PrevClosingPrice,
			Timestamp: unixMilli(msg.Timestamp),
		}
	case "orderbook":
		if len(msg.OrderbookUnits) == 0 {
			return nil, &DecodeError{Exchange: market.Upbit, Reason: "orderbook without units"}
		}
		top := msg.OrderbookUnits[0]
		ev = market.Depth{
			Exchange:  market.Upbit,
			Symbol:    msg.Code,
			BidPrice:  top.BidPrice,
			BidSize:   top.BidSize,
			AskPrice:  top.AskPrice,
			AskSize:   top.AskSize,
			Timestamp: unixMilli(msg.Timestamp),
		}
	default:
		return nil, nil
	}

	if err := ev.Validate(); err != nil {
		return nil, &DecodeError{Exchange: market.Upbit, Reason: "invalid " + msg.Type, Err: err}
	}
	return []market.Event{ev}, nil
}

func upbitSide(askBid string) (market.Side, error) {
	switch askBid {
	case "BID":
		return market.Buy, nil
	case "ASK":
		return market.Sell, nil
	default:
		return "", errors.New("unknown ask_bid " + askBid)
	}
}

func unixMilli(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
