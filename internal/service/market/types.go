package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange 交易所标识
type Exchange string

const (
	Upbit          Exchange = "UPBIT"
	BinanceFutures Exchange = "BINANCE_FUTURES"
)

func (e Exchange) ToString() string {
	return string(e)
}

func ParseExchange(s string) (Exchange, error) {
	switch Exchange(s) {
	case Upbit, BinanceFutures:
		return Exchange(s), nil
	default:
		return "", fmt.Errorf("unknown exchange %q", s)
	}
}

type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

func (s Side) ToString() string {
	return string(s)
}

// Event is a normalized market event. The set of implementations is closed:
// Trade, Ticker and Depth.
type Event interface {
	Source() Exchange
	Market() string
	Time() time.Time
	Validate() error

	event()
}

// Trade 成交
type Trade struct {
	Exchange  Exchange
	Symbol    string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Side      Side
	PrevClose decimal.NullDecimal // 前收盘价, 部分交易所成交推送会附带
	Timestamp time.Time
}

func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

func (t Trade) Source() Exchange { return t.Exchange }
func (t Trade) Market() string   { return t.Symbol }
func (t Trade) Time() time.Time  { return t.Timestamp }

func (t Trade) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("trade: empty symbol")
	}
	if t.Price.IsNegative() {
		return fmt.Errorf("trade %s: negative price %s", t.Symbol, t.Price)
	}
	if t.Quantity.IsNegative() {
		return fmt.Errorf("trade %s: negative quantity %s", t.Symbol, t.Quantity)
	}
	if t.Side != Buy && t.Side != Sell {
		return fmt.Errorf("trade %s: unknown side %q", t.Symbol, t.Side)
	}
	return nil
}

func (Trade) event() {}

// Ticker 行情快照. Mark 为 true 时 Price 是合约标记价格
type Ticker struct {
	Exchange  Exchange
	Symbol    string
	Price     decimal.Decimal
	PrevClose decimal.NullDecimal
	Mark      bool
	Timestamp time.Time
}

func (t Ticker) Source() Exchange { return t.Exchange }
func (t Ticker) Market() string   { return t.Symbol }
func (t Ticker) Time() time.Time  { return t.Timestamp }

func (t Ticker) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("ticker: empty symbol")
	}
	if t.Price.IsNegative() {
		return fmt.Errorf("ticker %s: negative price %s", t.Symbol, t.Price)
	}
	return nil
}

func (Ticker) event() {}

// Depth is the resting size at the top of the order book.
type Depth struct {
	Exchange  Exchange
	Symbol    string
	BidPrice  decimal.Decimal
	BidSize   decimal.Decimal
	AskPrice  decimal.Decimal
	AskSize   decimal.Decimal
	Timestamp time.Time
}

func (d Depth) Source() Exchange { return d.Exchange }
func (d Depth) Market() string   { return d.Symbol }
func (d Depth) Time() time.Time  { return d.Timestamp }

func (d Depth) Validate() error {
	if d.Symbol == "" {
		return fmt.Errorf("depth: empty symbol")
	}
	if d.BidSize.IsNegative() || d.AskSize.IsNegative() {
		return fmt.Errorf("depth %s: negative size", d.Symbol)
	}
	if d.BidPrice.IsNegative() || d.AskPrice.IsNegative() {
		return fmt.Errorf("depth %s: negative price", d.Symbol)
	}
	return nil
}

func (Depth) event() {}

// ChangePercent 计算相对前收盘价的涨跌幅, 无参考价时返回 false
func ChangePercent(price decimal.Decimal, prevClose decimal.NullDecimal) (decimal.Decimal, bool) {
	if !prevClose.Valid || prevClose.Decimal.IsZero() {
		return decimal.Zero, false
	}
	return price.Sub(prevClose.Decimal).Div(prevClose.Decimal).Mul(decimal.NewFromInt(100)), true
}
