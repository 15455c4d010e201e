package stream

import (
	"slices"

	"github.com/KNICEX/trade-alert/internal/service/market"
)

// Subscription is the symbol set sent on every (re)connect.
type Subscription struct {
	// Symbols 订阅成交和行情
	Symbols []string
	// DepthSymbols 额外订阅盘口
	DepthSymbols []string
}

// Equal compares both symbol lists ignoring order.
func (s Subscription) Equal(o Subscription) bool {
	return sameSymbols(s.Symbols, o.Symbols) && sameSymbols(s.DepthSymbols, o.DepthSymbols)
}

func sameSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// SubscriptionSource is read at every connect and on Connector.Resubscribe.
type SubscriptionSource func() Subscription

// Feed adapts one exchange's websocket protocol.
type Feed interface {
	Exchange() market.Exchange
	URL() string
	// SubscribeFrames builds the text frames written right after the dial.
	SubscribeFrames(sub Subscription) ([][]byte, error)
	// Decode turns one frame into events. Control and ack frames return
	// (nil, nil), malformed frames return a *DecodeError.
	Decode(frame []byte) ([]market.Event, error)
}
