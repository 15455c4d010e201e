package stream

import (
	"errors"
	"fmt"

	"github.com/KNICEX/trade-alert/internal/service/market"
)

// ErrFeedFailed is returned by Run when the retry budget is exhausted.
var ErrFeedFailed = errors.New("stream: feed failed")

// errResubscribe ends a session whose subscription changed. Run reconnects
// right away without consuming the retry budget.
var errResubscribe = errors.New("stream: subscription changed")

// TransportError covers dial, subscribe and read failures. The connector
// recovers from it by reconnecting.
type TransportError struct {
	Exchange market.Exchange
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s: %s: %v", e.Exchange, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError means a single frame could not be turned into events. The
// frame is skipped, the connection stays up.
type DecodeError struct {
	Exchange market.Exchange
	Reason   string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode %s frame: %s", e.Exchange, e.Reason)
	}
	return fmt.Sprintf("decode %s frame: %s: %v", e.Exchange, e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
