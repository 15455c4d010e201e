package notification

import (
	"context"
	"errors"
	"fmt"
)

// Sender 通知渠道
type Sender interface {
	Send(ctx context.Context, text string) error
	Name() string
}

// Multi fans a message out to every sender. One failing sender does not stop
// the rest; the joined error names each failure.
type Multi []Sender

func (m Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Name() string {
	return "multi"
}
