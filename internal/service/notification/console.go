package notification

import (
	"context"
	"log/slog"
)

// ConsoleSender 只打日志, 没有配置任何渠道时使用
type ConsoleSender struct{}

func (ConsoleSender) Send(ctx context.Context, text string) error {
	slog.InfoContext(ctx, "alert", "text", text)
	return nil
}

func (ConsoleSender) Name() string {
	return "console"
}
