package schedule

import (
	"context"
	"log/slog"
	"time"
)

type Task interface {
	Run(ctx context.Context) error
	Name() string
}

// TaskFunc adapts a function to Task.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

func (f TaskFunc) Run(ctx context.Context) error {
	return f.Fn(ctx)
}

func (f TaskFunc) Name() string {
	return f.TaskName
}

// Every runs task at a fixed interval until ctx is done. A failed run is
// logged and the schedule continues. With immediate the first run happens
// right away instead of after one interval.
func Every(ctx context.Context, interval time.Duration, task Task, immediate bool) {
	if interval <= 0 {
		slog.Warn("skip task with non-positive interval", "task", task.Name())
		return
	}
	if immediate {
		runOnce(ctx, task)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, task)
		}
	}
}

func runOnce(ctx context.Context, task Task) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := task.Run(ctx); err != nil {
		slog.Error("failed to run task", "task", task.Name(), "error", err)
		return
	}
	slog.Debug("task finished", "task", task.Name(), "cost", time.Since(start))
}
