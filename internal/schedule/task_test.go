package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvery(t *testing.T) {
	testCases := []struct {
		name      string
		immediate bool
		fail      bool
	}{
		{name: "immediate", immediate: true},
		{name: "delayed", immediate: false},
		{name: "keeps running after error", immediate: true, fail: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var runs atomic.Int32
			task := TaskFunc{TaskName: "count", Fn: func(ctx context.Context) error {
				runs.Add(1)
				if tc.fail {
					return errors.New("boom")
				}
				return nil
			}}

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				Every(ctx, 10*time.Millisecond, task, tc.immediate)
				close(done)
			}()

			assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
			cancel()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("Every did not return after cancel")
			}
		})
	}
}

func TestEvery_NonPositiveInterval(t *testing.T) {
	var runs atomic.Int32
	Every(context.Background(), 0, TaskFunc{TaskName: "x", Fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, true)
	assert.Equal(t, int32(0), runs.Load())
}
