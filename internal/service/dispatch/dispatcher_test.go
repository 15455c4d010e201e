package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KNICEX/trade-alert/internal/service/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSender struct {
	mu    sync.Mutex
	texts []string
	calls int
	// fail 前 fail 次调用返回错误
	fail int
	// gate 非空时每次发送都等待放行
	gate    chan struct{}
	started chan struct{}
}

func (s *recordSender) Send(ctx context.Context, text string) error {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fail {
		return errors.New("sink unavailable")
	}
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordSender) Name() string { return "record" }

func (s *recordSender) snapshot() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...), s.calls
}

func alert(text string) policy.CandidateAlert {
	return policy.CandidateAlert{Key: text, Symbol: "KRW-BTC", Text: text}
}

func TestDispatcher_Delivers(t *testing.T) {
	s := &recordSender{}
	d := NewDispatcher(s, Config{Workers: 1})

	for _, text := range []string{"a", "b", "c"} {
		require.True(t, d.Submit(alert(text)))
	}
	require.NoError(t, d.Close(context.Background()))

	texts, _ := s.snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, texts)
	assert.Equal(t, Stats{Sent: 3}, d.Stats())

	assert.False(t, d.Submit(alert("late")))
	assert.ErrorIs(t, d.Close(context.Background()), ErrClosed)
}

func TestDispatcher_Retry(t *testing.T) {
	testCases := []struct {
		name       string
		retries    int
		fail       int
		wantErr    bool
		wantCalls  int
		wantSent   uint64
		wantFailed uint64
	}{
		{name: "first attempt", retries: 1, fail: 0, wantCalls: 1, wantSent: 1},
		{name: "retry succeeds", retries: 1, fail: 1, wantCalls: 2, wantSent: 1},
		{name: "retry fails", retries: 1, fail: 2, wantErr: true, wantCalls: 2, wantFailed: 1},
		{name: "no retry", retries: 0, fail: 1, wantErr: true, wantCalls: 1, wantFailed: 1},
		{name: "retries clamped", retries: 5, fail: 5, wantErr: true, wantCalls: 2, wantFailed: 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := &recordSender{fail: tc.fail}
			d := NewDispatcher(s, Config{Workers: 1, Retries: tc.retries})
			defer d.Close(context.Background())

			err := d.Dispatch(context.Background(), alert("x"))
			if tc.wantErr {
				var delErr *DeliveryError
				require.True(t, errors.As(err, &delErr))
				assert.Equal(t, tc.wantCalls, delErr.Attempts)
				assert.Equal(t, "record", delErr.Sender)
				assert.Equal(t, "x", delErr.Key)
				assert.NotEmpty(t, delErr.AlertID)
			} else {
				assert.NoError(t, err)
			}
			_, calls := s.snapshot()
			assert.Equal(t, tc.wantCalls, calls)
			stats := d.Stats()
			assert.Equal(t, tc.wantSent, stats.Sent)
			assert.Equal(t, tc.wantFailed, stats.Failed)
		})
	}
}

func TestDispatcher_DropOldest(t *testing.T) {
	s := &recordSender{
		gate:    make(chan struct{}),
		started: make(chan struct{}, 8),
	}
	d := NewDispatcher(s, Config{Workers: 1, QueueSize: 2})

	require.True(t, d.Submit(alert("a")))
	<-s.started // worker 已经取走 a 并阻塞

	require.True(t, d.Submit(alert("b")))
	require.True(t, d.Submit(alert("c")))
	require.True(t, d.Submit(alert("d")))

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, 2, stats.Queued)

	close(s.gate)
	require.NoError(t, d.Close(context.Background()))

	texts, _ := s.snapshot()
	assert.Equal(t, []string{"a", "c", "d"}, texts)
	assert.Equal(t, uint64(3), d.Stats().Sent)
}

func TestDispatcher_SendTimeout(t *testing.T) {
	s := &recordSender{gate: make(chan struct{})}
	d := NewDispatcher(s, Config{Workers: 1, SendTimeout: 20 * time.Millisecond, Retries: 1})
	defer d.Close(context.Background())

	start := time.Now()
	err := d.Dispatch(context.Background(), alert("slow"))
	var delErr *DeliveryError
	require.True(t, errors.As(err, &delErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, delErr.Attempts)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatcher_CloseBounded(t *testing.T) {
	s := &recordSender{gate: make(chan struct{}), started: make(chan struct{}, 8)}
	d := NewDispatcher(s, Config{Workers: 1, SendTimeout: time.Minute})

	require.True(t, d.Submit(alert("stuck")))
	<-s.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, uint64(1), d.Stats().Failed)
}
