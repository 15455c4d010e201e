package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KNICEX/trade-alert/internal/service/notification"
	"github.com/KNICEX/trade-alert/internal/service/policy"
	"github.com/google/uuid"
)

type Config struct {
	QueueSize   int           `mapstructure:"queue_size"`
	Workers     int           `mapstructure:"workers"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	// Retries 失败后立即重试的次数, 只允许 0 或 1
	Retries int `mapstructure:"retries"`
}

func DefaultConfig() Config {
	return Config{
		QueueSize:   256,
		Workers:     2,
		SendTimeout: 10 * time.Second,
		Retries:     1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = def.SendTimeout
	}
	c.Retries = min(max(c.Retries, 0), 1)
	return c
}

// Job is one queued alert.
type Job struct {
	ID       string
	Alert    policy.CandidateAlert
	Enqueued time.Time
}

type Stats struct {
	Queued  int    `json:"queued"`
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Dispatcher delivers alerts off the ingestion path. Submit never blocks:
// when the queue is full the oldest queued alert is dropped.
type Dispatcher struct {
	sender notification.Sender
	cfg    Config

	mu     sync.RWMutex
	closed bool
	queue  chan Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

func NewDispatcher(sender notification.Sender, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender: sender,
		cfg:    cfg,
		queue:  make(chan Job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit enqueues the alert and returns false only after Close.
func (d *Dispatcher) Submit(alert policy.CandidateAlert) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		slog.Warn("dispatcher closed, alert discarded", "key", alert.Key, "symbol", alert.Symbol)
		return false
	}

	job := Job{
		ID:       uuid.NewString(),
		Alert:    alert,
		Enqueued: time.Now(),
	}
	for {
		select {
		case d.queue <- job:
			return true
		default:
		}
		select {
		case old := <-d.queue:
			d.dropped.Add(1)
			slog.Warn("alert queue full, drop oldest", "id", old.ID, "key", old.Alert.Key, "symbol", old.Alert.Symbol)
		default:
		}
	}
}

// Dispatch sends one alert synchronously with the configured retry.
func (d *Dispatcher) Dispatch(ctx context.Context, alert policy.CandidateAlert) error {
	return d.deliver(ctx, Job{ID: uuid.NewString(), Alert: alert, Enqueued: time.Now()})
}

func (d *Dispatcher) deliver(ctx context.Context, job Job) error {
	var err error
	attempts := 0
	for attempts <= d.cfg.Retries {
		attempts++
		err = d.sendOnce(ctx, job.Alert.Text)
		if err == nil {
			d.sent.Add(1)
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	d.failed.Add(1)
	return &DeliveryError{
		AlertID:  job.ID,
		Key:      job.Alert.Key,
		Sender:   d.sender.Name(),
		Attempts: attempts,
		Err:      err,
	}
}

func (d *Dispatcher) sendOnce(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return d.sender.Send(ctx, text)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		err := d.deliver(d.ctx, job)
		if err != nil {
			slog.Error("failed to send alert", "id", job.ID, "symbol", job.Alert.Symbol, "error", err)
			continue
		}
		slog.Debug("alert sent", "id", job.ID, "symbol", job.Alert.Symbol, "latency", time.Since(job.Enqueued))
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:  len(d.queue),
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
	}
}

// Close stops accepting alerts and drains the queue. When ctx ends first the
// in-flight sends are cancelled and the remaining alerts are lost.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		left := len(d.queue)
		slog.Warn("dispatcher closed before drain", "left", left)
		return errors.Join(ctx.Err(), ErrClosed)
	}
}
