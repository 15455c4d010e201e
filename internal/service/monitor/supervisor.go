package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/KNICEX/trade-alert/internal/schedule"
	"github.com/KNICEX/trade-alert/internal/service/dedup"
	"github.com/KNICEX/trade-alert/internal/service/dispatch"
	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/KNICEX/trade-alert/internal/service/policy"
	"github.com/KNICEX/trade-alert/internal/service/stream"
	"github.com/jpillora/backoff"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	// RefreshRetry 首次加载币种失败后的重试间隔, 指数增长, 上限 1 分钟
	RefreshRetry    time.Duration `mapstructure:"refresh_retry"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	EventBuffer     int           `mapstructure:"event_buffer"`
}

func DefaultConfig() Config {
	return Config{
		RefreshInterval: 3 * time.Hour,
		RefreshRetry:    5 * time.Second,
		SweepInterval:   time.Minute,
		ShutdownTimeout: 10 * time.Second,
		EventBuffer:     1024,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = def.RefreshInterval
	}
	if c.RefreshRetry <= 0 {
		c.RefreshRetry = def.RefreshRetry
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	return c
}

// Connector is the part of stream.Connector the supervisor drives.
type Connector interface {
	Exchange() market.Exchange
	Run(ctx context.Context, source stream.SubscriptionSource, out chan<- market.Event) error
	State() stream.State
	Stats() stream.Stats
	// Resubscribe makes a live session pick up a changed symbol set.
	Resubscribe()
}

type Dispatcher interface {
	Submit(alert policy.CandidateAlert) bool
	Stats() dispatch.Stats
	Close(ctx context.Context) error
}

type PipelineStats struct {
	Events      uint64 `json:"events"`
	Alerts      uint64 `json:"alerts"`
	Suppressed  uint64 `json:"suppressed"`
	DedupErrors uint64 `json:"dedupErrors"`
}

// Supervisor owns the connectors, the ordered classify → admit → submit
// pipeline and the periodic maintenance tasks.
type Supervisor struct {
	cfg        Config
	connectors []Connector
	universe   *market.Universe
	policy     *policy.Policy
	deduper    dedup.Deduper
	dispatcher Dispatcher
	refs       *ReferenceTable

	cache     *dedup.Cache
	persister *dedup.Persister
	now       func() time.Time

	cancel context.CancelFunc
	done   chan error

	events      atomic.Uint64
	alerts      atomic.Uint64
	suppressed  atomic.Uint64
	dedupErrors atomic.Uint64
}

type Option func(s *Supervisor)

// WithReferenceTable shares the table the policy reads change percentages
// from. The pipeline fills it from ticker events.
func WithReferenceTable(refs *ReferenceTable) Option {
	return func(s *Supervisor) {
		if refs != nil {
			s.refs = refs
		}
	}
}

// WithSweeper schedules the periodic sweep of the in-memory cache.
func WithSweeper(cache *dedup.Cache) Option {
	return func(s *Supervisor) {
		s.cache = cache
	}
}

// WithPersister restores the dedup cache on Start and flushes it on every
// sweep tick and on Stop.
func WithPersister(p *dedup.Persister) Option {
	return func(s *Supervisor) {
		s.persister = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSupervisor(cfg Config, connectors []Connector, universe *market.Universe, pol *policy.Policy,
	deduper dedup.Deduper, dispatcher Dispatcher, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:        cfg.withDefaults(),
		connectors: connectors,
		universe:   universe,
		policy:     pol,
		deduper:    deduper,
		dispatcher: dispatcher,
		refs:       NewReferenceTable(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the symbol universe, restores the dedup snapshot and launches
// every goroutine. It returns once they are running.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cancel != nil {
		return errors.New("supervisor already started")
	}
	loadErr := s.universe.Refresh(ctx)
	if loadErr != nil {
		// 首次加载失败不致命, 后台重试成功后连接器重新订阅
		slog.Error("failed to load symbols on start", "error", loadErr)
	}
	if s.persister != nil {
		if _, err := s.persister.Restore(ctx, s.now()); err != nil {
			slog.Error("failed to restore dedup cache", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan error, 1)

	events := make(chan market.Event, s.cfg.EventBuffer)
	var g errgroup.Group
	for _, c := range s.connectors {
		g.Go(func() error {
			err := c.Run(ctx, s.subscription(c.Exchange()), events)
			if err != nil {
				slog.Error("connector stopped", "exchange", c.Exchange(), "error", err)
			}
			return err
		})
	}
	g.Go(func() error {
		s.pipeline(ctx, events)
		return nil
	})
	if loadErr != nil {
		g.Go(func() error {
			s.retryInitialLoad(ctx)
			return nil
		})
	}
	for _, task := range s.tasks() {
		g.Go(func() error {
			schedule.Every(ctx, task.interval, task.task, false)
			return nil
		})
	}
	go func() {
		s.done <- g.Wait()
	}()

	slog.Info("supervisor started", "connectors", len(s.connectors))
	return nil
}

// Stop cancels every goroutine, waits for them within ShutdownTimeout and
// closes the dispatcher.
func (s *Supervisor) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	select {
	case err := <-s.done:
		if err != nil && !errors.Is(err, stream.ErrFeedFailed) {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait supervisor goroutines: %w", ctx.Err()))
	}

	if s.persister != nil {
		if err := s.persister.Flush(ctx, s.now()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
	}
	slog.Info("supervisor stopped", "stats", s.Stats(), "dispatch", s.dispatcher.Stats())
	return errors.Join(errs...)
}

func (s *Supervisor) Stats() PipelineStats {
	return PipelineStats{
		Events:      s.events.Load(),
		Alerts:      s.alerts.Load(),
		Suppressed:  s.suppressed.Load(),
		DedupErrors: s.dedupErrors.Load(),
	}
}

func (s *Supervisor) pipeline(ctx context.Context, events <-chan market.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.handle(ctx, ev)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, ev market.Event) {
	s.events.Add(1)
	if t, ok := ev.(market.Ticker); ok && !t.Mark && t.PrevClose.Valid {
		s.refs.Update(t.Exchange, t.Symbol, t.PrevClose.Decimal)
	}

	alert, ok := s.policy.Classify(ev)
	if !ok {
		return
	}
	admitted, err := s.deduper.Admit(ctx, alert.Key, s.now())
	if err != nil {
		s.dedupErrors.Add(1)
		slog.Error("failed to check dedup", "symbol", alert.Symbol, "key", alert.Key, "error", err)
		return
	}
	if !admitted {
		s.suppressed.Add(1)
		slog.Debug("duplicate alert suppressed", "symbol", alert.Symbol, "key", alert.Key)
		return
	}
	s.alerts.Add(1)
	slog.Info("alert triggered", "exchange", alert.Exchange, "symbol", alert.Symbol,
		"direction", alert.Direction, "rule", alert.Rule, "magnitude", alert.Magnitude)
	s.dispatcher.Submit(alert)
}

// refreshSymbols publishes a new universe and lets every connector compare
// it with what its session subscribed.
func (s *Supervisor) refreshSymbols(ctx context.Context) error {
	err := s.universe.Refresh(ctx)
	for _, c := range s.connectors {
		c.Resubscribe()
	}
	return err
}

// retryInitialLoad refreshes with a short capped backoff until one refresh
// succeeds, then leaves the rest to the regular refresh task.
func (s *Supervisor) retryInitialLoad(ctx context.Context) {
	b := &backoff.Backoff{
		Min:    s.cfg.RefreshRetry,
		Max:    max(s.cfg.RefreshRetry, time.Minute),
		Factor: 2,
	}
	for {
		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := s.refreshSymbols(ctx); err != nil {
			slog.Warn("retry loading symbols failed", "attempt", int(b.Attempt()), "error", err)
			continue
		}
		slog.Info("symbols loaded after retry", "attempts", int(b.Attempt()))
		return
	}
}

// subscription is read at every (re)connect and on Resubscribe, so a
// refreshed universe reaches live sessions.
func (s *Supervisor) subscription(ex market.Exchange) stream.SubscriptionSource {
	return func() stream.Subscription {
		symbols := s.universe.Symbols(ex)
		return stream.Subscription{
			Symbols:      symbols,
			DepthSymbols: depthSymbols(s.policy.Rules(), ex, symbols),
		}
	}
}

func depthSymbols(rules policy.Rules, ex market.Exchange, universe []string) []string {
	var res []string
	for _, r := range rules {
		if r.Metric != policy.MetricOrderbookDepth || (r.Exchange != "" && r.Exchange != ex) {
			continue
		}
		if r.Symbols == nil {
			return universe
		}
		res = append(res, lo.Keys(r.Symbols)...)
	}
	res = lo.Uniq(res)
	slices.Sort(res)
	return res
}

type scheduledTask struct {
	interval time.Duration
	task     schedule.Task
}

func (s *Supervisor) tasks() []scheduledTask {
	tasks := []scheduledTask{{
		interval: s.cfg.RefreshInterval,
		task:     schedule.TaskFunc{TaskName: "symbol-refresh", Fn: s.refreshSymbols},
	}}
	switch {
	case s.persister != nil:
		tasks = append(tasks, scheduledTask{interval: s.cfg.SweepInterval, task: schedule.TaskFunc{
			TaskName: s.persister.Name(),
			Fn: func(ctx context.Context) error {
				return s.persister.Flush(ctx, s.now())
			},
		}})
	case s.cache != nil:
		tasks = append(tasks, scheduledTask{interval: s.cfg.SweepInterval, task: schedule.TaskFunc{
			TaskName: "dedup-sweep",
			Fn: func(ctx context.Context) error {
				n := s.cache.Sweep(s.now())
				slog.Debug("dedup cache swept", "removed", n, "left", s.cache.Len())
				return nil
			},
		}})
	}
	return tasks
}
