package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/gorilla/websocket"
)

type Config struct {
	// ReadIdle 超过该时间没有任何帧 (含 pong) 视为断线
	ReadIdle         time.Duration `mapstructure:"read_idle"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	// PingInterval 0 表示不主动 ping
	PingInterval time.Duration `mapstructure:"ping_interval"`
	Backoff      BackoffConfig `mapstructure:"backoff"`
}

func DefaultConfig() Config {
	return Config{
		ReadIdle:         30 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     15 * time.Second,
		Backoff:          DefaultBackoffConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ReadIdle <= 0 {
		c.ReadIdle = def.ReadIdle
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.PingInterval < 0 {
		c.PingInterval = 0
	}
	return c
}

type Stats struct {
	Frames       uint64 `json:"frames"`
	Events       uint64 `json:"events"`
	DecodeErrors uint64 `json:"decodeErrors"`
	Reconnects   uint64 `json:"reconnects"`
	Resubscribes uint64 `json:"resubscribes"`
}

// Connector keeps one websocket session to one exchange alive and pushes
// decoded events to the caller in arrival order.
type Connector struct {
	feed   Feed
	cfg    Config
	dialer *websocket.Dialer

	state        atomic.Int32
	frames       atomic.Uint64
	events       atomic.Uint64
	decodeErrors atomic.Uint64
	reconnects   atomic.Uint64
	resubscribes atomic.Uint64

	resub chan struct{}
}

type Option func(c *Connector)

// WithDialer replaces the websocket dialer, e.g. to route through a proxy.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Connector) {
		if d != nil {
			c.dialer = d
		}
	}
}

func NewConnector(feed Feed, cfg Config, opts ...Option) *Connector {
	cfg = cfg.withDefaults()
	c := &Connector{
		feed: feed,
		cfg:  cfg,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		resub: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) Exchange() market.Exchange {
	return c.feed.Exchange()
}

func (c *Connector) State() State {
	return State(c.state.Load())
}

func (c *Connector) Stats() Stats {
	return Stats{
		Frames:       c.frames.Load(),
		Events:       c.events.Load(),
		DecodeErrors: c.decodeErrors.Load(),
		Reconnects:   c.reconnects.Load(),
		Resubscribes: c.resubscribes.Load(),
	}
}

// Resubscribe asks the live session to read the subscription source again.
// When the symbol set changed the session is closed and Run dials again at
// once. It never blocks.
func (c *Connector) Resubscribe() {
	select {
	case c.resub <- struct{}{}:
	default:
	}
}

func (c *Connector) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		slog.Debug("stream state changed", "exchange", c.feed.Exchange(), "from", old, "to", s)
	}
}

// Run connects, subscribes and forwards events to out until ctx is
// cancelled, reconnecting with backoff on every failure. It returns nil on
// cancellation and ErrFeedFailed when the retry budget runs out.
func (c *Connector) Run(ctx context.Context, source SubscriptionSource, out chan<- market.Event) error {
	ex := c.feed.Exchange()
	retry := newRetryPolicy(c.cfg.Backoff)
	defer func() {
		if c.State() != Failed {
			c.setState(Disconnected)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		err := c.session(ctx, source, out, retry)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errResubscribe) {
			c.resubscribes.Add(1)
			continue
		}

		wait, ok := retry.Next()
		if !ok {
			c.setState(Failed)
			slog.Error("stream failed, giving up", "exchange", ex, "attempts", retry.Attempts(), "error", err)
			return fmt.Errorf("%w: %s: %w", ErrFeedFailed, ex, err)
		}
		c.setState(Backoff)
		c.reconnects.Add(1)
		slog.Warn("stream disconnected, reconnecting", "exchange", ex, "wait", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Events runs the connector in its own goroutine. The channel is closed when
// Run returns.
func (c *Connector) Events(ctx context.Context, source SubscriptionSource) <-chan market.Event {
	ch := make(chan market.Event, 64)
	go func() {
		defer close(ch)
		if err := c.Run(ctx, source, ch); err != nil {
			slog.Error("stream stopped", "exchange", c.feed.Exchange(), "error", err)
		}
	}()
	return ch
}

func (c *Connector) session(ctx context.Context, source SubscriptionSource, out chan<- market.Event, retry *retryPolicy) error {
	ex := c.feed.Exchange()
	c.setState(Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	conn, resp, err := c.dialer.DialContext(dialCtx, c.feed.URL(), nil)
	cancel()
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("status %d: %w", resp.StatusCode, err)
		}
		return &TransportError{Exchange: ex, Op: "dial", Err: err}
	}
	defer conn.Close()

	// 取消时关闭连接, 阻塞中的 ReadMessage 会立即返回
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	sub := source()
	frames, err := c.feed.SubscribeFrames(sub)
	if err != nil {
		return &TransportError{Exchange: ex, Op: "subscribe", Err: err}
	}
	for _, frame := range frames {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return &TransportError{Exchange: ex, Op: "subscribe", Err: err}
		}
	}
	c.setState(Subscribed)
	slog.Info("stream subscribed", "exchange", ex, "symbols", len(sub.Symbols), "depthSymbols", len(sub.DepthSymbols))

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadIdle))
	})
	done := make(chan struct{})
	defer close(done)
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(conn, done)
	}
	var changed atomic.Bool
	go c.watchSubscription(conn, sub, source, done, &changed)

	streaming := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadIdle))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if changed.Load() {
				return errResubscribe
			}
			return &TransportError{Exchange: ex, Op: "read", Err: err}
		}
		c.frames.Add(1)

		events, err := c.feed.Decode(data)
		if err != nil {
			c.decodeErrors.Add(1)
			slog.Warn("skip malformed frame", "exchange", ex, "error", err)
			continue
		}
		if len(events) == 0 {
			continue
		}
		if !streaming {
			streaming = true
			retry.Reset()
			c.setState(Streaming)
			slog.Info("stream is streaming", "exchange", ex)
		}

		for _, ev := range events {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case out <- ev:
				c.events.Add(1)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// watchSubscription closes conn once a Resubscribe finds a different symbol
// set, which unblocks the reader.
func (c *Connector) watchSubscription(conn *websocket.Conn, current Subscription, source SubscriptionSource,
	done <-chan struct{}, changed *atomic.Bool) {
	for {
		select {
		case <-done:
			return
		case <-c.resub:
			next := source()
			if next.Equal(current) {
				continue
			}
			slog.Info("subscription changed, reconnecting", "exchange", c.feed.Exchange(),
				"symbols", len(next.Symbols), "depthSymbols", len(next.DepthSymbols))
			changed.Store(true)
			_ = conn.Close()
			return
		}
	}
}

func (c *Connector) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				slog.Debug("failed to ping", "exchange", c.feed.Exchange(), "error", err)
				return
			}
		}
	}
}
