package stream

import (
	"time"

	"github.com/jpillora/backoff"
)

type BackoffConfig struct {
	Min    time.Duration `mapstructure:"min"`
	Max    time.Duration `mapstructure:"max"`
	Factor float64       `mapstructure:"factor"`
	Jitter bool          `mapstructure:"jitter"`
	// MaxRetries 连续失败的最大重连次数, 0 表示不限
	MaxRetries int `mapstructure:"max_retries"`
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Min:    2 * time.Second,
		Max:    60 * time.Second,
		Factor: 2,
	}
}

type retryPolicy struct {
	b          *backoff.Backoff
	maxRetries int
}

func newRetryPolicy(cfg BackoffConfig) *retryPolicy {
	def := DefaultBackoffConfig()
	if cfg.Min <= 0 {
		cfg.Min = def.Min
	}
	if cfg.Max < cfg.Min {
		cfg.Max = max(def.Max, cfg.Min)
	}
	if cfg.Factor < 1 {
		cfg.Factor = def.Factor
	}
	return &retryPolicy{
		b: &backoff.Backoff{
			Min:    cfg.Min,
			Max:    cfg.Max,
			Factor: cfg.Factor,
			Jitter: cfg.Jitter,
		},
		maxRetries: cfg.MaxRetries,
	}
}

// Next returns the wait before the next attempt. ok is false once
// maxRetries consecutive failures have been spent.
func (r *retryPolicy) Next() (wait time.Duration, ok bool) {
	if r.maxRetries > 0 && int(r.b.Attempt()) >= r.maxRetries {
		return 0, false
	}
	return r.b.Duration(), true
}

func (r *retryPolicy) Attempts() int {
	return int(r.b.Attempt())
}

func (r *retryPolicy) Reset() {
	r.b.Reset()
}
