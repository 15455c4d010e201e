package policy

import (
	"time"

	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/KNICEX/trade-alert/pkg/decimalx"
	"github.com/shopspring/decimal"
)

// NameLookup resolves a display name for alert text. Advisory only.
type NameLookup interface {
	DisplayName(ex market.Exchange, symbol string) (string, bool)
}

// ReferencePrices provides the previous close used for the change
// percentage when the event itself does not carry one.
type ReferencePrices interface {
	PrevClose(ex market.Exchange, symbol string) decimal.NullDecimal
}

type noNames struct{}

func (noNames) DisplayName(market.Exchange, string) (string, bool) { return "", false }

type noRefs struct{}

func (noRefs) PrevClose(market.Exchange, string) decimal.NullDecimal { return decimal.NullDecimal{} }

// Policy maps a market event to at most one candidate alert. The decision
// depends on the event and the rules only.
type Policy struct {
	rules Rules
	names NameLookup
	refs  ReferencePrices
	loc   *time.Location
}

type Option func(p *Policy)

func WithNames(names NameLookup) Option {
	return func(p *Policy) {
		if names != nil {
			p.names = names
		}
	}
}

func WithReferencePrices(refs ReferencePrices) Option {
	return func(p *Policy) {
		if refs != nil {
			p.refs = refs
		}
	}
}

// WithLocation sets the zone used for the timestamp line of alert text.
func WithLocation(loc *time.Location) Option {
	return func(p *Policy) {
		if loc != nil {
			p.loc = loc
		}
	}
}

func New(rules Rules, opts ...Option) (*Policy, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	p := &Policy{
		rules: rules,
		names: noNames{},
		refs:  noRefs{},
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Policy) Rules() Rules {
	return p.rules
}

func (p *Policy) Classify(ev market.Event) (CandidateAlert, bool) {
	switch e := ev.(type) {
	case market.Trade:
		return p.classifyTrade(e)
	case market.Ticker:
		return p.classifyTicker(e)
	case market.Depth:
		return p.classifyDepth(e)
	default:
		return CandidateAlert{}, false
	}
}

func (p *Policy) classifyTrade(t market.Trade) (CandidateAlert, bool) {
	rule, ok := p.rules.Match(MetricNotional, t.Exchange, t.Symbol)
	if !ok {
		return CandidateAlert{}, false
	}
	notional := t.Notional()
	if notional.LessThan(rule.MinValue) {
		return CandidateAlert{}, false
	}
	dir := directionOf(t.Side)
	return p.candidate(t, rule, dir, notional, p.renderTrade(t, rule, dir)), true
}

// classifyTicker 只有推送标记价格的合约行情才参与判断
func (p *Policy) classifyTicker(t market.Ticker) (CandidateAlert, bool) {
	if !t.Mark {
		return CandidateAlert{}, false
	}
	rule, ok := p.rules.Match(MetricMarkPrice, t.Exchange, t.Symbol)
	if !ok || t.Price.LessThan(rule.MinValue) {
		return CandidateAlert{}, false
	}
	return p.candidate(t, rule, DirectionMark, t.Price, p.renderMark(t, rule)), true
}

// classifyDepth checks the resting size on both sides of the book. When both
// sides cross the threshold the larger one is reported.
func (p *Policy) classifyDepth(d market.Depth) (CandidateAlert, bool) {
	rule, ok := p.rules.Match(MetricOrderbookDepth, d.Exchange, d.Symbol)
	if !ok {
		return CandidateAlert{}, false
	}
	bidHit := d.BidSize.GreaterThanOrEqual(rule.MinValue)
	askHit := d.AskSize.GreaterThanOrEqual(rule.MinValue)

	var (
		dir  Direction
		size decimal.Decimal
	)
	switch {
	case bidHit && (!askHit || d.BidSize.GreaterThanOrEqual(d.AskSize)):
		dir, size = DirectionBuy, d.BidSize
	case askHit:
		dir, size = DirectionSell, d.AskSize
	default:
		return CandidateAlert{}, false
	}
	return p.candidate(d, rule, dir, size, p.renderDepth(d, rule, dir, size)), true
}

func (p *Policy) candidate(ev market.Event, rule Rule, dir Direction, magnitude decimal.Decimal, text string) CandidateAlert {
	bucket := decimalx.Bucket(magnitude, rule.MinValue)
	return CandidateAlert{
		Key:        DedupKey(ev.Source(), ev.Market(), rule.Metric, dir, bucket),
		Exchange:   ev.Source(),
		Symbol:     ev.Market(),
		Direction:  dir,
		Metric:     rule.Metric,
		Rule:       rule.Name,
		Magnitude:  magnitude,
		Text:       text,
		ProducedAt: ev.Time(),
	}
}
