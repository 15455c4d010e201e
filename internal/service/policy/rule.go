package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type Metric string

const (
	MetricNotional       Metric = "notional"
	MetricOrderbookDepth Metric = "orderbookDepth"
	MetricMarkPrice      Metric = "markPrice"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricNotional, MetricOrderbookDepth, MetricMarkPrice:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// SymbolSet nil 表示匹配全部交易对
type SymbolSet map[string]struct{}

func NewSymbolSet(symbols ...string) SymbolSet {
	return lo.SliceToMap(symbols, func(item string) (string, struct{}) {
		return strings.ToUpper(strings.TrimSpace(item)), struct{}{}
	})
}

func (s SymbolSet) Contains(symbol string) bool {
	if s == nil {
		return true
	}
	_, ok := s[symbol]
	return ok
}

// Rule is one threshold. Exchange empty matches every exchange.
type Rule struct {
	Name     string
	Exchange market.Exchange
	Symbols  SymbolSet
	Metric   Metric
	MinValue decimal.Decimal
}

func (r Rule) Applies(metric Metric, ex market.Exchange, symbol string) bool {
	if r.Metric != metric {
		return false
	}
	if r.Exchange != "" && r.Exchange != ex {
		return false
	}
	return r.Symbols.Contains(symbol)
}

// Rules is evaluated in order, the first applicable rule wins even if its
// threshold is not reached.
type Rules []Rule

func (rs Rules) Match(metric Metric, ex market.Exchange, symbol string) (Rule, bool) {
	for _, r := range rs {
		if r.Applies(metric, ex, symbol) {
			return r, true
		}
	}
	return Rule{}, false
}

func (rs Rules) Validate() error {
	if len(rs) == 0 {
		return &ConfigError{Field: "policy.rules", Err: errors.New("no threshold rule configured")}
	}
	seen := make(map[string]struct{}, len(rs))
	for i, r := range rs {
		field := fmt.Sprintf("policy.rules[%d]", i)
		if r.Name == "" {
			return &ConfigError{Field: field, Err: errors.New("rule name is required")}
		}
		if _, ok := seen[r.Name]; ok {
			return &ConfigError{Field: field, Err: fmt.Errorf("duplicate rule name %q", r.Name)}
		}
		seen[r.Name] = struct{}{}
		if _, err := ParseMetric(string(r.Metric)); err != nil {
			return &ConfigError{Field: field, Err: err}
		}
		if !r.MinValue.IsPositive() {
			return &ConfigError{Field: field, Err: fmt.Errorf("rule %q: min value must be positive, got %s", r.Name, r.MinValue)}
		}
		if r.Symbols != nil && len(r.Symbols) == 0 {
			return &ConfigError{Field: field, Err: fmt.Errorf("rule %q: empty symbol set", r.Name)}
		}
	}
	return nil
}

// TradeThresholdConfig 单个交易所的成交额阈值, Excluded 中的币种使用 High 阈值
type TradeThresholdConfig struct {
	Exchange string   `mapstructure:"exchange"`
	Default  string   `mapstructure:"default"`
	High     string   `mapstructure:"high"`
	Excluded []string `mapstructure:"excluded"`
}

type RuleConfig struct {
	Name     string   `mapstructure:"name"`
	Exchange string   `mapstructure:"exchange"`
	Symbols  []string `mapstructure:"symbols"`
	Metric   string   `mapstructure:"metric"`
	MinValue string   `mapstructure:"min_value"`
}

type Config struct {
	Trade []TradeThresholdConfig `mapstructure:"trade"`
	Rules []RuleConfig           `mapstructure:"rules"`
}

// BuildRules turns the static configuration into an ordered rule list:
// explicit rules first, then per exchange the exclusion rule ahead of the
// default notional rule.
func BuildRules(cfg Config) (Rules, error) {
	var rules Rules
	for i, rc := range cfg.Rules {
		field := fmt.Sprintf("policy.rules[%d]", i)
		metric, err := ParseMetric(rc.Metric)
		if err != nil {
			return nil, &ConfigError{Field: field, Err: err}
		}
		ex, err := parseOptionalExchange(rc.Exchange)
		if err != nil {
			return nil, &ConfigError{Field: field, Err: err}
		}
		minValue, err := decimal.NewFromString(rc.MinValue)
		if err != nil {
			return nil, &ConfigError{Field: field, Err: fmt.Errorf("min value: %w", err)}
		}
		var symbols SymbolSet
		if len(rc.Symbols) > 0 {
			symbols = NewSymbolSet(rc.Symbols...)
		}
		rules = append(rules, Rule{
			Name:     rc.Name,
			Exchange: ex,
			Symbols:  symbols,
			Metric:   metric,
			MinValue: minValue,
		})
	}

	for i, tc := range cfg.Trade {
		field := fmt.Sprintf("policy.trade[%d]", i)
		ex, err := parseOptionalExchange(tc.Exchange)
		if err != nil {
			return nil, &ConfigError{Field: field, Err: err}
		}
		def, err := decimal.NewFromString(tc.Default)
		if err != nil {
			return nil, &ConfigError{Field: field + ".default", Err: err}
		}
		prefix := strings.ToLower(lo.Ternary(ex == "", "any", ex.ToString()))

		if len(tc.Excluded) > 0 {
			high, err := decimal.NewFromString(tc.High)
			if err != nil {
				return nil, &ConfigError{Field: field + ".high", Err: err}
			}
			if high.LessThan(def) {
				return nil, &ConfigError{Field: field + ".high", Err: fmt.Errorf("high threshold %s is below default %s", high, def)}
			}
			rules = append(rules, Rule{
				Name:     prefix + "-excluded",
				Exchange: ex,
				Symbols:  NewSymbolSet(tc.Excluded...),
				Metric:   MetricNotional,
				MinValue: high,
			})
		}
		rules = append(rules, Rule{
			Name:     prefix + "-default",
			Exchange: ex,
			Metric:   MetricNotional,
			MinValue: def,
		})
	}

	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

func parseOptionalExchange(s string) (market.Exchange, error) {
	if s == "" {
		return "", nil
	}
	return market.ParseExchange(strings.ToUpper(s))
}
