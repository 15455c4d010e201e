package ioc

import (
	"time"

	"github.com/KNICEX/trade-alert/internal/service/dispatch"
	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/KNICEX/trade-alert/internal/service/monitor"
	"github.com/KNICEX/trade-alert/internal/service/notification"
	"github.com/KNICEX/trade-alert/internal/service/policy"
	"github.com/spf13/viper"
)

// InitPolicy returns a *policy.ConfigError when the thresholds are invalid.
func InitPolicy(universe *market.Universe, refs *monitor.ReferenceTable) (*policy.Policy, error) {
	var cfg policy.Config
	if err := viper.UnmarshalKey("alert", &cfg); err != nil {
		return nil, &policy.ConfigError{Field: "alert", Err: err}
	}
	rules, err := policy.BuildRules(cfg)
	if err != nil {
		return nil, err
	}

	tz := viper.GetString("alert.timezone")
	if tz == "" {
		tz = "Asia/Seoul"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &policy.ConfigError{Field: "alert.timezone", Err: err}
	}

	return policy.New(rules,
		policy.WithNames(universe),
		policy.WithReferencePrices(refs),
		policy.WithLocation(loc),
	)
}

func InitDispatcher(sender notification.Sender) *dispatch.Dispatcher {
	cfg := dispatch.DefaultConfig()
	if err := viper.UnmarshalKey("dispatch", &cfg); err != nil {
		panic(err)
	}
	return dispatch.NewDispatcher(sender, cfg)
}

func InitSupervisor(connectors []monitor.Connector, universe *market.Universe, pol *policy.Policy,
	refs *monitor.ReferenceTable, dd DedupComponents, dispatcher *dispatch.Dispatcher) *monitor.Supervisor {
	cfg := monitor.DefaultConfig()
	if err := viper.UnmarshalKey("monitor", &cfg); err != nil {
		panic(err)
	}
	opts := []monitor.Option{
		monitor.WithReferenceTable(refs),
		monitor.WithSweeper(dd.Cache),
	}
	if dd.Persister != nil {
		opts = append(opts, monitor.WithPersister(dd.Persister))
	}
	return monitor.NewSupervisor(cfg, connectors, universe, pol, dd.Deduper, dispatcher, opts...)
}
