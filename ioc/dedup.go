package ioc

import (
	"time"

	"github.com/KNICEX/trade-alert/internal/repo"
	"github.com/KNICEX/trade-alert/internal/service/dedup"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

type DedupComponents struct {
	Deduper   dedup.Deduper
	Cache     *dedup.Cache
	Persister *dedup.Persister
}

func InitDedup(db *gorm.DB, rdb redis.UniversalClient) DedupComponents {
	type Config struct {
		Backend    string        `mapstructure:"backend"`
		Horizon    time.Duration `mapstructure:"horizon"`
		SweepBatch int           `mapstructure:"sweep_batch"`
		Prefix     string        `mapstructure:"prefix"`
		Persist    bool          `mapstructure:"persist"`
	}

	cfg := Config{Backend: "memory", Horizon: dedup.DefaultHorizon, Persist: true}
	if err := viper.UnmarshalKey("dedup", &cfg); err != nil {
		panic(err)
	}

	cache := dedup.NewCache(cfg.Horizon, dedup.WithSweepBatch(cfg.SweepBatch))
	res := DedupComponents{Deduper: cache, Cache: cache}
	if cfg.Persist && db != nil {
		res.Persister = dedup.NewPersister(cache, repo.NewDedupRepo(db))
	}
	if cfg.Backend == "redis" && rdb != nil {
		res.Deduper = dedup.Fallback{
			Primary:   dedup.NewRedisCache(rdb, cfg.Horizon, cfg.Prefix),
			Secondary: cache,
		}
	}
	return res
}
