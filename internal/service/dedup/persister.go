package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KNICEX/trade-alert/internal/entity"
	"github.com/KNICEX/trade-alert/internal/repo"
	"github.com/samber/lo"
)

// Persister keeps a copy of the live cache in the database so a restart
// does not resend alerts that went out within the horizon.
type Persister struct {
	cache *Cache
	repo  repo.DedupRepo
}

func NewPersister(cache *Cache, r repo.DedupRepo) *Persister {
	return &Persister{
		cache: cache,
		repo:  r,
	}
}

func (p *Persister) Name() string {
	return "dedup-persist"
}

// Restore loads unexpired entries into the cache.
func (p *Persister) Restore(ctx context.Context, now time.Time) (int, error) {
	rows, err := p.repo.FindActive(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("load dedup entries: %w", err)
	}
	entries := lo.Map(rows, func(row entity.DedupEntry, _ int) Entry {
		return Entry{Key: row.Key, ExpiresAt: row.ExpiresAt}
	})
	n := p.cache.Restore(entries, now)
	slog.Info("dedup cache restored", "entries", n)
	return n, nil
}

// Flush sweeps the cache and writes the remaining entries.
func (p *Persister) Flush(ctx context.Context, now time.Time) error {
	swept := p.cache.Sweep(now)
	deleted, err := p.repo.DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("delete expired dedup entries: %w", err)
	}
	rows := lo.Map(p.cache.Snapshot(), func(e Entry, _ int) entity.DedupEntry {
		return entity.DedupEntry{Key: e.Key, ExpiresAt: e.ExpiresAt}
	})
	if err := p.repo.Upsert(ctx, rows); err != nil {
		return fmt.Errorf("save dedup entries: %w", err)
	}
	slog.Debug("dedup cache flushed", "swept", swept, "deleted", deleted, "saved", len(rows))
	return nil
}
