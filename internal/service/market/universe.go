package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

// SymbolSource fetches the tradable symbols of one exchange together with
// their human readable names.
type SymbolSource interface {
	Exchange() Exchange
	FetchNames(ctx context.Context) (map[string]string, error)
}

// Snapshot is an immutable symbol -> display name table. It is never mutated
// after being published.
type Snapshot struct {
	names       map[Exchange]map[string]string
	symbols     map[Exchange][]string
	RefreshedAt time.Time
}

func newSnapshot(names map[Exchange]map[string]string, at time.Time) *Snapshot {
	s := &Snapshot{
		names:       names,
		symbols:     make(map[Exchange][]string, len(names)),
		RefreshedAt: at,
	}
	for ex, m := range names {
		syms := lo.Keys(m)
		sort.Strings(syms)
		s.symbols[ex] = syms
	}
	return s
}

func (s *Snapshot) Name(ex Exchange, symbol string) (string, bool) {
	if s == nil {
		return "", false
	}
	name, ok := s.names[ex][symbol]
	return name, ok && name != ""
}

// Symbols returns the sorted symbol list of an exchange. Callers must not
// modify the returned slice.
func (s *Snapshot) Symbols(ex Exchange) []string {
	if s == nil {
		return nil
	}
	return s.symbols[ex]
}

func (s *Snapshot) Len(ex Exchange) int {
	if s == nil {
		return 0
	}
	return len(s.names[ex])
}

// Universe holds the current Snapshot. Readers load it lock free, the refresh
// task swaps in a whole new table.
type Universe struct {
	sources []SymbolSource
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

func NewUniverse(sources ...SymbolSource) *Universe {
	u := &Universe{
		sources: sources,
		now:     time.Now,
	}
	u.current.Store(newSnapshot(map[Exchange]map[string]string{}, time.Time{}))
	return u
}

func (u *Universe) Current() *Snapshot {
	return u.current.Load()
}

// Seed publishes a static table for an exchange, replacing whatever was
// there for that exchange.
func (u *Universe) Seed(ex Exchange, names map[string]string) {
	prev := u.current.Load()
	next := make(map[Exchange]map[string]string, len(prev.names)+1)
	for k, v := range prev.names {
		next[k] = v
	}
	next[ex] = lo.Assign(names)
	u.current.Store(newSnapshot(next, u.now()))
}

// DisplayName implements the name lookup used when rendering alerts.
func (u *Universe) DisplayName(ex Exchange, symbol string) (string, bool) {
	return u.Current().Name(ex, symbol)
}

func (u *Universe) Symbols(ex Exchange) []string {
	return u.Current().Symbols(ex)
}

// Refresh pulls every source and publishes a new snapshot. An exchange whose
// fetch fails or comes back empty keeps its previous table.
func (u *Universe) Refresh(ctx context.Context) error {
	prev := u.current.Load()
	next := make(map[Exchange]map[string]string, len(u.sources))
	for k, v := range prev.names {
		next[k] = v
	}

	var errs []error
	for _, src := range u.sources {
		names, err := src.FetchNames(ctx)
		if err == nil && len(names) == 0 {
			err = errors.New("empty symbol list")
		}
		if err != nil {
			slog.Error("failed to refresh symbols, keep previous snapshot",
				"exchange", src.Exchange(), "previous", prev.Len(src.Exchange()), "error", err)
			errs = append(errs, fmt.Errorf("refresh %s: %w", src.Exchange(), err))
			continue
		}
		next[src.Exchange()] = names
		slog.Info("symbols refreshed", "exchange", src.Exchange(), "count", len(names))
	}

	u.current.Store(newSnapshot(next, u.now()))
	return errors.Join(errs...)
}
