package dedup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/KNICEX/trade-alert/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) repo.DedupRepo {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "dedup.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repo.InitTables(db))
	return repo.NewDedupRepo(db)
}

func TestPersister_FlushRestore(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	before := NewCache(time.Hour)
	before.Record("old", t0)
	before.Record("new", t0.Add(40*time.Minute))
	require.NoError(t, NewPersister(before, r).Flush(ctx, t0.Add(50*time.Minute)))

	// 模拟重启
	after := NewCache(time.Hour)
	p := NewPersister(after, r)
	n, err := p.Restore(ctx, t0.Add(70*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := after.Admit(ctx, "new", t0.Add(70*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = after.Admit(ctx, "old", t0.Add(70*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.Flush(ctx, t0.Add(3*time.Hour)))
	active, err := r.FindActive(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, active)
}
