package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/KNICEX/trade-alert/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func initTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "dedup.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, InitTables(db))
	return db
}

func TestDedupRepo(t *testing.T) {
	r := NewDedupRepo(initTestDB(t))
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	err := r.Upsert(ctx, []entity.DedupEntry{
		{Key: "a", ExpiresAt: now.Add(time.Hour)},
		{Key: "b", ExpiresAt: now.Add(-time.Minute)},
		{Key: "c", ExpiresAt: now},
	})
	require.NoError(t, err)

	// 再次写入同一个 key 只更新过期时间
	require.NoError(t, r.Upsert(ctx, []entity.DedupEntry{{Key: "b", ExpiresAt: now.Add(2 * time.Hour)}}))

	active, err := r.FindActive(ctx, now)
	require.NoError(t, err)
	keys := make([]string, 0, len(active))
	for _, e := range active {
		keys = append(keys, e.Key)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	n, err := r.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = r.DeleteExpired(ctx, now.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, r.Upsert(ctx, nil))
}
