package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
)

// setupTestDB 创建临时测试数据库
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenDB(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &DB{DB: db}
}

func TestRunRepository_SaveAndFind(t *testing.T) {
	repo, err := NewRunRepository(setupTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	run := &text2sql.Run{
		SessionID:  "s1",
		Query:      "How many operational plants?",
		SQL:        "SELECT COUNT(*) FROM nuclear_power_plants WHERE StatusId = 3",
		Success:    true,
		Iterations: 3,
		ToolCalls:  5,
		DurationMS: 120,
	}
	require.NoError(t, repo.Save(ctx, run))
	assert.NotEmpty(t, run.ID, "保存后应自动生成 ID")

	found, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, run.Query, found.Query)
	assert.Equal(t, run.SQL, found.SQL)
	assert.True(t, found.Success)
	assert.Equal(t, 5, found.ToolCalls)
	assert.Equal(t, run.CreatedAt.UnixMilli(), found.CreatedAt.UnixMilli())
}

func TestRunRepository_FindMissing(t *testing.T) {
	repo, err := NewRunRepository(setupTestDB(t))
	require.NoError(t, err)

	found, err := repo.FindByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRunRepository_ListRecent(t *testing.T) {
	repo, err := NewRunRepository(setupTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, q := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Save(ctx, &text2sql.Run{
			Query:     q,
			Error:     "boom",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].Query)
	assert.Equal(t, "second", runs[1].Query)
	assert.Equal(t, "boom", runs[0].Error)
	assert.False(t, runs[0].Success)
}
