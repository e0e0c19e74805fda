package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/model"
)

func newCache(t *testing.T) (*HistoryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewHistoryCache(client, time.Minute, 5*time.Second), mr
}

func TestHistoryCache_RoundTrip(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	_, ok, err := c.GetHistory(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := []model.QueryRecord{{ID: 2, Question: "q2", Answer: "a2", Sources: `["a.pdf","b.pdf"]`, Timestamp: ts}}
	require.NoError(t, c.SetHistory(ctx, 0, records))
	assert.Equal(t, time.Minute, mr.TTL(historyKey))

	got, ok, err := c.GetHistory(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "q2", got[0].Question)
	assert.True(t, ts.Equal(got[0].Timestamp))
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, got[0].SourceList())

	require.NoError(t, c.DeleteHistory(ctx))
	_, ok, err = c.GetHistory(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistoryCache_DirtyMarker(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	dirty, err := c.IsDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, c.MarkDirty(ctx))
	dirty, err = c.IsDirty(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)

	mr.FastForward(6 * time.Second)
	dirty, err = c.IsDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, c.MarkDirty(ctx))
	require.NoError(t, c.ClearDirty(ctx))
	dirty, err = c.IsDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestHistoryCache_CorruptPayload(t *testing.T) {
	c, mr := newCache(t)
	require.NoError(t, mr.Set(historyKey, "{not json"))
	_, _, err := c.GetHistory(context.Background())
	assert.Error(t, err)
}

func TestHistoryCache_SetHistoryRejectsListReadBeforeInvalidation(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	stale := []model.QueryRecord{{ID: 1, Question: "old"}}

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, c.DeleteHistory(ctx))
	assert.ErrorIs(t, c.SetHistory(ctx, v, stale), ErrHistoryChanged)
	_, ok, err := c.GetHistory(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err = c.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, c.MarkDirty(ctx))
	assert.ErrorIs(t, c.SetHistory(ctx, v, stale), ErrHistoryChanged)

	v, err = c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	require.NoError(t, c.SetHistory(ctx, v, stale))
	got, ok, err := c.GetHistory(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "old", got[0].Question)
}
