package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docqa/internal/model"
)

const (
	historyKey = "docqa:history:list"
	dirtyKey   = "docqa:history:dirty"
	versionKey = "docqa:history:version"
)

// ErrHistoryChanged is returned by SetHistory when the history was invalidated after the
// caller read the version it passed in.
var ErrHistoryChanged = errors.New("history changed since version was read")

// HistoryCache caches the full query history list. The dirty marker is set when a record is
// written asynchronously so readers skip the cache until the worker has persisted it.
// Every invalidation bumps a version counter; a list is only cached against the version
// that was current before it was read from the database.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context) ([]model.QueryRecord, bool, error) {
	raw, err := c.client.Get(ctx, historyKey).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var records []model.QueryRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return records, true, nil
}

// Version returns the current invalidation counter. Read it before loading the list that
// will be passed to SetHistory.
func (c *HistoryCache) Version(ctx context.Context) (int64, error) {
	v, err := versionOf(c.client.Get(ctx, versionKey))
	if err != nil {
		return 0, fmt.Errorf("redis get history version failed: %w", err)
	}
	return v, nil
}

// SetHistory caches records if no invalidation happened since version was read.
func (c *HistoryCache) SetHistory(ctx context.Context, version int64, records []model.QueryRecord) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	err = c.client.Watch(ctx, func(tx *redisv9.Tx) error {
		current, err := versionOf(tx.Get(ctx, versionKey))
		if err != nil {
			return err
		}
		if current != version {
			return ErrHistoryChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
			pipe.Set(ctx, historyKey, payload, c.historyTTL)
			return nil
		})
		return err
	}, versionKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrHistoryChanged), errors.Is(err, redisv9.TxFailedErr):
		return ErrHistoryChanged
	default:
		return fmt.Errorf("redis set history failed: %w", err)
	}
}

func (c *HistoryCache) DeleteHistory(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Del(ctx, historyKey)
		pipe.Incr(ctx, versionKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) MarkDirty(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Set(ctx, dirtyKey, "1", c.dirtyMarkerTTL)
		pipe.Incr(ctx, versionKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context) (bool, error) {
	exists, err := c.client.Exists(ctx, dirtyKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

// ClearDirty drops the marker once the pending record is durable.
func (c *HistoryCache) ClearDirty(ctx context.Context) error {
	if err := c.client.Del(ctx, dirtyKey).Err(); err != nil {
		return fmt.Errorf("redis clear dirty marker failed: %w", err)
	}
	return nil
}

func versionOf(cmd *redisv9.StringCmd) (int64, error) {
	v, err := cmd.Int64()
	if errors.Is(err, redisv9.Nil) {
		return 0, nil
	}
	return v, err
}
