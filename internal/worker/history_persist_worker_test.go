package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/model"
)

type memoryStore struct {
	records []model.QueryRecord
	err     error
}

func (s *memoryStore) Create(_ context.Context, record *model.QueryRecord) error {
	if s.err != nil {
		return s.err
	}
	record.ID = uint(len(s.records) + 1)
	s.records = append(s.records, *record)
	return nil
}

type countingInvalidator struct {
	deletes, clears int
}

func (c *countingInvalidator) DeleteHistory(context.Context) error {
	c.deletes++
	return nil
}

func (c *countingInvalidator) ClearDirty(context.Context) error {
	c.clears++
	return errors.New("redis unavailable")
}

func TestHistoryPersistWorker_Handle(t *testing.T) {
	store := &memoryStore{}
	inv := &countingInvalidator{}
	w := NewHistoryPersistWorker(nil, store, inv, "history", nil)

	ts := time.Date(2024, 3, 9, 8, 30, 0, 0, time.UTC)
	body, err := json.Marshal(model.QueryRecord{ID: 99, Question: "q", Answer: "a", Sources: `["a.pdf"]`, Timestamp: ts})
	require.NoError(t, err)

	require.NoError(t, w.Handle(context.Background(), body))
	require.Len(t, store.records, 1)
	assert.Equal(t, uint(1), store.records[0].ID, "ids are assigned by the store")
	assert.Equal(t, "q", store.records[0].Question)
	assert.True(t, ts.Equal(store.records[0].Timestamp))
	assert.Equal(t, 1, inv.deletes)
	assert.Equal(t, 1, inv.clears, "invalidation errors are logged only")
}

func TestHistoryPersistWorker_HandleFailures(t *testing.T) {
	w := NewHistoryPersistWorker(nil, &memoryStore{}, nil, "history", nil)
	assert.Error(t, w.Handle(context.Background(), []byte("{broken")))

	failing := NewHistoryPersistWorker(nil, &memoryStore{err: errors.New("disk full")}, nil, "history", nil)
	err := failing.Handle(context.Background(), []byte(`{"question":"q","answer":"a"}`))
	assert.ErrorContains(t, err, "disk full")
}

func TestHistoryPersistWorker_CloseWithoutStart(t *testing.T) {
	w := NewHistoryPersistWorker(nil, &memoryStore{}, nil, "history", nil)
	w.Close()
}
