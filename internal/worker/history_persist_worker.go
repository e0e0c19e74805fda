package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docqa/internal/model"
	"docqa/internal/platform/rabbitmq"
)

// RecordStore persists query records.
type RecordStore interface {
	Create(ctx context.Context, record *model.QueryRecord) error
}

// Invalidator is told when a record became durable so cached history can be dropped.
type Invalidator interface {
	DeleteHistory(ctx context.Context) error
	ClearDirty(ctx context.Context) error
}

// HistoryPersistWorker consumes query records published by the query pipeline and stores them.
type HistoryPersistWorker struct {
	conn      *amqp.Connection
	repo      RecordStore
	cache     Invalidator
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHistoryPersistWorker(conn *amqp.Connection, repo RecordStore, cache Invalidator, queueName string, logger *slog.Logger) *HistoryPersistWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryPersistWorker{
		conn:      conn,
		repo:      repo,
		cache:     cache,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *HistoryPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.Handle(workerCtx, d.Body); err != nil {
					w.logger.Warn("history worker dropped record", "error", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("history worker started", "queue", w.queueName)
	return nil
}

// Handle decodes and persists one delivery body.
func (w *HistoryPersistWorker) Handle(ctx context.Context, body []byte) error {
	var record model.QueryRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return fmt.Errorf("decode query record failed: %w", err)
	}
	record.ID = 0
	if err := w.repo.Create(ctx, &record); err != nil {
		return fmt.Errorf("persist query record failed: %w", err)
	}
	if w.cache != nil {
		if err := w.cache.DeleteHistory(ctx); err != nil {
			w.logger.Warn("history cache invalidation failed", "error", err)
		}
		if err := w.cache.ClearDirty(ctx); err != nil {
			w.logger.Warn("history dirty marker clear failed", "error", err)
		}
	}
	return nil
}

func (w *HistoryPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
