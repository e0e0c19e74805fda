package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"docqa/internal/domain"
)

// Recorder persists answered questions.
type Recorder interface {
	Record(ctx context.Context, record domain.QueryRecord) error
}

type QueryConfig struct {
	// QueryTopK is how many candidates Answer retrieves before filtering.
	QueryTopK int
	// AskTopK is how many chunks Ask uses, unfiltered.
	AskTopK int
	// MaxSources caps the chunks Answer keeps after filtering.
	MaxSources int
	// MaxDistance is exclusive: only hits with distance < MaxDistance are kept.
	MaxDistance   float64
	RecordTimeout time.Duration
}

func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		QueryTopK:     6,
		AskTopK:       4,
		MaxSources:    4,
		MaxDistance:   1.2,
		RecordTimeout: 5 * time.Second,
	}
}

type QueryPipeline struct {
	retriever *Retriever
	composer  *Composer
	recorder  Recorder
	cfg       QueryConfig
	logger    *slog.Logger

	wg sync.WaitGroup
}

// NewQueryPipeline wires the query flow. A nil recorder disables history.
func NewQueryPipeline(retriever *Retriever, composer *Composer, recorder Recorder, cfg QueryConfig, logger *slog.Logger) *QueryPipeline {
	def := DefaultQueryConfig()
	if cfg.QueryTopK <= 0 {
		cfg.QueryTopK = def.QueryTopK
	}
	if cfg.AskTopK <= 0 {
		cfg.AskTopK = def.AskTopK
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = def.MaxSources
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = def.MaxDistance
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = def.RecordTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryPipeline{
		retriever: retriever,
		composer:  composer,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger,
	}
}

// Answer retrieves, filters by distance, caps the sources, composes the answer and records it in
// the background. Recording failures are logged only.
func (q *QueryPipeline) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	results, err := q.retriever.Retrieve(ctx, question, q.cfg.QueryTopK)
	if err != nil {
		return nil, err
	}
	ranked := FilterResults(results, q.cfg.MaxDistance, q.cfg.MaxSources)

	answer, err := q.composer.Compose(ctx, question, ranked)
	if err != nil {
		return nil, err
	}

	sources := make([]string, len(answer.Sources))
	for i, s := range answer.Sources {
		sources[i] = s.Source
	}
	q.record(domain.QueryRecord{
		Question:  question,
		Answer:    answer.Answer,
		Context:   JoinContext(ranked),
		Sources:   sources,
		Timestamp: time.Now().UTC(),
	})
	return answer, nil
}

// Ask answers from the nearest AskTopK chunks without thresholding and records nothing.
func (q *QueryPipeline) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	results, err := q.retriever.Retrieve(ctx, question, q.cfg.AskTopK)
	if err != nil {
		return "", err
	}
	answer, err := q.composer.Compose(ctx, question, results)
	if err != nil {
		return "", err
	}
	return answer.Answer, nil
}

// Wait blocks until background recordings have finished.
func (q *QueryPipeline) Wait() {
	q.wg.Wait()
}

func (q *QueryPipeline) record(rec domain.QueryRecord) {
	if q.recorder == nil {
		return
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.RecordTimeout)
		defer cancel()
		if err := q.recorder.Record(ctx, rec); err != nil {
			q.logger.Warn("record query history failed", "error", err)
		}
	}()
}

// FilterResults keeps results with distance strictly below maxDistance, at most limit of them.
func FilterResults(results []domain.RetrievalResult, maxDistance float64, limit int) []domain.RetrievalResult {
	kept := make([]domain.RetrievalResult, 0, limit)
	for _, r := range results {
		if len(kept) == limit {
			break
		}
		if r.Distance < maxDistance {
			kept = append(kept, r)
		}
	}
	return kept
}
