package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"docqa/internal/cache"
	"docqa/internal/domain"
	"docqa/internal/model"
	"docqa/internal/repository"
)

const (
	mostAskedLimit      = 5
	mostReferencedLimit = 1
)

// RecordPublisher hands query records to the asynchronous history worker.
type RecordPublisher interface {
	Publish(ctx context.Context, record model.QueryRecord) error
}

// HistoryCache caches the history list. SetHistory must refuse a list when the cache was
// invalidated after version was read, returning cache.ErrHistoryChanged.
type HistoryCache interface {
	GetHistory(ctx context.Context) ([]model.QueryRecord, bool, error)
	Version(ctx context.Context) (int64, error)
	SetHistory(ctx context.Context, version int64, records []model.QueryRecord) error
	DeleteHistory(ctx context.Context) error
	MarkDirty(ctx context.Context) error
	IsDirty(ctx context.Context) (bool, error)
}

// UploadLister lists the names of stored uploads.
type UploadLister interface {
	List() ([]string, error)
}

type HistoryItem struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Timestamp string `json:"timestamp"`
}

type QuestionCount struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
}

type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type FileCount struct {
	Filename string `json:"filename"`
	Count    int    `json:"count"`
}

type Analytics struct {
	NumUploads             int             `json:"num_uploads"`
	MostAskedQuestions     []QuestionCount `json:"most_asked_questions"`
	UsageOverTime          []DateCount     `json:"usage_over_time"`
	MostReferencedDocument []FileCount     `json:"most_referenced_document"`
}

// HistoryService records answered questions and serves history and analytics.
// With a publisher, records are persisted by the worker; otherwise they are written directly.
type HistoryService struct {
	repo      *repository.QueryRecordRepository
	publisher RecordPublisher
	cache     HistoryCache
	uploads   UploadLister
	logger    *slog.Logger
}

func NewHistoryService(
	repo *repository.QueryRecordRepository,
	publisher RecordPublisher,
	cache HistoryCache,
	uploads UploadLister,
	logger *slog.Logger,
) *HistoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryService{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		uploads:   uploads,
		logger:    logger,
	}
}

func (s *HistoryService) Record(ctx context.Context, record domain.QueryRecord) error {
	row := model.NewQueryRecord(record)
	if s.publisher != nil {
		if s.cache != nil {
			if err := s.cache.MarkDirty(ctx); err != nil {
				s.logger.Warn("history cache mark dirty failed", "error", err)
			}
			if err := s.cache.DeleteHistory(ctx); err != nil {
				s.logger.Warn("history cache invalidation failed", "error", err)
			}
		}
		if err := s.publisher.Publish(ctx, row); err != nil {
			return fmt.Errorf("enqueue query record failed: %w", err)
		}
		return nil
	}

	if err := s.repo.Create(ctx, &row); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.DeleteHistory(ctx); err != nil {
			s.logger.Warn("history cache invalidation failed", "error", err)
		}
	}
	return nil
}

// History returns every record, newest first.
func (s *HistoryService) History(ctx context.Context) ([]HistoryItem, error) {
	records, err := s.records(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]HistoryItem, len(records))
	for i, r := range records {
		items[i] = HistoryItem{
			Question:  r.Question,
			Answer:    r.Answer,
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
		}
	}
	return items, nil
}

func (s *HistoryService) records(ctx context.Context) ([]model.QueryRecord, error) {
	var (
		version   int64
		cacheable bool
	)
	if s.cache != nil {
		version, cacheable = s.cacheVersion(ctx)
		if cacheable {
			cached, ok, err := s.cache.GetHistory(ctx)
			if err != nil {
				s.logger.Warn("history cache read failed", "error", err)
			}
			if ok {
				return cached, nil
			}
		}
	}

	records, err := s.repo.ListNewestFirst(ctx, 0)
	if err != nil {
		return nil, err
	}
	if cacheable {
		err := s.cache.SetHistory(ctx, version, records)
		switch {
		case errors.Is(err, cache.ErrHistoryChanged):
			s.logger.Debug("history changed while loading, not caching")
		case err != nil:
			s.logger.Warn("history cache write failed", "error", err)
		}
	}
	return records, nil
}

// cacheVersion reads the version before the dirty marker so any write landing after
// either read invalidates the list loaded afterwards.
func (s *HistoryService) cacheVersion(ctx context.Context) (int64, bool) {
	version, err := s.cache.Version(ctx)
	if err != nil {
		s.logger.Warn("history cache unavailable", "error", err)
		return 0, false
	}
	dirty, err := s.cache.IsDirty(ctx)
	if err != nil {
		s.logger.Warn("history cache unavailable", "error", err)
		return 0, false
	}
	return version, !dirty
}

// Analytics aggregates the history. Ties in the rankings keep first-seen order.
func (s *HistoryService) Analytics(ctx context.Context) (*Analytics, error) {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	numUploads := 0
	if s.uploads != nil {
		names, err := s.uploads.List()
		if err != nil {
			return nil, err
		}
		numUploads = len(names)
	}

	questions := newCounter()
	days := make(map[string]int)
	files := newCounter()
	for _, r := range records {
		questions.add(r.Question)
		days[r.Timestamp.UTC().Format(time.DateOnly)]++
		for _, src := range r.SourceList() {
			files.add(src)
		}
	}

	out := &Analytics{
		NumUploads:             numUploads,
		MostAskedQuestions:     []QuestionCount{},
		UsageOverTime:          make([]DateCount, 0, len(days)),
		MostReferencedDocument: []FileCount{},
	}
	for _, kc := range questions.mostCommon(mostAskedLimit) {
		out.MostAskedQuestions = append(out.MostAskedQuestions, QuestionCount{Question: kc.key, Count: kc.count})
	}
	for day, n := range days {
		out.UsageOverTime = append(out.UsageOverTime, DateCount{Date: day, Count: n})
	}
	sort.Slice(out.UsageOverTime, func(i, j int) bool {
		return out.UsageOverTime[i].Date < out.UsageOverTime[j].Date
	})
	for _, kc := range files.mostCommon(mostReferencedLimit) {
		out.MostReferencedDocument = append(out.MostReferencedDocument, FileCount{Filename: kc.key, Count: kc.count})
	}
	return out, nil
}

type keyCount struct {
	key   string
	count int
}

// counter counts keys and remembers first-seen order.
type counter struct {
	order []string
	n     map[string]int
}

func newCounter() *counter {
	return &counter{n: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.n[key]; !ok {
		c.order = append(c.order, key)
	}
	c.n[key]++
}

func (c *counter) mostCommon(limit int) []keyCount {
	out := make([]keyCount, len(c.order))
	for i, k := range c.order {
		out[i] = keyCount{key: k, count: c.n[k]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
