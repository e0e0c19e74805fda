package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docqa/internal/ai"
	"docqa/internal/app"
	"docqa/internal/cache"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/filestore"
	"docqa/internal/loader"
	"docqa/internal/lock"
	"docqa/internal/model"
	mysqlClient "docqa/internal/platform/mysql"
	postgresClient "docqa/internal/platform/postgres"
	rabbitmqClient "docqa/internal/platform/rabbitmq"
	redisClient "docqa/internal/platform/redis"
	sqliteClient "docqa/internal/platform/sqlite"
	"docqa/internal/rag"
	"docqa/internal/repository"
	"docqa/internal/vectorindex"
	"docqa/internal/vectorindex/local"
	"docqa/internal/vectorindex/pgvector"
	"docqa/internal/worker"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB       *gorm.DB
	Postgres *sqlx.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection

	Index         vectorindex.Index
	Files         *filestore.Store
	Loader        *loader.Registry
	Ingestor      *rag.Ingestor
	Query         *rag.QueryPipeline
	Documents     *app.DocumentService
	History       *app.HistoryService
	HistoryWorker *worker.HistoryPersistWorker

	StartedAt time.Time
}

// NewLogger builds the process logger at the configured level.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()})).
		With("app", cfg.App.Name)
}

// New opens every backend named by cfg and wires the services. Redis and RabbitMQ are optional;
// without them history is written synchronously and source locks are process-local.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg, nil)
	}
	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.Config

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	a.DB = db
	if err := db.AutoMigrate(&model.QueryRecord{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	if err := a.openIndex(ctx); err != nil {
		return err
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	var historyCache *cache.HistoryCache
	if cfg.Redis.Addr != "" {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			ClientName: cfg.App.Name,
		})
		if err != nil {
			return err
		}
		historyCache = cache.NewHistoryCache(
			a.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
		locker = lock.NewRedisLocker(a.Redis, "", time.Duration(cfg.Redis.LockTTLSeconds)*time.Second, a.Logger)
	}

	a.Files, err = filestore.New(cfg.App.UploadDir)
	if err != nil {
		return err
	}

	embedder := newEmbedder(cfg)
	generator := ai.NewChatGenerator(ai.NewOpenAICompatibleClient(), ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	}, time.Duration(cfg.LLM.TimeoutSeconds)*time.Second)

	a.Loader = loader.New()
	split := chunker.New(chunker.WithChunkSize(cfg.RAG.ChunkSize), chunker.WithOverlap(cfg.RAG.ChunkOverlap))
	a.Ingestor = rag.NewIngestor(a.Loader, split, embedder, a.Index, locker, a.Logger)

	recordRepo := repository.NewQueryRecordRepository(db)
	var publisher app.RecordPublisher
	if cfg.RabbitMQ.URL != "" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.HistoryPersistQueue)
		if err != nil {
			return err
		}
		publisher = rabbitmqClient.NewRecordPublisher(a.MQConn, cfg.RabbitMQ.HistoryPersistQueue)

		var invalidator worker.Invalidator
		if historyCache != nil {
			invalidator = historyCache
		}
		a.HistoryWorker = worker.NewHistoryPersistWorker(a.MQConn, recordRepo, invalidator, cfg.RabbitMQ.HistoryPersistQueue, a.Logger)
	}

	var historyCacheIface app.HistoryCache
	if historyCache != nil {
		historyCacheIface = historyCache
	}
	a.History = app.NewHistoryService(recordRepo, publisher, historyCacheIface, a.Files, a.Logger)

	a.Query = rag.NewQueryPipeline(
		rag.NewRetriever(embedder, a.Index),
		rag.NewComposer(generator, cfg.RAG.SnippetLength),
		a.History,
		rag.QueryConfig{
			QueryTopK:   cfg.RAG.QueryTopK,
			AskTopK:     cfg.RAG.AskTopK,
			MaxSources:  cfg.RAG.MaxSources,
			MaxDistance: cfg.RAG.MaxDistance,
		},
		a.Logger,
	)
	a.Documents = app.NewDocumentService(a.Files, a.Ingestor, a.Index, a.Loader, a.Logger)
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case "mysql":
		return mysqlClient.New(ctx, cfg.MySQLDSN())
	default:
		return sqliteClient.New(ctx, cfg.Database.SQLitePath)
	}
}

func (a *App) openIndex(ctx context.Context) error {
	cfg := a.Config.VectorIndex
	switch cfg.Backend {
	case "pgvector":
		pg, err := postgresClient.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		a.Postgres = pg
		idx, err := pgvector.Open(ctx, pg, pgvector.Config{Table: cfg.Table, Dimension: cfg.Dimension}, a.Logger)
		if err != nil {
			return err
		}
		a.Index = idx
	default:
		idx, err := local.Open(ctx, a.DB, a.Logger)
		if err != nil {
			return err
		}
		a.Index = idx
	}
	return nil
}

func newEmbedder(cfg *config.Config) ai.Embedder {
	if cfg.Embedding.Provider == "openai" {
		return ai.NewRemoteEmbedder(ai.NewOpenAICompatibleClient(), ai.EmbeddingConfig{
			BaseURL:           cfg.Embedding.BaseURL,
			APIKey:            cfg.Embedding.APIKey,
			Model:             cfg.Embedding.Model,
			Dimensions:        cfg.Embedding.Dimensions,
			BatchSize:         cfg.Embedding.BatchSize,
			Timeout:           time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		})
	}
	return ai.NewHashEmbedder(cfg.Embedding.Dimensions)
}

// StartWorker starts the history consumer when RabbitMQ is configured.
func (a *App) StartWorker(ctx context.Context) error {
	if a.HistoryWorker == nil {
		return nil
	}
	if err := a.HistoryWorker.Start(ctx); err != nil {
		return fmt.Errorf("start history worker failed: %w", err)
	}
	return nil
}

// Close waits for pending history writes, then releases every backend.
func (a *App) Close() error {
	var errs []error
	if a.Query != nil {
		a.Query.Wait()
	}
	if a.HistoryWorker != nil {
		a.HistoryWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Postgres != nil {
		if err := a.Postgres.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
