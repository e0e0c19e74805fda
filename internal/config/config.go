package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig         `toml:"app" yaml:"app"`
	Database    DatabaseConfig    `toml:"database" yaml:"database"`
	VectorIndex VectorIndexConfig `toml:"vector_index" yaml:"vector_index"`
	Redis       RedisConfig       `toml:"redis" yaml:"redis"`
	RabbitMQ    RabbitMQConfig    `toml:"rabbitmq" yaml:"rabbitmq"`
	LLM         LLMConfig         `toml:"llm" yaml:"llm"`
	Embedding   EmbeddingConfig   `toml:"embedding" yaml:"embedding"`
	RAG         RAGConfig         `toml:"rag" yaml:"rag"`
	Reconcile   ReconcileConfig   `toml:"reconcile" yaml:"reconcile"`
}

type AppConfig struct {
	Name        string   `toml:"name" yaml:"name"`
	Env         string   `toml:"env" yaml:"env"`
	Host        string   `toml:"host" yaml:"host"`
	Port        int      `toml:"port" yaml:"port"`
	GinMode     string   `toml:"gin_mode" yaml:"gin_mode"`
	LogLevel    string   `toml:"log_level" yaml:"log_level"`
	UploadDir   string   `toml:"upload_dir" yaml:"upload_dir"`
	MaxUploadMB int      `toml:"max_upload_mb" yaml:"max_upload_mb"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
}

// DatabaseConfig selects the gorm database holding query history and the local vector index.
type DatabaseConfig struct {
	Driver     string      `toml:"driver" yaml:"driver"` // sqlite or mysql
	SQLitePath string      `toml:"sqlite_path" yaml:"sqlite_path"`
	MySQL      MySQLConfig `toml:"mysql" yaml:"mysql"`
}

type MySQLConfig struct {
	Host     string `toml:"host" yaml:"host"`
	Port     int    `toml:"port" yaml:"port"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`
	DB       string `toml:"db" yaml:"db"`
	Params   string `toml:"params" yaml:"params"`
}

type VectorIndexConfig struct {
	Backend     string `toml:"backend" yaml:"backend"` // local or pgvector
	PostgresDSN string `toml:"postgres_dsn" yaml:"postgres_dsn"`
	Table       string `toml:"table" yaml:"table"`
	Dimension   int    `toml:"dimension" yaml:"dimension"`
}

// RedisConfig is optional: an empty Addr disables the history cache and the shared lock.
type RedisConfig struct {
	Addr                   string `toml:"addr" yaml:"addr"`
	Password               string `toml:"password" yaml:"password"`
	DB                     int    `toml:"db" yaml:"db"`
	HistoryTTLSeconds      int    `toml:"history_ttl_seconds" yaml:"history_ttl_seconds"`
	HistoryDirtyTTLSeconds int    `toml:"history_dirty_ttl_seconds" yaml:"history_dirty_ttl_seconds"`
	LockTTLSeconds         int    `toml:"lock_ttl_seconds" yaml:"lock_ttl_seconds"`
}

// RabbitMQConfig is optional: an empty URL writes history synchronously.
type RabbitMQConfig struct {
	URL                 string `toml:"url" yaml:"url"`
	HistoryPersistQueue string `toml:"history_persist_queue" yaml:"history_persist_queue"`
}

type LLMConfig struct {
	BaseURL        string  `toml:"base_url" yaml:"base_url"`
	APIKey         string  `toml:"api_key" yaml:"api_key"`
	Model          string  `toml:"model" yaml:"model"`
	Temperature    float64 `toml:"temperature" yaml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

type EmbeddingConfig struct {
	Provider          string  `toml:"provider" yaml:"provider"` // openai or hash
	BaseURL           string  `toml:"base_url" yaml:"base_url"`
	APIKey            string  `toml:"api_key" yaml:"api_key"`
	Model             string  `toml:"model" yaml:"model"`
	Dimensions        int     `toml:"dimensions" yaml:"dimensions"`
	BatchSize         int     `toml:"batch_size" yaml:"batch_size"`
	TimeoutSeconds    int     `toml:"timeout_seconds" yaml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
}

type RAGConfig struct {
	ChunkSize     int     `toml:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap  int     `toml:"chunk_overlap" yaml:"chunk_overlap"`
	QueryTopK     int     `toml:"query_top_k" yaml:"query_top_k"`
	AskTopK       int     `toml:"ask_top_k" yaml:"ask_top_k"`
	MaxSources    int     `toml:"max_sources" yaml:"max_sources"`
	MaxDistance   float64 `toml:"max_distance" yaml:"max_distance"`
	SnippetLength int     `toml:"snippet_length" yaml:"snippet_length"`
}

// ReconcileConfig controls the periodic orphan sweep in serve; 0 disables it.
type ReconcileConfig struct {
	IntervalSeconds int `toml:"interval_seconds" yaml:"interval_seconds"`
}

// Load builds the configuration from defaults, the config file and the environment, in that
// order. A .env file in the working directory is loaded into the environment first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if err := decodeFile(configPath, cfg); err != nil {
			return nil, err
		}
	}

	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file failed: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("decode config file failed: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("decode config file failed: %w", err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.VectorIndex.Backend {
	case "local":
	case "pgvector":
		if c.VectorIndex.PostgresDSN == "" {
			return fmt.Errorf("vector_index.postgres_dsn is required for the pgvector backend")
		}
	default:
		return fmt.Errorf("unknown vector index backend %q", c.VectorIndex.Backend)
	}
	switch c.Embedding.Provider {
	case "openai", "hash":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.RAG.ChunkSize <= 0 || c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag chunk_overlap must be in [0, chunk_size)")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) MySQLDSN() string {
	m := c.Database.MySQL
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", m.User, m.Password, m.Host, m.Port, m.DB, m.Params)
}

// SlogLevel maps app.log_level onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.IntervalSeconds) * time.Second
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "docqa",
			Env:         "dev",
			Host:        "0.0.0.0",
			Port:        8000,
			GinMode:     "debug",
			LogLevel:    "info",
			UploadDir:   "uploaded_docs",
			MaxUploadMB: 32,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "data/docqa.db",
			MySQL: MySQLConfig{
				Host:   "127.0.0.1",
				Port:   3306,
				User:   "root",
				DB:     "docqa",
				Params: "parseTime=true&loc=UTC&charset=utf8mb4",
			},
		},
		VectorIndex: VectorIndexConfig{
			Backend: "local",
			Table:   "chunk_embeddings",
		},
		Redis: RedisConfig{
			HistoryTTLSeconds:      60,
			HistoryDirtyTTLSeconds: 5,
			LockTTLSeconds:         30,
		},
		RabbitMQ: RabbitMQConfig{
			HistoryPersistQueue: "docqa.history.persist",
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4.1-mini",
			Temperature:    0.2,
			TimeoutSeconds: 60,
		},
		Embedding: EmbeddingConfig{
			Provider:          "hash",
			BaseURL:           "https://api.openai.com/v1",
			Model:             "text-embedding-3-small",
			BatchSize:         10,
			TimeoutSeconds:    30,
			RequestsPerSecond: 5,
		},
		RAG: RAGConfig{
			ChunkSize:     500,
			ChunkOverlap:  50,
			QueryTopK:     6,
			AskTopK:       4,
			MaxSources:    4,
			MaxDistance:   1.2,
			SnippetLength: 200,
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.UploadDir = getEnv("UPLOAD_DIR", cfg.App.UploadDir)
	cfg.App.MaxUploadMB = getEnvAsInt("MAX_UPLOAD_MB", cfg.App.MaxUploadMB)
	cfg.App.CORSOrigins = getEnvAsList("CORS_ORIGINS", cfg.App.CORSOrigins)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.SQLitePath = getEnv("SQLITE_PATH", cfg.Database.SQLitePath)
	cfg.Database.MySQL.Host = getEnv("MYSQL_HOST", cfg.Database.MySQL.Host)
	cfg.Database.MySQL.Port = getEnvAsInt("MYSQL_PORT", cfg.Database.MySQL.Port)
	cfg.Database.MySQL.User = getEnv("MYSQL_USER", cfg.Database.MySQL.User)
	cfg.Database.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.Database.MySQL.Password)
	cfg.Database.MySQL.DB = getEnv("MYSQL_DB", cfg.Database.MySQL.DB)
	cfg.Database.MySQL.Params = getEnv("MYSQL_PARAMS", cfg.Database.MySQL.Params)

	cfg.VectorIndex.Backend = getEnv("VECTOR_INDEX_BACKEND", cfg.VectorIndex.Backend)
	cfg.VectorIndex.PostgresDSN = getEnv("POSTGRES_DSN", cfg.VectorIndex.PostgresDSN)
	cfg.VectorIndex.Table = getEnv("VECTOR_INDEX_TABLE", cfg.VectorIndex.Table)
	cfg.VectorIndex.Dimension = getEnvAsInt("VECTOR_INDEX_DIMENSION", cfg.VectorIndex.Dimension)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.HistoryTTLSeconds = getEnvAsInt("REDIS_HISTORY_TTL_SECONDS", cfg.Redis.HistoryTTLSeconds)
	cfg.Redis.HistoryDirtyTTLSeconds = getEnvAsInt("REDIS_HISTORY_DIRTY_TTL_SECONDS", cfg.Redis.HistoryDirtyTTLSeconds)
	cfg.Redis.LockTTLSeconds = getEnvAsInt("REDIS_LOCK_TTL_SECONDS", cfg.Redis.LockTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.HistoryPersistQueue = getEnv("RABBITMQ_HISTORY_PERSIST_QUEUE", cfg.RabbitMQ.HistoryPersistQueue)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", getEnv("OPENAI_API_KEY", cfg.LLM.APIKey))
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Temperature = getEnvAsFloat("LLM_TEMPERATURE", cfg.LLM.Temperature)
	cfg.LLM.TimeoutSeconds = getEnvAsInt("LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds)

	cfg.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = getEnv("EMBEDDING_API_KEY", getEnv("OPENAI_API_KEY", cfg.Embedding.APIKey))
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimensions = getEnvAsInt("EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)
	cfg.Embedding.BatchSize = getEnvAsInt("EMBEDDING_BATCH_SIZE", cfg.Embedding.BatchSize)
	cfg.Embedding.TimeoutSeconds = getEnvAsInt("EMBEDDING_TIMEOUT_SECONDS", cfg.Embedding.TimeoutSeconds)
	cfg.Embedding.RequestsPerSecond = getEnvAsFloat("EMBEDDING_REQUESTS_PER_SECOND", cfg.Embedding.RequestsPerSecond)

	cfg.RAG.ChunkSize = getEnvAsInt("RAG_CHUNK_SIZE", cfg.RAG.ChunkSize)
	cfg.RAG.ChunkOverlap = getEnvAsInt("RAG_CHUNK_OVERLAP", cfg.RAG.ChunkOverlap)
	cfg.RAG.QueryTopK = getEnvAsInt("RAG_QUERY_TOP_K", cfg.RAG.QueryTopK)
	cfg.RAG.AskTopK = getEnvAsInt("RAG_ASK_TOP_K", cfg.RAG.AskTopK)
	cfg.RAG.MaxSources = getEnvAsInt("RAG_MAX_SOURCES", cfg.RAG.MaxSources)
	cfg.RAG.MaxDistance = getEnvAsFloat("RAG_MAX_DISTANCE", cfg.RAG.MaxDistance)
	cfg.RAG.SnippetLength = getEnvAsInt("RAG_SNIPPET_LENGTH", cfg.RAG.SnippetLength)

	cfg.Reconcile.IntervalSeconds = getEnvAsInt("RECONCILE_INTERVAL_SECONDS", cfg.Reconcile.IntervalSeconds)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
