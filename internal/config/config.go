package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates every ambient configuration knob, grouped the way the
// teacher's config.Config groups server/database/router/auth sub-structs.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Embedding  EmbeddingConfig
	LLM        LLMConfig
	Retrieval  RetrievalConfig
	Memory     MemoryConfig
	Pipeline   PipelineConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type StorageConfig struct {
	Backend   string // "local" | "remote"
	LocalRoot string
	ArtifactRoot string
}

type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	BatchSize int
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	CheapModel     string
	ExpensiveModel string
	Timeout        time.Duration
	MaxRetries     int
}

// RetrievalConfig holds the process-wide tuning knobs spec §5 calls out as
// shared configuration: RRF k, rerank token limit, compression rate,
// diversity ratio. The embedding batch size is in EmbeddingConfig.
type RetrievalConfig struct {
	RRFK                   int
	DefaultTopK             int
	RerankTokenBudget       int
	CompressionRatio        float64
	DiversityRatio          float64
	MaxExpansionPerChunk    int
	DirectSynthesisThreshold int
}

type MemoryConfig struct {
	MaxHistoryMessages   int
	VerbatimMessageCount int
	SummaryTriggerRatio  float64
	MinMessagesForSummary int
	MaxKeyFacts          int
	SummaryMaxChars      int
	ModelInputBudget     int
}

type PipelineConfig struct {
	WorkerCount      int
	QueueDepth       int
	NarrativeBatchSize int
}

// Load builds a Config from environment variables, following the teacher's
// getEnv/getEnvAsInt/getEnvAsBool helper shape (config/config.go).
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			DBName:       getEnv("DB_NAME", "docintel"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Backend:      getEnv("STORAGE_BACKEND", "local"),
			LocalRoot:    getEnv("STORAGE_LOCAL_ROOT", "./data/documents"),
			ArtifactRoot: getEnv("STORAGE_ARTIFACT_ROOT", "./data/artifacts"),
		},
		Embedding: EmbeddingConfig{
			BaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:9100"),
			APIKey:    getEnv("EMBEDDING_API_KEY", ""),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-default"),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", 1536),
			BatchSize: getEnvAsInt("EMBEDDING_BATCH_SIZE", 32),
		},
		LLM: LLMConfig{
			BaseURL:        getEnv("LLM_BASE_URL", "http://localhost:9200"),
			APIKey:         getEnv("LLM_API_KEY", ""),
			CheapModel:     getEnv("LLM_CHEAP_MODEL", "cheap-summarizer"),
			ExpensiveModel: getEnv("LLM_EXPENSIVE_MODEL", "synthesis-grade"),
			Timeout:        time.Duration(getEnvAsInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,
			MaxRetries:     getEnvAsInt("LLM_MAX_RETRIES", 3),
		},
		Retrieval: RetrievalConfig{
			RRFK:                     getEnvAsInt("RETRIEVAL_RRF_K", 60),
			DefaultTopK:              getEnvAsInt("RETRIEVAL_TOP_K", 10),
			RerankTokenBudget:        getEnvAsInt("RETRIEVAL_RERANK_TOKEN_BUDGET", 1500),
			CompressionRatio:         getEnvAsFloat("RETRIEVAL_COMPRESSION_RATIO", 0.5),
			DiversityRatio:           getEnvAsFloat("RETRIEVAL_DIVERSITY_RATIO", 0.5),
			MaxExpansionPerChunk:     getEnvAsInt("RETRIEVAL_MAX_EXPANSION_PER_CHUNK", 2),
			DirectSynthesisThreshold: getEnvAsInt("WORKFLOW_DIRECT_THRESHOLD_TOKENS", 10000),
		},
		Memory: MemoryConfig{
			MaxHistoryMessages:    getEnvAsInt("MEMORY_MAX_HISTORY_MESSAGES", 50),
			VerbatimMessageCount:  getEnvAsInt("MEMORY_VERBATIM_MESSAGE_COUNT", 6),
			SummaryTriggerRatio:   getEnvAsFloat("MEMORY_SUMMARY_TRIGGER_RATIO", 0.7),
			MinMessagesForSummary: getEnvAsInt("MEMORY_MIN_MESSAGES_FOR_SUMMARY", 6),
			MaxKeyFacts:           getEnvAsInt("MEMORY_MAX_KEY_FACTS", 10),
			SummaryMaxChars:       getEnvAsInt("MEMORY_SUMMARY_MAX_CHARS", 2000),
			ModelInputBudget:      getEnvAsInt("MEMORY_MODEL_INPUT_BUDGET", 16000),
		},
		Pipeline: PipelineConfig{
			WorkerCount:        getEnvAsInt("PIPELINE_WORKER_COUNT", 4),
			QueueDepth:         getEnvAsInt("PIPELINE_QUEUE_DEPTH", 256),
			NarrativeBatchSize: getEnvAsInt("PIPELINE_NARRATIVE_BATCH_SIZE", 10),
		},
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Retrieval.RRFK <= 0 {
		return fmt.Errorf("retrieval rrf_k must be positive")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.Memory.SummaryTriggerRatio <= 0 || c.Memory.SummaryTriggerRatio > 1 {
		return fmt.Errorf("memory summary_trigger_ratio must be in (0,1]")
	}
	return nil
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
