package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Ingest   IngestConfig
	Chat     ChatConfig
	Keys     APIKeys
	Ai       AIConfig
	Otel     OtelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	HubLogFilePath     string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	UploadDir          string
	MaxUploadBytes     int64
	AllowedExtensions  []string
	// StorageDriver selects the persistence backend: "postgres" or "memory".
	StorageDriver string
}

func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

type DatabaseConfig struct {
	Connection string
	Verbose    bool
}

type IngestConfig struct {
	Topic          string
	Workers        int
	ChunkSize      int
	ChunkOverlap   int
	ExtractTimeout time.Duration
	EmbedTimeout   time.Duration
	// StaleAfter is how long a document may sit in processing before the
	// sweeper puts it back to pending. Zero disables the sweeper.
	StaleAfter    time.Duration
	SweepSchedule string
}

type ChatConfig struct {
	TopK              int
	GenerationTimeout time.Duration
	MaxTokens         int
	Temperature       float64
}

type APIKeys struct {
	GoogleGemini string
	Anthropic    string
	Jina         string
}

type AIConfig struct {
	EmbeddingProvider  string // "ollama", "gemini" or "jina"
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingRPS       float64
	QueryCacheTTL      time.Duration
	OllamaBaseURL      string
	LLMProvider        string // "ollama" or "anthropic"
	LLMModel           string
}

type OtelConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			HubLogFilePath:     getEnv("HUB_LOG_FILE_PATH", "logs/hub.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			UploadDir:          getEnv("UPLOAD_DIR", "uploads"),
			MaxUploadBytes:     int64(getEnvAsInt("MAX_FILE_SIZE", 50*1024*1024)),
			AllowedExtensions:  getEnvAsList("ALLOWED_EXTENSIONS", []string{"pdf", "docx", "doc", "txt", "md"}),
			StorageDriver:      getEnv("STORAGE_DRIVER", "postgres"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			Verbose:    getEnvAsBool("DB_LOG_VERBOSE", false),
		},
		Ingest: IngestConfig{
			Topic:          getEnv("INGEST_TOPIC_NAME", "DOCUMENT_INGEST"),
			Workers:        getEnvAsInt("INGEST_WORKERS", 4),
			ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
			ExtractTimeout: getEnvAsDuration("EXTRACT_TIMEOUT", 2*time.Minute),
			EmbedTimeout:   getEnvAsDuration("EMBED_TIMEOUT", 30*time.Second),
			StaleAfter:     getEnvAsDuration("STALE_PROCESSING_TIMEOUT", 15*time.Minute),
			SweepSchedule:  getEnv("STALE_SWEEP_SCHEDULE", "@every 1m"),
		},
		Chat: ChatConfig{
			TopK:              getEnvAsInt("RETRIEVAL_TOP_K", 5),
			GenerationTimeout: getEnvAsDuration("GENERATION_TIMEOUT", 2*time.Minute),
			MaxTokens:         getEnvAsInt("LLM_MAX_TOKENS", 1000),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 0.2),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			Anthropic:    getEnv("ANTHROPIC_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider:  getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:     getEnv("EMBEDDING_MODEL", ""),
			EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 768),
			EmbeddingRPS:       getEnvAsFloat("EMBEDDING_REQUESTS_PER_SECOND", 0),
			QueryCacheTTL:      getEnvAsDuration("QUERY_EMBEDDING_CACHE_TTL", 10*time.Minute),
			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			LLMProvider:        getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:           getEnv("LLM_MODEL", "llama3"),
		},
		Otel: OtelConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "ai-docqa-backend"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(strValue, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, strings.TrimPrefix(part, "."))
		}
	}
	return out
}
