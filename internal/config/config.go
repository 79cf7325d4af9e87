// Package config binds the environment-driven configuration surface from
// the platform's operating contract. It uses viper the way the rest of the
// retrieved corpus does: bind env vars, apply defaults, unmarshal once at
// startup.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved, immutable process configuration.
type Config struct {
	VectorStoreURL   string `mapstructure:"VECTOR_STORE_URL"`
	CacheURL         string `mapstructure:"CACHE_URL"`
	DocumentStoreURL string `mapstructure:"DOCUMENT_STORE_URL"`
	MongoURL         string `mapstructure:"MONGO_URL"`

	EmbeddingModel  string `mapstructure:"EMBEDDING_MODEL"`
	RerankModel     string `mapstructure:"RERANK_MODEL"`
	LLMDefaultModel string `mapstructure:"LLM_DEFAULT_MODEL"`

	CrawlMaxConcurrency int           `mapstructure:"CRAWL_MAX_CONCURRENCY"`
	CrawlPageTimeout    time.Duration `mapstructure:"CRAWL_PAGE_TIMEOUT"`
	CrawlJSRender       bool          `mapstructure:"CRAWL_JS_RENDER"`

	RateLimitReadPerMin  int `mapstructure:"RATE_LIMIT_READ_PER_MIN"`
	RateLimitWritePerMin int `mapstructure:"RATE_LIMIT_WRITE_PER_MIN"`
	RateLimitPerHour     int `mapstructure:"RATE_LIMIT_PER_HOUR"`

	VoiceSessionTimeout      time.Duration `mapstructure:"VOICE_SESSION_TIMEOUT"`
	VoiceMaxConcurrentSessions int         `mapstructure:"VOICE_MAX_CONCURRENT_SESSIONS"`

	CacheTTLLLMResults time.Duration `mapstructure:"CACHE_TTL_LLM_RESULTS"`
	CacheTTLEmbeddings time.Duration `mapstructure:"CACHE_TTL_EMBEDDINGS"`
	CacheTTLSearch     time.Duration `mapstructure:"CACHE_TTL_SEARCH"`

	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS"`
	CSRFSecretKey  string   `mapstructure:"CSRF_SECRET_KEY"`
	MaxUploadSize  int64    `mapstructure:"MAX_UPLOAD_SIZE"`

	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// [EXPANSION] Credentials and tunables the ambient stack needs to
	// actually dial the backends named above; spec.md enumerates the
	// behavioural knobs, these complete the connection surface.
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	QdrantAPIKey          string `mapstructure:"QDRANT_API_KEY"`
	QdrantUseTLS          bool   `mapstructure:"QDRANT_USE_TLS"`
	EmbeddingDimensions   int    `mapstructure:"EMBEDDING_DIMENSIONS"`

	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	OpenAIAPIKey    string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `mapstructure:"OPENAI_BASE_URL"`
	AnthropicAPIKey string `mapstructure:"ANTHROPIC_API_KEY"`
	OllamaBaseURL   string `mapstructure:"OLLAMA_BASE_URL"`

	LLMHealthCheckInterval   time.Duration `mapstructure:"LLM_HEALTH_CHECK_INTERVAL"`
	LLMPerBackendConcurrency int           `mapstructure:"LLM_PER_BACKEND_CONCURRENCY"`
	LLMMaxRetries            int           `mapstructure:"LLM_MAX_RETRIES"`

	PromptTokenBudget int `mapstructure:"PROMPT_TOKEN_BUDGET"`

	VoiceSTTBaseURL string `mapstructure:"VOICE_STT_BASE_URL"`
	VoiceSTTAPIKey  string `mapstructure:"VOICE_STT_API_KEY"`
	VoiceTTSBaseURL string `mapstructure:"VOICE_TTS_BASE_URL"`
	VoiceTTSAPIKey  string `mapstructure:"VOICE_TTS_API_KEY"`

	ActionSMTPFrom        string        `mapstructure:"ACTION_SMTP_FROM"`
	ActionWebhookTimeout  time.Duration `mapstructure:"ACTION_WEBHOOK_TIMEOUT"`
	ActionWorkerConcurrency int         `mapstructure:"ACTION_WORKER_CONCURRENCY"`

	EmbedWorkerConcurrency int           `mapstructure:"EMBED_WORKER_CONCURRENCY"`
	EmbedIdleCooldown      time.Duration `mapstructure:"EMBED_IDLE_COOLDOWN"`
}

// Load reads configuration from the process environment, applying the
// defaults the spec's boundary tests assume (e.g. a 100MB upload cap).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("VECTOR_STORE_URL", "http://localhost:6334")
	v.SetDefault("CACHE_URL", "redis://localhost:6379/0")
	v.SetDefault("DOCUMENT_STORE_URL", "http://localhost:9000")
	v.SetDefault("MONGO_URL", "mongodb://localhost:27017")

	v.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	v.SetDefault("RERANK_MODEL", "")
	v.SetDefault("LLM_DEFAULT_MODEL", "gpt-4o-mini")

	v.SetDefault("CRAWL_MAX_CONCURRENCY", 8)
	v.SetDefault("CRAWL_PAGE_TIMEOUT", 30*time.Second)
	v.SetDefault("CRAWL_JS_RENDER", false)

	v.SetDefault("RATE_LIMIT_READ_PER_MIN", 120)
	v.SetDefault("RATE_LIMIT_WRITE_PER_MIN", 10)
	v.SetDefault("RATE_LIMIT_PER_HOUR", 1000)

	v.SetDefault("VOICE_SESSION_TIMEOUT", 5*time.Minute)
	v.SetDefault("VOICE_MAX_CONCURRENT_SESSIONS", 200)

	v.SetDefault("CACHE_TTL_LLM_RESULTS", time.Hour)
	v.SetDefault("CACHE_TTL_EMBEDDINGS", 24*time.Hour)
	v.SetDefault("CACHE_TTL_SEARCH", 15*time.Minute)

	v.SetDefault("ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("CSRF_SECRET_KEY", "")
	v.SetDefault("MAX_UPLOAD_SIZE", int64(100<<20))

	v.SetDefault("HTTP_ADDR", ":8080")

	v.SetDefault("MONGO_DATABASE", "corpusloop")

	v.SetDefault("QDRANT_API_KEY", "")
	v.SetDefault("QDRANT_USE_TLS", false)
	v.SetDefault("EMBEDDING_DIMENSIONS", 1536)

	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_BUCKET", "corpusloop-documents")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("REDIS_PASSWORD", "")

	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("ANTHROPIC_API_KEY", "")
	v.SetDefault("OLLAMA_BASE_URL", "http://localhost:11434")

	v.SetDefault("LLM_HEALTH_CHECK_INTERVAL", 10*time.Second)
	v.SetDefault("LLM_PER_BACKEND_CONCURRENCY", 4)
	v.SetDefault("LLM_MAX_RETRIES", 2)

	v.SetDefault("PROMPT_TOKEN_BUDGET", 6000)

	v.SetDefault("VOICE_STT_BASE_URL", "")
	v.SetDefault("VOICE_STT_API_KEY", "")
	v.SetDefault("VOICE_TTS_BASE_URL", "")
	v.SetDefault("VOICE_TTS_API_KEY", "")

	v.SetDefault("ACTION_SMTP_FROM", "noreply@corpusloop.example")
	v.SetDefault("ACTION_WEBHOOK_TIMEOUT", 10*time.Second)
	v.SetDefault("ACTION_WORKER_CONCURRENCY", 5)

	v.SetDefault("EMBED_WORKER_CONCURRENCY", 4)
	v.SetDefault("EMBED_IDLE_COOLDOWN", 30*time.Second)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
