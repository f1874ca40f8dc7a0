package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vtanathip/test-case-generator/internal/errs"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type GitHubConfig struct {
	Token         string `mapstructure:"token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseBranch    string `mapstructure:"base_branch"`
	BaseURL       string `mapstructure:"base_url"`
}

type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EmbeddingConfig configures the embedding provider used for retrieval.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

type QdrantConfig struct {
	Host           string  `mapstructure:"host"`
	Port           int     `mapstructure:"port"`
	APIKey         string  `mapstructure:"api_key"`
	UseTLS         bool    `mapstructure:"use_tls"`
	Collection     string  `mapstructure:"collection"`
	ScoreThreshold float32 `mapstructure:"score_threshold"`
	Limit          int     `mapstructure:"limit"`
}

type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type WorkflowConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelays       []int         `mapstructure:"retry_delays"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // memory, sqlite, postgres
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UsePath   bool   `mapstructure:"use_path"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("github.base_branch", "main")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", "llama3.2")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.request_timeout", "120s")
	v.SetDefault("embedding.provider", "jina")
	v.SetDefault("embedding.model", "jina-embeddings-v3")
	v.SetDefault("embedding.base_url", "https://api.jina.ai/v1/embeddings")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.collection", "documents")
	v.SetDefault("qdrant.score_threshold", 0.7)
	v.SetDefault("qdrant.limit", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.idempotency_ttl", "1h")
	v.SetDefault("workflow.max_retries", 3)
	v.SetDefault("workflow.retry_delays", []int{5, 15, 45})
	v.SetDefault("workflow.generation_timeout", "120s")
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.path", "./data/jobs.db")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.bucket", "test-case-archive")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("github.token", "GITHUB_TOKEN")
	v.BindEnv("github.webhook_secret", "GITHUB_WEBHOOK_SECRET")
	v.BindEnv("github.base_url", "GITHUB_BASE_URL")
	v.BindEnv("llm.base_url", "OLLAMA_BASE_URL")
	v.BindEnv("llm.model", "OLLAMA_MODEL")
	v.BindEnv("embedding.api_key", "JINA_API_KEY")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("qdrant.use_tls", "QDRANT_USE_TLS")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("archive.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("archive.secret_key", "AWS_SECRET_ACCESS_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required settings are present. Returns a
// configuration error describing the first failure, or nil if valid.
func (c *Config) Validate() error {
	if c.GitHub.WebhookSecret == "" {
		return errs.New(errs.CodeConfiguration, "github.webhook_secret is required")
	}
	if c.GitHub.Token == "" {
		return errs.New(errs.CodeConfiguration, "github.token is required")
	}
	if c.Workflow.MaxRetries < 0 {
		return errs.Newf(errs.CodeConfiguration, "workflow.max_retries must be non-negative, got %d", c.Workflow.MaxRetries)
	}
	if len(c.Workflow.RetryDelays) == 0 {
		return errs.New(errs.CodeConfiguration, "workflow.retry_delays must not be empty")
	}
	for _, d := range c.Workflow.RetryDelays {
		if d <= 0 {
			return errs.Newf(errs.CodeConfiguration, "workflow.retry_delays entries must be positive, got %d", d)
		}
	}
	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return errs.Newf(errs.CodeConfiguration, "unknown database.driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return errs.New(errs.CodeConfiguration, "database.dsn is required for postgres driver")
	}
	return nil
}
