package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	S3         S3Config
	Log        LogConfig
	LLM        LLMConfig
	Queue      QueueConfig
	Extraction ExtractionConfig
	Retention  RetentionConfig
	Email      EmailConfig
}

// EmailConfig holds job notification delivery settings.
type EmailConfig struct {
	Provider    string `mapstructure:"provider"`
	Region      string `mapstructure:"region"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	FrontendURL string `mapstructure:"frontend_url"`
}

// QueueConfig holds processing job worker settings.
type QueueConfig struct {
	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
	MaxRetries       int `mapstructure:"max_retries"`
	Concurrency      int `mapstructure:"concurrency"`
	RetryDelaySecs   int `mapstructure:"retry_delay_secs"`
	JobTimeoutSecs   int `mapstructure:"job_timeout_secs"`
	StaleAfterSecs   int `mapstructure:"stale_after_secs"`
}

// PollInterval returns the poll interval as a duration.
func (q *QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalSecs) * time.Second
}

// RetryDelay returns the default delay before a retried job becomes claimable.
func (q *QueueConfig) RetryDelay() time.Duration {
	return time.Duration(q.RetryDelaySecs) * time.Second
}

// JobTimeout returns the overall per-job visibility timeout.
func (q *QueueConfig) JobTimeout() time.Duration {
	return time.Duration(q.JobTimeoutSecs) * time.Second
}

// StaleAfter returns how long a job may sit in running before the reaper requeues it.
func (q *QueueConfig) StaleAfter() time.Duration {
	return time.Duration(q.StaleAfterSecs) * time.Second
}

// ExtractionConfig holds extraction engine settings.
type ExtractionConfig struct {
	CacheTTLSecs        int    `mapstructure:"cache_ttl_secs"`
	ChunkConcurrency    int    `mapstructure:"chunk_concurrency"`
	DefaultPromptType   string `mapstructure:"default_prompt_type"`
	ApplyConfidenceGate bool   `mapstructure:"apply_confidence_gate"`
}

// CacheTTL returns the extraction cache entry lifetime.
func (e *ExtractionConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSecs) * time.Second
}

// RetentionConfig holds settings for the cleanup sweep.
type RetentionConfig struct {
	JobRetentionDays int `mapstructure:"job_retention_days"`
}

// LLMProviderConfig holds settings for a single LLM provider.
type LLMProviderConfig struct {
	Provider     string  `mapstructure:"provider"`
	APIKey       string  `mapstructure:"api_key"`
	DefaultModel string  `mapstructure:"default_model"`
	BaseURL      string  `mapstructure:"base_url"`
	TimeoutSecs  int     `mapstructure:"timeout_secs"`
	CostPer1K    float64 `mapstructure:"cost_per_1k"`
	RatePerMin   int     `mapstructure:"rate_per_min"`
}

// LLMConfig holds provider settings used when no model is registered in the database.
type LLMConfig struct {
	Primary   LLMProviderConfig `mapstructure:"primary"`
	Secondary LLMProviderConfig `mapstructure:"secondary"`
}

// SecondaryConfig returns the secondary provider config, or nil if not configured.
func (l *LLMConfig) SecondaryConfig() *LLMProviderConfig {
	if l.Secondary.Provider != "" {
		return &l.Secondary
	}
	return nil
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds extraction cache connection settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// S3Config holds AWS S3 settings for stored document text.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from environment variables with the ANNOTEXT_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ANNOTEXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.cors_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "annotext")
	v.SetDefault("db.password", "annotext_secret")
	v.SetDefault("db.name", "annotext_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "annotext-documents")
	v.SetDefault("s3.endpoint", "")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// Queue defaults
	v.SetDefault("queue.poll_interval_secs", 5)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_delay_secs", 60)
	v.SetDefault("queue.job_timeout_secs", 1800)
	v.SetDefault("queue.stale_after_secs", 3600)

	// Extraction defaults
	v.SetDefault("extraction.cache_ttl_secs", 3600)
	v.SetDefault("extraction.chunk_concurrency", 4)
	v.SetDefault("extraction.default_prompt_type", "domain_specific")
	v.SetDefault("extraction.apply_confidence_gate", true)

	// Retention defaults
	v.SetDefault("retention.job_retention_days", 90)

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "us-east-1")
	v.SetDefault("email.from_address", "noreply@annotext.local")
	v.SetDefault("email.from_name", "Annotext")
	v.SetDefault("email.frontend_url", "http://localhost:3000")

	// LLM provider defaults
	v.SetDefault("llm.primary.provider", "")
	v.SetDefault("llm.primary.api_key", "")
	v.SetDefault("llm.primary.default_model", "")
	v.SetDefault("llm.primary.base_url", "")
	v.SetDefault("llm.primary.timeout_secs", 300)
	v.SetDefault("llm.primary.cost_per_1k", 0.0)
	v.SetDefault("llm.primary.rate_per_min", 0)
	v.SetDefault("llm.secondary.provider", "")
	v.SetDefault("llm.secondary.api_key", "")
	v.SetDefault("llm.secondary.default_model", "")
	v.SetDefault("llm.secondary.base_url", "")
	v.SetDefault("llm.secondary.timeout_secs", 300)
	v.SetDefault("llm.secondary.cost_per_1k", 0.0)
	v.SetDefault("llm.secondary.rate_per_min", 0)

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                      "ANNOTEXT_SERVER_PORT",
		"server.read_timeout":              "ANNOTEXT_SERVER_READ_TIMEOUT",
		"server.write_timeout":             "ANNOTEXT_SERVER_WRITE_TIMEOUT",
		"server.environment":               "ANNOTEXT_SERVER_ENVIRONMENT",
		"server.cors_origins":              "ANNOTEXT_SERVER_CORS_ORIGINS",
		"db.host":                          "ANNOTEXT_DB_HOST",
		"db.port":                          "ANNOTEXT_DB_PORT",
		"db.user":                          "ANNOTEXT_DB_USER",
		"db.password":                      "ANNOTEXT_DB_PASSWORD",
		"db.name":                          "ANNOTEXT_DB_NAME",
		"db.sslmode":                       "ANNOTEXT_DB_SSLMODE",
		"db.max_open":                      "ANNOTEXT_DB_MAX_OPEN",
		"db.max_idle":                      "ANNOTEXT_DB_MAX_IDLE",
		"redis.enabled":                    "ANNOTEXT_REDIS_ENABLED",
		"redis.addr":                       "ANNOTEXT_REDIS_ADDR",
		"redis.password":                   "ANNOTEXT_REDIS_PASSWORD",
		"redis.db":                         "ANNOTEXT_REDIS_DB",
		"s3.region":                        "ANNOTEXT_S3_REGION",
		"s3.bucket":                        "ANNOTEXT_S3_BUCKET",
		"s3.endpoint":                      "ANNOTEXT_S3_ENDPOINT",
		"s3.access_key":                    "ANNOTEXT_S3_ACCESS_KEY",
		"s3.secret_key":                    "ANNOTEXT_S3_SECRET_KEY",
		"log.level":                        "ANNOTEXT_LOG_LEVEL",
		"log.format":                       "ANNOTEXT_LOG_FORMAT",
		"queue.poll_interval_secs":         "ANNOTEXT_QUEUE_POLL_INTERVAL_SECS",
		"queue.max_retries":                "ANNOTEXT_QUEUE_MAX_RETRIES",
		"queue.concurrency":                "ANNOTEXT_QUEUE_CONCURRENCY",
		"queue.retry_delay_secs":           "ANNOTEXT_QUEUE_RETRY_DELAY_SECS",
		"queue.job_timeout_secs":           "ANNOTEXT_QUEUE_JOB_TIMEOUT_SECS",
		"queue.stale_after_secs":           "ANNOTEXT_QUEUE_STALE_AFTER_SECS",
		"extraction.cache_ttl_secs":        "ANNOTEXT_EXTRACTION_CACHE_TTL_SECS",
		"extraction.chunk_concurrency":     "ANNOTEXT_EXTRACTION_CHUNK_CONCURRENCY",
		"extraction.default_prompt_type":   "ANNOTEXT_EXTRACTION_DEFAULT_PROMPT_TYPE",
		"extraction.apply_confidence_gate": "ANNOTEXT_EXTRACTION_APPLY_CONFIDENCE_GATE",
		"retention.job_retention_days":     "ANNOTEXT_RETENTION_JOB_RETENTION_DAYS",
		"email.provider":                   "ANNOTEXT_EMAIL_PROVIDER",
		"email.region":                     "ANNOTEXT_EMAIL_REGION",
		"email.from_address":               "ANNOTEXT_EMAIL_FROM_ADDRESS",
		"email.from_name":                  "ANNOTEXT_EMAIL_FROM_NAME",
		"email.frontend_url":               "ANNOTEXT_EMAIL_FRONTEND_URL",
		"llm.primary.provider":             "ANNOTEXT_LLM_PRIMARY_PROVIDER",
		"llm.primary.api_key":              "ANNOTEXT_LLM_PRIMARY_API_KEY",
		"llm.primary.default_model":        "ANNOTEXT_LLM_PRIMARY_DEFAULT_MODEL",
		"llm.primary.base_url":             "ANNOTEXT_LLM_PRIMARY_BASE_URL",
		"llm.primary.timeout_secs":         "ANNOTEXT_LLM_PRIMARY_TIMEOUT_SECS",
		"llm.primary.cost_per_1k":          "ANNOTEXT_LLM_PRIMARY_COST_PER_1K",
		"llm.primary.rate_per_min":         "ANNOTEXT_LLM_PRIMARY_RATE_PER_MIN",
		"llm.secondary.provider":           "ANNOTEXT_LLM_SECONDARY_PROVIDER",
		"llm.secondary.api_key":            "ANNOTEXT_LLM_SECONDARY_API_KEY",
		"llm.secondary.default_model":      "ANNOTEXT_LLM_SECONDARY_DEFAULT_MODEL",
		"llm.secondary.base_url":           "ANNOTEXT_LLM_SECONDARY_BASE_URL",
		"llm.secondary.timeout_secs":       "ANNOTEXT_LLM_SECONDARY_TIMEOUT_SECS",
		"llm.secondary.cost_per_1k":        "ANNOTEXT_LLM_SECONDARY_COST_PER_1K",
		"llm.secondary.rate_per_min":       "ANNOTEXT_LLM_SECONDARY_RATE_PER_MIN",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// PaaS platforms set PORT. Use it if ANNOTEXT_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("ANNOTEXT_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
		CORSOrigins:  splitList(v.GetString("server.cors_origins")),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("redis.enabled"),
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.LLM = LLMConfig{
		Primary:   providerConfig(v, "llm.primary"),
		Secondary: providerConfig(v, "llm.secondary"),
	}
	cfg.Queue = QueueConfig{
		PollIntervalSecs: v.GetInt("queue.poll_interval_secs"),
		MaxRetries:       v.GetInt("queue.max_retries"),
		Concurrency:      v.GetInt("queue.concurrency"),
		RetryDelaySecs:   v.GetInt("queue.retry_delay_secs"),
		JobTimeoutSecs:   v.GetInt("queue.job_timeout_secs"),
		StaleAfterSecs:   v.GetInt("queue.stale_after_secs"),
	}
	cfg.Extraction = ExtractionConfig{
		CacheTTLSecs:        v.GetInt("extraction.cache_ttl_secs"),
		ChunkConcurrency:    v.GetInt("extraction.chunk_concurrency"),
		DefaultPromptType:   v.GetString("extraction.default_prompt_type"),
		ApplyConfidenceGate: v.GetBool("extraction.apply_confidence_gate"),
	}
	cfg.Retention = RetentionConfig{
		JobRetentionDays: v.GetInt("retention.job_retention_days"),
	}
	cfg.Email = EmailConfig{
		Provider:    v.GetString("email.provider"),
		Region:      v.GetString("email.region"),
		FromAddress: v.GetString("email.from_address"),
		FromName:    v.GetString("email.from_name"),
		FrontendURL: v.GetString("email.frontend_url"),
	}

	if cfg.Queue.Concurrency <= 0 {
		return nil, fmt.Errorf("queue.concurrency must be positive, got %d", cfg.Queue.Concurrency)
	}
	if cfg.Queue.MaxRetries < 0 {
		return nil, fmt.Errorf("queue.max_retries must not be negative, got %d", cfg.Queue.MaxRetries)
	}
	if cfg.Queue.PollIntervalSecs <= 0 {
		return nil, fmt.Errorf("queue.poll_interval_secs must be positive, got %d", cfg.Queue.PollIntervalSecs)
	}
	// A job still inside its timeout must never look stale to another worker.
	if cfg.Queue.StaleAfterSecs <= cfg.Queue.JobTimeoutSecs {
		return nil, fmt.Errorf("queue.stale_after_secs (%d) must exceed queue.job_timeout_secs (%d)",
			cfg.Queue.StaleAfterSecs, cfg.Queue.JobTimeoutSecs)
	}

	return cfg, nil
}

func providerConfig(v *viper.Viper, prefix string) LLMProviderConfig {
	return LLMProviderConfig{
		Provider:     v.GetString(prefix + ".provider"),
		APIKey:       v.GetString(prefix + ".api_key"),
		DefaultModel: v.GetString(prefix + ".default_model"),
		BaseURL:      v.GetString(prefix + ".base_url"),
		TimeoutSecs:  v.GetInt(prefix + ".timeout_secs"),
		CostPer1K:    v.GetFloat64(prefix + ".cost_per_1k"),
		RatePerMin:   v.GetInt(prefix + ".rate_per_min"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
