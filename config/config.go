package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ledger backends.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueAsynq  = "asynq"
)

// Config holds the application configuration.
type Config struct {
	AppEnv    string
	Debug     bool
	Version   string
	BotToken  string
	SentryDSN string

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	ChannelsFile string
	PipelineFile string

	StoreBackend    string
	SQLitePath      string
	MongoDBURI      string
	MongoDBDatabase string
	RetentionDays   int
	PruneSchedule   string

	OpenRouterAPIKey     string
	OpenRouterBaseURL    string
	OpenRouterModel      string
	TranslateMaxTokens   int
	TranslateTemperature float64
	TranslateMaxAttempts int
	TranslateBackoff     time.Duration
	TranslateTimeout     time.Duration
	TranslationCooldown  time.Duration
	TargetLanguage       string
	StyleHint            string
	HeaderLanguage       string

	GroupWindow      int
	GroupSettleDelay time.Duration
	HistoryTTL       time.Duration

	MediaDir       string
	SendsPerSecond int

	QueueBackend     string
	MaxInFlight      int
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	AsynqConcurrency int

	MetricsAddr string
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	var errs []string
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durVar := func(key string, def time.Duration) time.Duration {
		v, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	boolVar := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Debug:     boolVar("DEBUG", false),
		Version:   getEnv("VERSION", "dev"),
		BotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		SentryDSN: getEnv("SENTRY_DSN", ""),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		LogFile:       getEnv("LOG_FILE", "translator.log"),
		LogMaxSizeMB:  intVar("LOG_MAX_SIZE_MB", 2),
		LogMaxBackups: intVar("LOG_MAX_BACKUPS", 5),

		ChannelsFile: getEnv("CHANNELS_FILE", "channels.json"),
		PipelineFile: getEnv("PIPELINE_FILE", "pipeline.yaml"),

		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
		SQLitePath:      getEnv("SQLITE_PATH", "processed_messages.db"),
		MongoDBURI:      getEnv("MONGODB_URI", ""),
		MongoDBDatabase: getEnv("MONGODB_DATABASE", ""),
		RetentionDays:   intVar("RETENTION_DAYS", 7),
		PruneSchedule:   getEnv("PRUNE_SCHEDULE", "@every 24h"),

		OpenRouterAPIKey:     getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL:    getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterModel:      getEnv("OPENROUTER_MODEL", "google/gemma-3-27b-it"),
		TranslateMaxTokens:   intVar("TRANSLATE_MAX_TOKENS", 800),
		TranslateMaxAttempts: intVar("TRANSLATE_MAX_ATTEMPTS", 3),
		TranslateBackoff:     durVar("TRANSLATE_BACKOFF", 2*time.Second),
		TranslateTimeout:     durVar("TRANSLATE_TIMEOUT", 60*time.Second),
		TranslationCooldown:  durVar("TRANSLATION_COOLDOWN", 60*time.Second),
		TargetLanguage:       getEnv("TARGET_LANGUAGE", "ja"),
		StyleHint:            getEnv("STYLE_HINT", ""),
		HeaderLanguage:       getEnv("HEADER_LANGUAGE", "en"),

		GroupWindow:      intVar("GROUP_WINDOW", 10),
		GroupSettleDelay: durVar("GROUP_SETTLE_DELAY", 2*time.Second),
		HistoryTTL:       durVar("HISTORY_TTL", 10*time.Minute),

		MediaDir:       getEnv("MEDIA_DIR", "media_cache"),
		SendsPerSecond: intVar("SENDS_PER_SECOND", 20),

		QueueBackend:     strings.ToLower(getEnv("QUEUE_BACKEND", QueueMemory)),
		MaxInFlight:      intVar("MAX_IN_FLIGHT", 0),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          intVar("REDIS_DB", 0),
		AsynqConcurrency: intVar("ASYNQ_CONCURRENCY", 10),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
	}

	temperature, err := strconv.ParseFloat(getEnv("TRANSLATE_TEMPERATURE", "0.15"), 64)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRANSLATE_TEMPERATURE: %v", err))
	}
	cfg.TranslateTemperature = temperature

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StoreMongo:
		if c.MongoDBURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo store")
		}
		if c.MongoDBDatabase == "" {
			return fmt.Errorf("MONGODB_DATABASE is required for the mongo store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want %s or %s)", c.StoreBackend, StoreSQLite, StoreMongo)
	}

	switch c.QueueBackend {
	case QueueMemory:
	case QueueAsynq:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the asynq queue")
		}
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q (want %s or %s)", c.QueueBackend, QueueMemory, QueueAsynq)
	}

	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.RetentionDays)
	}
	if c.TranslateMaxAttempts <= 0 {
		return fmt.Errorf("TRANSLATE_MAX_ATTEMPTS must be positive, got %d", c.TranslateMaxAttempts)
	}
	if c.TranslationCooldown < 0 {
		return fmt.Errorf("TRANSLATION_COOLDOWN cannot be negative")
	}
	return nil
}

// RequireRelay checks the settings only the relay itself needs.
func (c *Config) RequireRelay() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.OpenRouterAPIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY is required")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
