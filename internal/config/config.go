package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// ArchiveConfig selects where reaped jobs are written. Both empty disables archiving.
type ArchiveConfig struct {
	Dir         string `yaml:"dir"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Config holds shared runtime configuration for the broker, the reaper and the CLI.
type Config struct {
	Env               string        `yaml:"env"`
	HTTPPort          string        `yaml:"http_port"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	PublicBaseURL     string        `yaml:"public_base_url"`
	EngineWebhookURL  string        `yaml:"engine_webhook_url"`
	EngineTimeout     time.Duration `yaml:"engine_timeout"`
	EnginePingTimeout time.Duration `yaml:"engine_ping_timeout"`
	EngineSyncTimeout time.Duration `yaml:"engine_sync_timeout"`
	JobStore          string        `yaml:"job_store"` // memory|redis
	RedisAddr         string        `yaml:"redis_addr"`
	RedisPassword     string        `yaml:"redis_password"`
	RedisDB           int           `yaml:"redis_db"`
	PostgresDSN       string        `yaml:"postgres_dsn"`
	JobRetention      time.Duration `yaml:"job_retention"`
	ReaperInterval    time.Duration `yaml:"reaper_interval"`
	CompletionStrict  bool          `yaml:"completion_strict"`
	RateLimitCapacity int           `yaml:"rate_limit_capacity"`
	RateLimitRefill   float64       `yaml:"rate_limit_refill_per_sec"`
	Log               LogConfig     `yaml:"log"`
	Archive           ArchiveConfig `yaml:"archive"`
}

// Dev reports whether the process runs in local development mode.
func (c Config) Dev() bool {
	return c.Env == "dev"
}

// Defaults returns the configuration used when neither a file nor the environment sets a value.
func Defaults() Config {
	return Config{
		Env:               "dev",
		HTTPPort:          "8080",
		MetricsAddr:       ":9090",
		EngineWebhookURL:  "http://localhost:5678/webhook/chat",
		EngineTimeout:     10 * time.Second,
		EnginePingTimeout: 3 * time.Second,
		EngineSyncTimeout: 8 * time.Second,
		JobStore:          "memory",
		RedisAddr:         "localhost:6379",
		JobRetention:      time.Hour,
		ReaperInterval:    5 * time.Minute,
		RateLimitCapacity: 50,
		RateLimitRefill:   20,
		Log:               LogConfig{Level: "info", Format: "json"},
		Archive:           ArchiveConfig{S3Region: "us-east-1"},
	}
}

// Load reads the optional YAML file named by CONFIG_FILE, then applies environment overrides.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.PublicBaseURL = getEnv("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.EngineWebhookURL = getEnv("ENGINE_WEBHOOK_URL", cfg.EngineWebhookURL)
	cfg.EngineTimeout = getEnvDuration("ENGINE_TIMEOUT", cfg.EngineTimeout)
	cfg.EnginePingTimeout = getEnvDuration("ENGINE_PING_TIMEOUT", cfg.EnginePingTimeout)
	cfg.EngineSyncTimeout = getEnvDuration("ENGINE_SYNC_TIMEOUT", cfg.EngineSyncTimeout)
	cfg.JobStore = strings.ToLower(getEnv("JOB_STORE", cfg.JobStore))
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.JobRetention = getEnvDuration("JOB_RETENTION", cfg.JobRetention)
	cfg.ReaperInterval = getEnvDuration("REAPER_INTERVAL", cfg.ReaperInterval)
	cfg.CompletionStrict = getEnvBool("COMPLETION_STRICT", cfg.CompletionStrict)
	cfg.RateLimitCapacity = getEnvInt("RATE_LIMIT_CAPACITY", cfg.RateLimitCapacity)
	cfg.RateLimitRefill = getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", cfg.RateLimitRefill)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Archive.Dir = getEnv("ARCHIVE_DIR", cfg.Archive.Dir)
	cfg.Archive.S3Bucket = getEnv("ARCHIVE_S3_BUCKET", cfg.Archive.S3Bucket)
	cfg.Archive.S3Region = getEnv("ARCHIVE_S3_REGION", cfg.Archive.S3Region)
	cfg.Archive.S3Endpoint = getEnv("ARCHIVE_S3_ENDPOINT", cfg.Archive.S3Endpoint)
	cfg.Archive.S3PathStyle = getEnvBool("ARCHIVE_S3_PATH_STYLE", cfg.Archive.S3PathStyle)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
