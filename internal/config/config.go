package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewRealmConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMetricsEnabled  bool

	LockBackend   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OutboxSink        string
	OutboxStream      string
	OutboxPollSeconds int

	RateLimitEnabled bool
	RateLimitRate    float64
	RateLimitBurst   int

	RealmConfigPath string
}

const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"

	OutboxSinkLog   = "log"
	OutboxSinkRedis = "redis"
	OutboxSinkNone  = "none"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "bazaar"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("NODE_ID", 1),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "sqlite")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "bazaar"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "bazaar.db"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBMetricsEnabled:  getenvBool("DATABASE_METRICS_ENABLED", false),
		LockBackend:       normalizeLockBackend(getenv("LOCK_BACKEND", LockBackendLocal)),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           int(getenvInt64("REDIS_DB", 0)),
		OutboxSink:        strings.ToLower(strings.TrimSpace(getenv("OUTBOX_SINK", OutboxSinkLog))),
		OutboxStream:      strings.TrimSpace(getenv("OUTBOX_STREAM", "bazaar:outbox")),
		OutboxPollSeconds: int(getenvInt64("OUTBOX_POLL_SECONDS", 5)),
		RateLimitEnabled:  getenvBool("RATE_LIMIT_ENABLED", false),
		RateLimitRate:     getenvFloat("RATE_LIMIT_RATE", 1),
		RateLimitBurst:    int(getenvInt64("RATE_LIMIT_BURST", 5)),
		RealmConfigPath:   strings.TrimSpace(getenv("REALM_CONFIG_PATH", "")),
	}

	return cfg
}

func (c Config) IsSQLite() bool {
	return c.DBType == "sqlite" || c.DBType == "sqlite3"
}

func normalizeLockBackend(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case LockBackendRedis:
		return LockBackendRedis
	default:
		return LockBackendLocal
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
