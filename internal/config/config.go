package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBRunMigrations   bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ReserveRateLimitEnabled bool
	ReserveRatePerSecond    float64
	ReserveBurst            int

	BookingPolicyFile string

	SnowflakeNode int64
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewBookingPolicyHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:                 getenv("APP_SERVICE", "boukii-booking"),
		AppVersion:              getenv("APP_VERSION", "0.1.0"),
		Environment:             getenv("ENVIRONMENT", "development"),
		HTTPAddr:                getenv("HTTP_ADDR", ":8080"),
		LogLevel:                strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:               strings.ToLower(getenv("LOG_FORMAT", "json")),
		OtelEnabled:             getenvBool("OTEL_ENABLED", false),
		OtelExporterEndpoint:    strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		OtelExporterProtocol:    strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:       getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		DBType:                  getenv("DATABASE_TYPE", "postgres"),
		DBHost:                  getenv("DATABASE_HOST", "localhost"),
		DBPort:                  getenv("DATABASE_PORT", "5432"),
		DBName:                  getenv("DATABASE_NAME", "boukii"),
		DBUser:                  getenv("DATABASE_USER", "postgres"),
		DBPassword:              getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:               getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:           getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:           getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime:       getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime:       getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBRunMigrations:         getenvBool("DATABASE_RUN_MIGRATIONS", true),
		RedisAddr:               strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:           getenv("REDIS_PASSWORD", ""),
		RedisDB:                 getenvInt("REDIS_DB", 0),
		ReserveRateLimitEnabled: getenvBool("RESERVE_RATE_LIMIT_ENABLED", false),
		ReserveRatePerSecond:    getenvFloat("RESERVE_RATE_PER_SECOND", 2),
		ReserveBurst:            getenvInt("RESERVE_BURST", 10),
		BookingPolicyFile:       getenv("BOOKING_POLICY_FILE", ""),
		SnowflakeNode:           int64(getenvInt("SNOWFLAKE_NODE", 1)),
	}

	return cfg
}

func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
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
	if err != nil {
		return def
	}
	return parsed
}
