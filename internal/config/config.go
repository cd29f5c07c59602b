package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RepublishTimestampPolicy decides what happens to publishedAt on republish.
type RepublishTimestampPolicy string

const (
	RepublishPreservePublishedAt RepublishTimestampPolicy = "preserve"
	RepublishRefreshPublishedAt  RepublishTimestampPolicy = "refresh"
)

// LockBackend selects how publications of the same cycle are serialized.
type LockBackend string

const (
	LockBackendLocal LockBackend = "local"
	LockBackendRedis LockBackend = "redis"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App         AppConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Logger      LoggerConfig
	Auth        AuthConfig
	Publication PublicationConfig
	Kafka       KafkaConfig
	Archive     ArchiveConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN             string
	ApplicationName string
	// LockTimeoutMS is sent as the session lock_timeout; 0 leaves the server default.
	LockTimeoutMS  int
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Format is json or console.
	Format string
	// Output is stdout, stderr or a file path.
	Output string
}

// AuthConfig defines token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// PublicationConfig tunes the cycle publication engine.
type PublicationConfig struct {
	RepublishTimestampPolicy      RepublishTimestampPolicy
	AggregatePeersIncludeSiblings bool
	LockBackend                   LockBackend
	LockTTLSeconds                int
}

// KafkaConfig configures the optional publication event sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ArchiveConfig configures the optional S3 archive of published assignment sets.
type ArchiveConfig struct {
	S3Bucket string
	S3Prefix string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	timestampPolicy := RepublishTimestampPolicy(strings.ToLower(getEnv("REPUBLISH_TIMESTAMP_POLICY", string(RepublishPreservePublishedAt))))
	switch timestampPolicy {
	case RepublishPreservePublishedAt, RepublishRefreshPublishedAt:
	default:
		return nil, fmt.Errorf("invalid REPUBLISH_TIMESTAMP_POLICY: %q", timestampPolicy)
	}

	lockBackend := LockBackend(strings.ToLower(getEnv("PUBLICATION_LOCK_BACKEND", string(LockBackendLocal))))
	switch lockBackend {
	case LockBackendLocal, LockBackendRedis:
	default:
		return nil, fmt.Errorf("invalid PUBLICATION_LOCK_BACKEND: %q", lockBackend)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "evaluation-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			ApplicationName: getEnv("APP_NAME", "evaluation-service"),
			LockTimeoutMS:   getEnvAsInt("POSTGRES_LOCK_TIMEOUT_MS", 30000),
			MaxConns:        maxConns,
			MinConns:        minConns,
			RunMigrations:   runMigrations,
			MigrationsDir:   getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec:  connMaxIdle,
			ConnMaxLifeSec:  connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Publication: PublicationConfig{
			RepublishTimestampPolicy:      timestampPolicy,
			AggregatePeersIncludeSiblings: getEnvAsBool("PEER_AGGREGATE_INCLUDE_SIBLINGS", true),
			LockBackend:                   lockBackend,
			LockTTLSeconds:                getEnvAsInt("PUBLICATION_LOCK_TTL_SECONDS", 60),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "evaluation-cycle-events"),
		},
		Archive: ArchiveConfig{
			S3Bucket: os.Getenv("ARCHIVE_S3_BUCKET"),
			S3Prefix: getEnv("ARCHIVE_S3_PREFIX", "evaluation-cycles"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LockTTL returns how long a distributed publication lock may be held.
func (p PublicationConfig) LockTTL() time.Duration {
	if p.LockTTLSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(p.LockTTLSeconds) * time.Second
}

// Enabled reports whether an event sink topic has brokers to write to.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// Enabled reports whether the S3 archive is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.S3Bucket != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
