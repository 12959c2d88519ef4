package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backend names accepted by STORAGE_BACKEND.
const (
	BackendFilesystem = "filesystem"
	BackendSQLite     = "sqlite"
	BackendPostgres   = "postgres"
	BackendRedis      = "redis"
	BackendMinIO      = "minio"
	BackendBolt       = "bolt"
)

// DefaultIDLength is used when PASTE_ID_LENGTH is unset or not positive.
const DefaultIDLength = 7

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// PoolConfig bounds the connection pool shared by the SQL and Redis backends.
type PoolConfig struct {
	AcquireTimeout time.Duration
}

// RedisConfig holds key-value backend settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region skips the bucket location lookup when set.
	Region string
}

// PasteConfig tunes id generation and ingestion.
type PasteConfig struct {
	IDLength    int
	DefaultMeta string
	MaxAttempts int
	MaxBytes    int64
}

// StorageConfig selects the backend and holds the settings of the local ones.
type StorageConfig struct {
	Backend    string
	FSDir      string
	SQLitePath string
	BoltPath   string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost   string
	Port      string
	BodyLimit int
	LogLevel  string
	Timezone  string
	Storage   StorageConfig
	Paste     PasteConfig
	Database  DatabaseConfig
	Pool      PoolConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() *AppConfig {
	bodyLimit := getEnvInt("BODY_LIMIT", 8*1024*1024)
	// The generator and the route validator must agree on one length.
	idLength := getEnvInt("PASTE_ID_LENGTH", DefaultIDLength)
	if idLength <= 0 {
		idLength = DefaultIDLength
	}
	return &AppConfig{
		AppHost:   getEnv("APP_HOST", "localhost:8080"),
		Port:      getEnv("PORT", "8080"),
		BodyLimit: bodyLimit,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Timezone:  getEnv("TIMEZONE", "UTC"),
		Storage: StorageConfig{
			Backend:    strings.ToLower(getEnv("STORAGE_BACKEND", BackendFilesystem)),
			FSDir:      getEnv("FS_DIR", "pastes"),
			SQLitePath: getEnv("SQLITE_PATH", "pastes.db"),
			BoltPath:   getEnv("BOLT_PATH", "pastes.bolt"),
		},
		Paste: PasteConfig{
			IDLength:    idLength,
			DefaultMeta: getEnv("PASTE_DEFAULT_META", "plaintext"),
			MaxAttempts: getEnvInt("PASTE_MAX_ATTEMPTS", 3),
			MaxBytes:    int64(bodyLimit),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Pool: PoolConfig{
			AcquireTimeout: getEnvDuration("POOL_ACQUIRE_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			Region:    getEnv("MINIO_REGION", ""),
		},
	}
}

// Location resolves Timezone, falling back to UTC on unknown names.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
