package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("MINIO_REGION", "eu-west-1")
	t.Setenv("STORAGE_BACKEND", "Redis")
	t.Setenv("REDIS_POOL_SIZE", "4")
	t.Setenv("POOL_ACQUIRE_TIMEOUT", "250ms")
	t.Setenv("BODY_LIMIT", "1024")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, "eu-west-1", cfg.MinIO.Region)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, 4, cfg.Redis.PoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Pool.AcquireTimeout)
	assert.Equal(t, 1024, cfg.BodyLimit)
	assert.Equal(t, int64(1024), cfg.Paste.MaxBytes)
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORAGE_BACKEND", "PASTE_ID_LENGTH", "PASTE_DEFAULT_META", "FS_DIR"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, BackendFilesystem, cfg.Storage.Backend)
	assert.Equal(t, 7, cfg.Paste.IDLength)
	assert.Equal(t, "plaintext", cfg.Paste.DefaultMeta)
	assert.Equal(t, "pastes", cfg.Storage.FSDir)
	assert.Equal(t, 3, cfg.Paste.MaxAttempts)
}

func TestLoad_NonPositiveIDLength(t *testing.T) {
	for _, v := range []string{"0", "-3"} {
		t.Setenv("PASTE_ID_LENGTH", v)
		assert.Equal(t, DefaultIDLength, Load().Paste.IDLength, "PASTE_ID_LENGTH=%s", v)
	}

	t.Setenv("PASTE_ID_LENGTH", "10")
	assert.Equal(t, 10, Load().Paste.IDLength)
}

func TestLocation(t *testing.T) {
	cfg := &AppConfig{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"

	os.Setenv(key, "3s")
	assert.Equal(t, 3*time.Second, getEnvDuration(key, time.Second))

	os.Setenv(key, "soon")
	assert.Equal(t, time.Second, getEnvDuration(key, time.Second))

	os.Unsetenv(key)
	assert.Equal(t, time.Second, getEnvDuration(key, time.Second))
}
