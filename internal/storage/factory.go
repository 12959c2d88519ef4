package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"pasteapi/internal/config"
	"pasteapi/internal/database"
	"pasteapi/internal/database/migration"
	"pasteapi/internal/pool"
)

// Factory builds the backend named in the configuration. The choice is made
// once at startup; nothing dispatches per request.
type Factory struct {
	cfg *config.AppConfig
	log logrus.FieldLogger
	reg prometheus.Registerer
}

// NewFactory creates a factory. reg may be nil to skip pool stats collectors.
func NewFactory(cfg *config.AppConfig, log logrus.FieldLogger, reg prometheus.Registerer) *Factory {
	return &Factory{cfg: cfg, log: log, reg: reg}
}

// Open connects the configured backend, running schema setup where needed.
func (f *Factory) Open(ctx context.Context) (Backend, error) {
	name := f.cfg.Storage.Backend
	f.log.WithField("backend", name).Info("opening storage backend")

	var (
		b   Backend
		err error
	)
	switch name {
	case config.BackendFilesystem:
		b, err = NewFilesystem(f.cfg.Storage.FSDir, f.log)
	case config.BackendSQLite:
		db, err := database.NewSQLite(f.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return f.openSQL(ctx, db, migration.SQLite, SQLiteDialect)
	case config.BackendPostgres:
		db, err := database.NewPostgres(f.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return f.openSQL(ctx, db, migration.Postgres, PostgresDialect)
	case config.BackendRedis:
		return f.openRedis(ctx)
	case config.BackendMinIO:
		b, err = NewMinIO(ctx, f.cfg.MinIO)
	case config.BackendBolt:
		b, err = OpenBolt(f.cfg.Storage.BoltPath)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", name)
	}
	// Keep a failed constructor's typed nil out of the interface.
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (f *Factory) openSQL(ctx context.Context, db *sql.DB, dialect migration.Dialect, stmts Dialect) (Backend, error) {
	if err := migration.EnsureMigrated(ctx, db, dialect, f.log); err != nil {
		_ = db.Close()
		return nil, err
	}
	if f.reg != nil {
		if err := f.reg.Register(collectors.NewDBStatsCollector(db, stmts.Name)); err != nil {
			f.log.WithError(err).Warn("db stats collector not registered")
		}
	}
	return NewSQL(pool.NewSQL(db, f.cfg.Pool.AcquireTimeout), stmts), nil
}

func (f *Factory) openRedis(ctx context.Context) (Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        f.cfg.Redis.Addr,
		Password:    f.cfg.Redis.Password,
		DB:          f.cfg.Redis.DB,
		PoolSize:    f.cfg.Redis.PoolSize,
		PoolTimeout: f.cfg.Pool.AcquireTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(client), nil
}
