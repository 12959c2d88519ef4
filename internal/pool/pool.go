package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when no connection frees up within the acquire timeout.
var ErrExhausted = errors.New("connection pool exhausted")

// Config bounds a pool. Zero values leave the driver defaults in place.
type Config struct {
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration
}

// Configure applies the pool limits to db.
func Configure(db *sql.DB, c Config) {
	if c.MaxOpen > 0 {
		db.SetMaxOpenConns(c.MaxOpen)
	}
	if c.MaxIdle > 0 {
		db.SetMaxIdleConns(c.MaxIdle)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}
}

// SQL hands out exclusive connections from a *sql.DB.
type SQL struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQL wraps db. A non-positive timeout means acquisition waits on the caller's context only.
func NewSQL(db *sql.DB, timeout time.Duration) *SQL {
	return &SQL{db: db, timeout: timeout}
}

// DB exposes the underlying handle for health checks and stats collectors.
func (p *SQL) DB() *sql.DB { return p.db }

// Acquire blocks until a connection is free, the acquire timeout elapses, or ctx is done.
// The caller must Close the returned connection.
func (p *SQL) Acquire(ctx context.Context) (*sql.Conn, error) {
	actx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	conn, err := p.db.Conn(actx)
	if err != nil {
		// Only our own deadline counts as exhaustion; caller cancellation passes through.
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrExhausted, p.timeout)
		}
		return nil, err
	}
	return conn, nil
}

// With runs fn on an acquired connection and always releases it.
func (p *SQL) With(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(conn)
}

// Ping verifies a connection can be acquired and reaches the server.
func (p *SQL) Ping(ctx context.Context) error {
	return p.With(ctx, func(conn *sql.Conn) error {
		return conn.PingContext(ctx)
	})
}
