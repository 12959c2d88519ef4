package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"pasteapi/internal/model"
	"pasteapi/internal/pool"
)

// Dialect holds the statements that differ between SQL engines.
type Dialect struct {
	Name   string
	Insert string
	Select string
}

var (
	// PostgresDialect targets the pgx stdlib driver.
	PostgresDialect = Dialect{
		Name:   "postgres",
		Insert: `INSERT INTO pastes (id, content, meta) VALUES ($1, $2, $3)`,
		Select: `SELECT id, content, meta FROM pastes WHERE id = $1`,
	}
	// SQLiteDialect targets modernc.org/sqlite.
	SQLiteDialect = Dialect{
		Name:   "sqlite",
		Insert: `INSERT INTO pastes (id, content, meta) VALUES (?, ?, ?)`,
		Select: `SELECT id, content, meta FROM pastes WHERE id = ?`,
	}
)

// SQL persists pastes in a single `pastes` table. Each call borrows one
// connection from the pool for the duration of a prepared statement.
//
// The whole body is sent in one INSERT, so ingestion buffers for this backend.
type SQL struct {
	pool    *pool.SQL
	dialect Dialect
}

// NewSQL creates a SQL backend over p.
func NewSQL(p *pool.SQL, dialect Dialect) *SQL {
	return &SQL{pool: p, dialect: dialect}
}

var (
	_ Backend = (*SQL)(nil)
	_ Pinger  = (*SQL)(nil)
	_ Closer  = (*SQL)(nil)
)

// Create inserts a new row. A primary key violation maps to ErrConflict.
func (s *SQL) Create(ctx context.Context, id string, content []byte, meta string) error {
	if err := requireText(content); err != nil {
		return err
	}

	err := s.pool.With(ctx, func(conn *sql.Conn) error {
		stmt, err := conn.PrepareContext(ctx, s.dialect.Insert)
		if err != nil {
			return err
		}
		defer stmt.Close()

		_, err = stmt.ExecContext(ctx, id, string(content), meta)
		return err
	})
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

// Retrieve fetches a single paste by id.
func (s *SQL) Retrieve(ctx context.Context, id string) (*model.Paste, error) {
	var (
		p       model.Paste
		content string
	)
	err := s.pool.With(ctx, func(conn *sql.Conn) error {
		stmt, err := conn.PrepareContext(ctx, s.dialect.Select)
		if err != nil {
			return err
		}
		defer stmt.Close()

		return stmt.QueryRowContext(ctx, id).Scan(&p.ID, &content, &p.Meta)
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	p.Content = []byte(content)
	return &p, nil
}

// Ping checks that a pooled connection reaches the database.
func (s *SQL) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return s.mapError(err)
	}
	return nil
}

// Close closes the underlying *sql.DB.
func (s *SQL) Close() error {
	return s.pool.DB().Close()
}

func (s *SQL) mapError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, pool.ErrExhausted):
		return fmt.Errorf("%w: %v", ErrPoolExhausted, err)
	case isUniqueViolation(err):
		return ErrConflict
	case isEncodingError(err):
		return fmt.Errorf("%w: %s: %v", ErrSerialization, s.dialect.Name, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", ErrIO, s.dialect.Name, err)
	}
}

// sqliteCoder matches *sqlite.Error from modernc.org/sqlite without importing its lib package.
type sqliteCoder interface {
	Code() int
}

const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
	pgUniqueViolation          = "23505"
	pgCharacterNotInRepertoire = "22021"
	pgUntranslatableCharacter  = "22P05"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var sqliteErr sqliteCoder
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqliteConstraintPrimaryKey || code == sqliteConstraintUnique
	}
	return false
}

// isEncodingError reports Postgres rejecting text bytes for the database encoding.
func isEncodingError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgCharacterNotInRepertoire || pgErr.Code == pgUntranslatableCharacter
}
