package pool

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQL_With(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewSQL(db, time.Second)

	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))

	err = p.With(context.Background(), func(conn *sql.Conn) error {
		_, err := conn.ExecContext(context.Background(), "SELECT 1")
		return err
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 0, db.Stats().InUse)
}

func TestSQL_WithReleasesOnError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewSQL(db, time.Second)
	boom := errors.New("boom")

	err = p.With(context.Background(), func(conn *sql.Conn) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, db.Stats().InUse)
}

func TestSQL_AcquireExhausted(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	Configure(db, Config{MaxOpen: 1})
	p := NewSQL(db, 50*time.Millisecond)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Close()

	conn, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Nil(t, conn)
}

func TestSQL_AcquireCallerCanceled(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	Configure(db, Config{MaxOpen: 1})
	p := NewSQL(db, time.Minute)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Acquire(ctx)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestSQL_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	p := NewSQL(db, time.Second)

	mock.ExpectPing()
	assert.NoError(t, p.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, p.Ping(context.Background()))
}
