package pgtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/stretchr/testify/require"
)

const (
	maxConnections  = 10
	minConnections  = 1
	maxConnLifetime = time.Hour
	maxConnIdleTime = time.Minute * 5
	connectTimeout  = time.Second * 5
)

// PGXPool creates a pgxpool.Pool for the test database, closed on cleanup.
func PGXPool(tb testing.TB) *pgxpool.Pool {
	tb.Helper()

	dbConfig, err := pgxpool.ParseConfig(DSN(tb))
	require.NoError(tb, err)

	dbConfig.MaxConns = maxConnections
	dbConfig.MinConns = minConnections
	dbConfig.MaxConnLifetime = maxConnLifetime
	dbConfig.MaxConnIdleTime = maxConnIdleTime
	dbConfig.ConnConfig.ConnectTimeout = connectTimeout

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	require.NoError(tb, err)
	require.NoError(tb, pool.Ping(ctx))
	tb.Cleanup(pool.Close)

	return pool
}

// SQLDB creates a *sql.DB for the test database using lib/pq, closed on cleanup.
func SQLDB(tb testing.TB) *sql.DB {
	tb.Helper()

	db, err := sql.Open("postgres", DSN(tb))
	require.NoError(tb, err)

	configure(db)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	require.NoError(tb, db.PingContext(ctx))
	tb.Cleanup(func() { _ = db.Close() })

	return db
}

// SQLX wraps a fresh SQLDB in a *sqlx.DB.
func SQLX(tb testing.TB) *sqlx.DB {
	tb.Helper()

	return sqlx.NewDb(SQLDB(tb), "postgres")
}

func configure(db *sql.DB) {
	db.SetMaxOpenConns(maxConnections)
	db.SetMaxIdleConns(minConnections)
	db.SetConnMaxLifetime(maxConnLifetime)
	db.SetConnMaxIdleTime(maxConnIdleTime)
}
