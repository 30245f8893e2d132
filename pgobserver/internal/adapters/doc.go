// Package adapters lets the PostgreSQL observer execute statements on pgxpool.Pool, sql.DB or sqlx.DB
// through one DBAdapter interface.
package adapters
