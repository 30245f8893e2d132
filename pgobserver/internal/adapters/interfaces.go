package adapters

import "context"

// DBAdapter executes a fully built SQL statement.
type DBAdapter interface {
	Exec(ctx context.Context, query string) (DBResult, error)
}

// DBResult is the outcome of an executed statement.
type DBResult interface {
	RowsAffected() (int64, error)
}
