// Package pgobserver provides a notify.Observer that appends every Notification it receives to a PostgreSQL table.
//
// It works with pgxpool.Pool, sql.DB and sqlx.DB connections:
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	observer, _ := pgobserver.NewFromPGXPool(pool, pgobserver.WithTableName("weather_notifications"))
//	_, _ = pool.Exec(ctx, observer.CreateTableSQL())
//	handle, _ := notifier.Subscribe(observer)
//
// Appending is idempotent per notification ID, so redelivering a Notification does not store it twice.
package pgobserver
