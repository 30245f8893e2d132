package pgobserver_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
	"github.com/AntonStoeckl/notification-dispatch-go/pgobserver"
	"github.com/AntonStoeckl/notification-dispatch-go/testutil/pgtest"
)

func givenTable(t *testing.T, db *sql.DB) string {
	t.Helper()

	tableName := "notifications_" + uuid.NewString()[:8]
	observer, err := pgobserver.NewFromSQLDB(db, pgobserver.WithTableName(tableName))
	require.NoError(t, err)

	_, err = db.Exec(observer.CreateTableSQL())
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = db.Exec(`DROP TABLE IF EXISTS "` + tableName + `"`) })

	return tableName
}

func countRows(t *testing.T, db *sql.DB, tableName string, id uuid.UUID) int {
	t.Helper()

	var count int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM "`+tableName+`" WHERE notification_id = $1`, id).Scan(&count))

	return count
}

func givenNotification(t *testing.T) notify.Notification {
	t.Helper()

	notification, err := notify.BuildNotificationFromValue("WeatherChanged", time.Now(), map[string]string{"condition": "Sunny"})
	require.NoError(t, err)

	return notification
}

func Test_PostgresObserver_Appends_With_All_Adapters(t *testing.T) {
	ctx := context.Background()
	db := pgtest.SQLDB(t)
	tableName := givenTable(t, db)

	pgxObserver, err := pgobserver.NewFromPGXPool(pgtest.PGXPool(t), pgobserver.WithTableName(tableName))
	require.NoError(t, err)

	sqlObserver, err := pgobserver.NewFromSQLDB(db, pgobserver.WithTableName(tableName))
	require.NoError(t, err)

	sqlxObserver, err := pgobserver.NewFromSQLX(pgtest.SQLX(t), pgobserver.WithTableName(tableName))
	require.NoError(t, err)

	for name, observer := range map[string]notify.Observer{"pgx": pgxObserver, "sql": sqlObserver, "sqlx": sqlxObserver} {
		t.Run(name, func(t *testing.T) {
			notification := givenNotification(t)

			require.NoError(t, observer.Update(ctx, notification))
			require.NoError(t, observer.Update(ctx, notification), "appending twice must be a no-op")

			assert.Equal(t, 1, countRows(t, db, tableName, notification.ID()))
		})
	}
}

func Test_PostgresObserver_Fails_On_Missing_Table(t *testing.T) {
	observer, err := pgobserver.NewFromSQLDB(pgtest.SQLDB(t), pgobserver.WithTableName("does_not_exist_"+uuid.NewString()[:8]))
	require.NoError(t, err)

	updateErr := observer.Update(context.Background(), givenNotification(t))

	assert.ErrorIs(t, updateErr, pgobserver.ErrAppendingNotificationFailed)
}
