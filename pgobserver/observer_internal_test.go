package pgobserver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
	"github.com/AntonStoeckl/notification-dispatch-go/pgobserver/internal/adapters"
	"github.com/AntonStoeckl/notification-dispatch-go/testutil/notifytest"
)

type dbAdapterSpy struct {
	mu      sync.Mutex
	queries []string
	execErr error
}

func (s *dbAdapterSpy) Exec(_ context.Context, query string) (adapters.DBResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, query)
	if s.execErr != nil {
		return nil, s.execErr
	}

	return rowsAffected(1), nil
}

type rowsAffected int64

func (r rowsAffected) RowsAffected() (int64, error) {
	return int64(r), nil
}

func givenNotification(t *testing.T) notify.Notification {
	t.Helper()

	notification, err := notify.BuildNotification(
		"WeatherChanged",
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		[]byte(`{"condition":"Sunny"}`),
		[]byte(`{"station":"o'hare"}`),
	)
	require.NoError(t, err)

	return notification
}

func Test_Observer_Update_Builds_Idempotent_Insert(t *testing.T) {
	// arrange
	spy := &dbAdapterSpy{}
	observer, err := newObserver(spy, []Option{WithTableName("weather_notifications")})
	require.NoError(t, err)

	notification := givenNotification(t)

	// act
	updateErr := observer.Update(context.Background(), notification)

	// assert
	require.NoError(t, updateErr)
	require.Len(t, spy.queries, 1)

	query := spy.queries[0]
	assert.Contains(t, query, `INSERT INTO "weather_notifications"`)
	assert.Contains(t, query, `("notification_id", "notification_type", "occurred_at", "payload", "metadata")`)
	assert.Contains(t, query, "'"+notification.ID().String()+"'::uuid")
	assert.Contains(t, query, `'WeatherChanged'`)
	assert.Contains(t, query, `'{"condition":"Sunny"}'::jsonb`)
	assert.Contains(t, query, `'{"station":"o''hare"}'::jsonb`, "quotes in JSON must be escaped")
	assert.Contains(t, query, "2026-03-01T12:00:00Z")
	assert.Contains(t, query, "ON CONFLICT DO NOTHING")
}

func Test_Observer_Update_Wraps_Exec_Failure(t *testing.T) {
	// arrange
	execErr := errors.New("connection refused")
	logHandler := notifytest.NewLogHandlerSpy(false)
	observer, err := newObserver(&dbAdapterSpy{execErr: execErr}, []Option{WithLogger(slog.New(logHandler))})
	require.NoError(t, err)

	// act
	updateErr := observer.Update(context.Background(), givenNotification(t))

	// assert
	assert.ErrorIs(t, updateErr, ErrAppendingNotificationFailed)
	assert.ErrorIs(t, updateErr, execErr)
	assert.Equal(t, 1, logHandler.CountLogsWithLevel(slog.LevelError, logMsgDBExecFailed))
}

func Test_Observer_Update_Logs_Append(t *testing.T) {
	logHandler := notifytest.NewLogHandlerSpy(false)
	observer, err := newObserver(&dbAdapterSpy{}, []Option{WithLogger(slog.New(logHandler))})
	require.NoError(t, err)

	notification := givenNotification(t)
	require.NoError(t, observer.Update(context.Background(), notification))

	assert.True(t, logHandler.HasInfoLogWithMessage(logMsgNotificationAppended).
		WithStringAttr(logAttrNotificationID, notification.ID().String()).
		WithIntAttr(logAttrRowsAffected, 1).
		Assert())
	assert.Equal(t, 1, logHandler.CountLogsWithLevel(slog.LevelDebug, logMsgSQLExecuted+logActionAppend))
}

func Test_Observer_As_Subscriber_Isolates_Database_Failure(t *testing.T) {
	// arrange
	observer, err := newObserver(&dbAdapterSpy{execErr: errors.New("disk full")}, nil)
	require.NoError(t, err)

	notifier, err := notify.NewNotifier()
	require.NoError(t, err)

	journal := notifytest.NewJournal()
	handle, _ := notifier.Subscribe(observer)
	_, _ = notifier.Subscribe(journal.Observer("phone"))

	// act
	report := notifier.Publish(context.Background(), givenNotification(t))

	// assert
	assert.Equal(t, []notify.Handle{handle}, report.FailedHandles())
	assert.ErrorIs(t, report.Failures[0].Reason, ErrAppendingNotificationFailed)
	assert.Equal(t, []string{"phone"}, journal.Names())
}

func Test_Observer_CreateTableSQL_Quotes_Table_Name(t *testing.T) {
	observer, err := newObserver(&dbAdapterSpy{}, []Option{WithTableName(`weather"data`)})
	require.NoError(t, err)

	ddl := observer.CreateTableSQL()

	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "weather""data"`)
	assert.Contains(t, ddl, "notification_id uuid PRIMARY KEY")
	assert.Contains(t, ddl, "payload jsonb NOT NULL")
}

func Test_Constructors_Reject_Invalid_Input(t *testing.T) {
	_, pgxErr := NewFromPGXPool(nil)
	_, sqlErr := NewFromSQLDB(nil)
	_, sqlxErr := NewFromSQLX(nil)
	_, tableErr := newObserver(&dbAdapterSpy{}, []Option{WithTableName("")})

	assert.ErrorIs(t, pgxErr, ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlErr, ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlxErr, ErrNilDatabaseConnection)
	assert.ErrorIs(t, tableErr, ErrEmptyTableName)
}
