package pgobserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
	"github.com/AntonStoeckl/notification-dispatch-go/pgobserver/internal/adapters"
)

const (
	defaultTableName             = "notifications"
	dialectPostgres              = "postgres"
	logMsgBuildInsertQueryFailed = "failed to build notification insert query"
	logMsgDBExecFailed           = "database execution failed during notification append"
	logMsgSQLExecuted            = "executed sql for: "
	logMsgNotificationAppended   = "notification appended"
	logActionAppend              = "append"
	logAttrError                 = "error"
	logAttrQuery                 = "query"
	logAttrNotificationID        = "notification_id"
	logAttrNotificationType      = "notification_type"
	logAttrRowsAffected          = "rows_affected"
	logAttrDurationMS            = "duration_ms"
	colNotificationID            = "notification_id"
	colNotificationType          = "notification_type"
	colOccurredAt                = "occurred_at"
	colPayload                   = "payload"
	colMetadata                  = "metadata"
	castUUID                     = "?::uuid"
	castTimestamp                = "?::timestamp with time zone"
	castJsonb                    = "?::jsonb"
)

var (
	// ErrNilDatabaseConnection is returned when a constructor is given a nil connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when WithTableName is given an empty name.
	ErrEmptyTableName = errors.New("table name must not be empty")

	// ErrBuildingQueryFailed is returned when the insert statement cannot be built.
	ErrBuildingQueryFailed = errors.New("building notification insert query failed")

	// ErrAppendingNotificationFailed is returned from Update when the insert fails.
	ErrAppendingNotificationFailed = errors.New("appending notification to postgres failed")
)

// Logger is the logging interface of the Observer. *slog.Logger implements it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Observer appends each Notification to a PostgreSQL table. It is safe for concurrent use.
type Observer struct {
	db        adapters.DBAdapter
	tableName string
	logger    Logger
}

// Option defines a functional option for configuring an Observer.
type Option func(*Observer) error

// WithTableName sets the table notifications are appended to. Default is "notifications".
func WithTableName(tableName string) Option {
	return func(o *Observer) error {
		if tableName == "" {
			return ErrEmptyTableName
		}

		o.tableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the Observer.
//
// Debug level: executed SQL with timing
// Info level: one record per appended notification
// Error level: failed inserts.
func WithLogger(logger Logger) Option {
	return func(o *Observer) error {
		o.logger = logger
		return nil
	}
}

// NewFromPGXPool creates an Observer appending through a pgx Pool.
func NewFromPGXPool(db *pgxpool.Pool, options ...Option) (*Observer, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newObserver(adapters.NewPGXAdapter(db), options)
}

// NewFromSQLDB creates an Observer appending through a sql.DB.
func NewFromSQLDB(db *sql.DB, options ...Option) (*Observer, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newObserver(adapters.NewSQLAdapter(db), options)
}

// NewFromSQLX creates an Observer appending through a sqlx.DB.
func NewFromSQLX(db *sqlx.DB, options ...Option) (*Observer, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newObserver(adapters.NewSQLXAdapter(db), options)
}

func newObserver(db adapters.DBAdapter, options []Option) (*Observer, error) {
	o := &Observer{db: db, tableName: defaultTableName}

	for _, option := range options {
		if err := option(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Update implements notify.Observer by inserting notification as one row.
// A row with the same notification ID already present is left untouched.
func (o *Observer) Update(ctx context.Context, notification notify.Notification) error {
	sqlQuery, buildErr := o.buildInsertQuery(notification)
	if buildErr != nil {
		o.logError(logMsgBuildInsertQueryFailed, buildErr, logAttrNotificationID, notification.ID().String())
		return errors.Join(ErrAppendingNotificationFailed, ErrBuildingQueryFailed, buildErr)
	}

	start := time.Now()

	result, execErr := o.db.Exec(ctx, sqlQuery)
	if execErr != nil {
		o.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return errors.Join(ErrAppendingNotificationFailed, execErr)
	}

	duration := time.Since(start)
	rowsAffected, _ := result.RowsAffected()

	if o.logger != nil {
		o.logger.Debug(logMsgSQLExecuted+logActionAppend, logAttrQuery, sqlQuery, logAttrDurationMS, duration.Milliseconds())
		o.logger.Info(
			logMsgNotificationAppended,
			logAttrNotificationID, notification.ID().String(),
			logAttrNotificationType, notification.Type(),
			logAttrRowsAffected, rowsAffected,
		)
	}

	return nil
}

// CreateTableSQL returns the DDL creating the Observer's table if it does not exist.
func (o *Observer) CreateTableSQL() string {
	table := pgx.Identifier{o.tableName}.Sanitize()

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s uuid PRIMARY KEY,
	%s text NOT NULL,
	%s timestamp with time zone NOT NULL,
	%s jsonb NOT NULL,
	%s jsonb NOT NULL,
	appended_at timestamp with time zone NOT NULL DEFAULT now()
)`, table, colNotificationID, colNotificationType, colOccurredAt, colPayload, colMetadata)
}

func (o *Observer) buildInsertQuery(notification notify.Notification) (string, error) {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(o.tableName).
		Cols(colNotificationID, colNotificationType, colOccurredAt, colPayload, colMetadata).
		Vals(goqu.Vals{
			goqu.L(castUUID, notification.ID().String()),
			notification.Type(),
			goqu.L(castTimestamp, notification.OccurredAt()),
			goqu.L(castJsonb, string(notification.PayloadJSON())),
			goqu.L(castJsonb, string(notification.MetadataJSON())),
		}).
		OnConflict(goqu.DoNothing())

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", toSQLErr
	}

	return sqlQuery, nil
}

func (o *Observer) logError(msg string, err error, args ...any) {
	if o.logger == nil {
		return
	}

	o.logger.Error(msg, append([]any{logAttrError, err.Error()}, args...)...)
}

var _ notify.Observer = (*Observer)(nil)
