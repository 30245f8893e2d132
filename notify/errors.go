package notify

import "errors"

var (
	// ErrNilObserver is returned when a nil Observer is subscribed.
	ErrNilObserver = errors.New("observer must not be nil")

	// ErrNilSnapshotSource is returned when a Dispatcher is created without a snapshot source.
	ErrNilSnapshotSource = errors.New("snapshot source must not be nil")

	// ErrNegativeObserverTimeout is returned when a negative per-observer timeout is configured.
	ErrNegativeObserverTimeout = errors.New("observer timeout must not be negative")

	// ErrObserverFailed marks a failure reported by an Observer's Update.
	ErrObserverFailed = errors.New("observer failed to process notification")

	// ErrObserverPanicked marks an Observer whose Update panicked. It is always joined with ErrObserverFailed.
	ErrObserverPanicked = errors.New("observer panicked while processing notification")

	// ErrObserverTimeout marks an Observer that exceeded the configured processing deadline.
	ErrObserverTimeout = errors.New("observer exceeded processing deadline")

	// ErrDeliveryCanceled marks snapshot entries that were not reached because the publish context ended.
	ErrDeliveryCanceled = errors.New("delivery canceled before observer was reached")
)
