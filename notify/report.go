package notify

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Failure records one Observer that did not process a Notification successfully.
//
// Reason always matches one of ErrObserverFailed, ErrObserverTimeout or ErrDeliveryCanceled via errors.Is,
// joined with the underlying cause.
type Failure struct {
	Handle Handle
	Reason error
}

// DeliveryReport summarizes the outcome of one publish call.
//
// Attempted equals the size of the delivered Snapshot and always equals Succeeded + len(Failures).
// Failures are listed in delivery order.
type DeliveryReport struct {
	NotificationID uuid.UUID
	Attempted      int
	Succeeded      int
	Failures       []Failure
	Duration       time.Duration
}

// OK reports whether every attempted Observer succeeded.
func (r DeliveryReport) OK() bool {
	return len(r.Failures) == 0
}

// Failed returns the number of failed deliveries.
func (r DeliveryReport) Failed() int {
	return len(r.Failures)
}

// FailedHandles returns the handles of all failed deliveries in delivery order.
func (r DeliveryReport) FailedHandles() []Handle {
	handles := make([]Handle, 0, len(r.Failures))
	for _, failure := range r.Failures {
		handles = append(handles, failure.Handle)
	}

	return handles
}

// Err joins all failure reasons into one error, or returns nil if the report is OK.
func (r DeliveryReport) Err() error {
	if r.OK() {
		return nil
	}

	reasons := make([]error, 0, len(r.Failures))
	for _, failure := range r.Failures {
		reasons = append(reasons, failure.Reason)
	}

	return errors.Join(reasons...)
}
