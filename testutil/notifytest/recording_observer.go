package notifytest

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
)

// Delivery is one Update call captured by a Journal.
type Delivery struct {
	Observer     string
	Notification notify.Notification
}

// Journal records the Update calls of all observers created from it, in call order.
// It is safe for concurrent use.
type Journal struct {
	mu         sync.Mutex
	deliveries []Delivery
}

// NewJournal creates an empty Journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Observer creates a RecordingObserver named name that records into j and succeeds.
func (j *Journal) Observer(name string) *RecordingObserver {
	return &RecordingObserver{name: name, journal: j}
}

// FailingObserver creates a RecordingObserver that records into j and then fails with err.
func (j *Journal) FailingObserver(name string, err error) *RecordingObserver {
	return j.Observer(name).WithHook(func(context.Context, notify.Notification) error {
		return err
	})
}

// PanickingObserver creates a RecordingObserver that records into j and then panics with value.
func (j *Journal) PanickingObserver(name string, value any) *RecordingObserver {
	return j.Observer(name).WithHook(func(context.Context, notify.Notification) error {
		panic(value)
	})
}

// BlockingObserver creates a RecordingObserver that records into j and then blocks until release is closed.
// It ignores its context, like a hanging observer would.
func (j *Journal) BlockingObserver(name string, release <-chan struct{}) *RecordingObserver {
	return j.Observer(name).WithHook(func(context.Context, notify.Notification) error {
		<-release
		return nil
	})
}

// Deliveries returns a copy of all recorded deliveries.
func (j *Journal) Deliveries() []Delivery {
	j.mu.Lock()
	defer j.mu.Unlock()

	return append([]Delivery(nil), j.deliveries...)
}

// Names returns the observer names of all recorded deliveries in call order.
func (j *Journal) Names() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	names := make([]string, 0, len(j.deliveries))
	for _, delivery := range j.deliveries {
		names = append(names, delivery.Observer)
	}

	return names
}

// CountFor returns how often the observer named name was called.
func (j *Journal) CountFor(name string) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	count := 0
	for _, delivery := range j.deliveries {
		if delivery.Observer == name {
			count++
		}
	}

	return count
}

// Reset clears all recorded deliveries.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.deliveries = j.deliveries[:0]
}

func (j *Journal) record(name string, notification notify.Notification) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.deliveries = append(j.deliveries, Delivery{Observer: name, Notification: notification})
}

// RecordingObserver is a notify.Observer that records every Update call into its Journal
// and then runs an optional hook, whose result becomes the Update result.
type RecordingObserver struct {
	name    string
	journal *Journal
	hook    func(ctx context.Context, notification notify.Notification) error
}

// WithHook sets the function run after recording and returns o.
func (o *RecordingObserver) WithHook(hook func(ctx context.Context, notification notify.Notification) error) *RecordingObserver {
	o.hook = hook
	return o
}

// Name returns the observer's name.
func (o *RecordingObserver) Name() string {
	return o.name
}

// Update implements notify.Observer.
func (o *RecordingObserver) Update(ctx context.Context, notification notify.Notification) error {
	o.journal.record(o.name, notification)

	if o.hook != nil {
		return o.hook(ctx, notification)
	}

	return nil
}

var _ notify.Observer = (*RecordingObserver)(nil)
