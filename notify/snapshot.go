package notify

import "slices"

// SnapshotSource produces the Snapshot a Dispatcher delivers to. Registry implements it.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// Snapshot is an ordered, immutable copy of subscriptions taken at the start of a publish call.
// It defines exactly who receives that call's Notification.
type Snapshot struct {
	subscriptions []Subscription
}

// NewSnapshot builds a Snapshot from the given subscriptions, keeping their order.
// The input slice is copied.
func NewSnapshot(subscriptions ...Subscription) Snapshot {
	return Snapshot{subscriptions: slices.Clone(subscriptions)}
}

// Len returns the number of subscriptions in the Snapshot.
func (s Snapshot) Len() int {
	return len(s.subscriptions)
}

// At returns the i-th subscription in delivery order. It panics if i is out of range.
func (s Snapshot) At(i int) Subscription {
	return s.subscriptions[i]
}

// Subscriptions returns a copy of all subscriptions in delivery order.
func (s Snapshot) Subscriptions() []Subscription {
	return slices.Clone(s.subscriptions)
}

// Handles returns the handles of all subscriptions in delivery order.
func (s Snapshot) Handles() []Handle {
	handles := make([]Handle, 0, len(s.subscriptions))
	for _, subscription := range s.subscriptions {
		handles = append(handles, subscription.Handle)
	}

	return handles
}

// Filter returns a new Snapshot with the subscriptions for which keep returns true, order preserved.
func (s Snapshot) Filter(keep func(Subscription) bool) Snapshot {
	kept := make([]Subscription, 0, len(s.subscriptions))
	for _, subscription := range s.subscriptions {
		if keep(subscription) {
			kept = append(kept, subscription)
		}
	}

	return Snapshot{subscriptions: kept}
}
