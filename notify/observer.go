package notify

import "context"

// Observer receives a Notification and reports success (nil) or failure (non-nil error).
//
// Update is called synchronously by the Dispatcher. The context carries the publish call's
// deadline, or the per-observer deadline when WithObserverTimeout is configured.
// An Observer may subscribe or unsubscribe observers, itself included, from within Update.
type Observer interface {
	Update(ctx context.Context, notification Notification) error
}

// ObserverFunc adapts an ordinary function to the Observer interface.
type ObserverFunc func(ctx context.Context, notification Notification) error

// Update calls f(ctx, notification).
func (f ObserverFunc) Update(ctx context.Context, notification Notification) error {
	return f(ctx, notification)
}

func isNilObserver(observer Observer) bool {
	if observer == nil {
		return true
	}

	if f, ok := observer.(ObserverFunc); ok && f == nil {
		return true
	}

	return false
}
