package notify

import "context"

// Notifier is one notification core instance: a Registry plus a Dispatcher publishing to its snapshots.
//
// Construct it explicitly and pass it to the components that need it.
type Notifier struct {
	registry   *Registry
	dispatcher *Dispatcher
}

// NewNotifier creates a Notifier with an empty Registry, applying options to its Dispatcher.
func NewNotifier(options ...Option) (*Notifier, error) {
	registry := NewRegistry()

	dispatcher, err := NewDispatcher(registry, options...)
	if err != nil {
		return nil, err
	}

	registry.onChange = dispatcher.recordActiveSubscriptions

	return &Notifier{registry: registry, dispatcher: dispatcher}, nil
}

// Subscribe registers observer at the end of the delivery order. See Registry.Subscribe.
//
// The active subscriptions metric is recorded within the same critical section as the mutation,
// so concurrent mutations record their counts in the order they were applied.
func (n *Notifier) Subscribe(observer Observer) (Handle, error) {
	return n.registry.Subscribe(observer)
}

// Unsubscribe removes the subscription for handle. It is idempotent and never fails.
func (n *Notifier) Unsubscribe(handle Handle) {
	n.registry.Unsubscribe(handle)
}

// Publish delivers notification to every subscription active at the time of the call.
// See Dispatcher.Publish.
func (n *Notifier) Publish(ctx context.Context, notification Notification) DeliveryReport {
	return n.dispatcher.Publish(ctx, notification)
}

// Registry returns the Notifier's Registry, e.g. to look up observers for redelivery.
func (n *Notifier) Registry() *Registry {
	return n.registry
}

// Dispatcher returns the Notifier's Dispatcher.
func (n *Notifier) Dispatcher() *Dispatcher {
	return n.dispatcher
}
