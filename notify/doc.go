// Package notify provides an in-process notification dispatch core built on the
// observer / publish-subscribe pattern.
//
// The package is made of two cooperating parts:
//   - Registry: the authoritative, ordered set of active subscriptions
//   - Dispatcher: delivers one Notification to every subscription of a Snapshot
//
// A Notifier bundles one Registry and one Dispatcher into the instance an application
// constructs and passes around explicitly. There is no package-level default instance.
//
// Delivery semantics:
//   - A Snapshot of the Registry is taken at the start of every publish call and defines
//     exactly who receives that call's Notification.
//   - Delivery is sequential and follows registration order.
//   - Subscriptions added or removed while a publish call is in flight only affect later calls.
//   - A failing, panicking or timed-out Observer never prevents delivery to the next one;
//     failures are only reported through the returned DeliveryReport.
//
// Common usage pattern:
//
//	notifier, err := notify.NewNotifier(
//		notify.WithObserverTimeout(2*time.Second),
//		notify.WithLogger(slog.Default()),
//	)
//	if err != nil {
//		// handle error
//	}
//
//	handle, _ := notifier.Subscribe(notify.ObserverFunc(func(ctx context.Context, n notify.Notification) error {
//		return display.Show(n)
//	}))
//
//	notification, _ := notify.BuildNotificationFromValue("WeatherChanged", time.Now(), reading)
//	report := notifier.Publish(ctx, notification)
//	if !report.OK() {
//		// log, retry (see package redeliver) or ignore report.Failures
//	}
//
//	notifier.Unsubscribe(handle)
package notify
