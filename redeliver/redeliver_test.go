package redeliver_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
	"github.com/AntonStoeckl/notification-dispatch-go/redeliver"
	"github.com/AntonStoeckl/notification-dispatch-go/testutil/notifytest"
)

var errTransient = errors.New("sms gateway temporarily unavailable")

func givenNotification(t *testing.T) notify.Notification {
	t.Helper()

	notification, err := notify.BuildNotificationFromValue("WeatherChanged", time.Now(), "Sunny")
	require.NoError(t, err)

	return notification
}

// flakyHook fails the first failures calls and succeeds afterwards.
func flakyHook(failures int32) func(context.Context, notify.Notification) error {
	var calls atomic.Int32

	return func(context.Context, notify.Notification) error {
		if calls.Add(1) <= failures {
			return errTransient
		}
		return nil
	}
}

func fastOptions(options ...redeliver.Option) []redeliver.Option {
	return append([]redeliver.Option{redeliver.WithBaseDelay(time.Millisecond), redeliver.WithJitterFactor(0)}, options...)
}

func Test_Redeliver_Reaches_Only_Failed_Handles(t *testing.T) {
	// arrange
	ctx := context.Background()
	notifier, err := notify.NewNotifier()
	require.NoError(t, err)

	journal := notifytest.NewJournal()
	_, _ = notifier.Subscribe(journal.Observer("phone"))
	_, _ = notifier.Subscribe(journal.Observer("sms").WithHook(flakyHook(1)))
	_, _ = notifier.Subscribe(journal.Observer("tv"))

	notification := givenNotification(t)
	report := notifier.Publish(ctx, notification)
	require.Equal(t, 1, report.Failed())
	journal.Reset()

	// act
	final, err := redeliver.Redeliver(ctx, notifier.Dispatcher(), notifier.Registry(), notification, report, fastOptions()...)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"sms"}, journal.Names())
	assert.True(t, final.OK())
	assert.Equal(t, 3, final.Attempted)
	assert.Equal(t, 3, final.Succeeded)
	assert.Equal(t, notification.ID(), final.NotificationID)
}

func Test_Redeliver_Skips_Unsubscribed_Handles(t *testing.T) {
	// arrange
	ctx := context.Background()
	notifier, err := notify.NewNotifier()
	require.NoError(t, err)

	journal := notifytest.NewJournal()
	gone, _ := notifier.Subscribe(journal.FailingObserver("email", errTransient))
	_, _ = notifier.Subscribe(journal.Observer("sms").WithHook(flakyHook(1)))

	notification := givenNotification(t)
	report := notifier.Publish(ctx, notification)
	require.Equal(t, 2, report.Failed())

	notifier.Unsubscribe(gone)
	journal.Reset()

	// act
	final, err := redeliver.Redeliver(ctx, notifier.Dispatcher(), notifier.Registry(), notification, report, fastOptions()...)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"sms"}, journal.Names())
	assert.Equal(t, []notify.Handle{gone}, final.FailedHandles())
	assert.ErrorIs(t, final.Failures[0].Reason, errTransient)
	assert.Equal(t, final.Attempted, final.Succeeded+final.Failed())
}

func Test_Redeliver_Gives_Up_After_Max_Attempts(t *testing.T) {
	// arrange
	ctx := context.Background()
	metrics := notifytest.NewMetricsCollectorSpy(true)
	notifier, err := notify.NewNotifier()
	require.NoError(t, err)

	journal := notifytest.NewJournal()
	handle, _ := notifier.Subscribe(journal.FailingObserver("email", errTransient))

	notification := givenNotification(t)
	report := notifier.Publish(ctx, notification)
	journal.Reset()

	// act
	final, err := redeliver.Redeliver(
		ctx, notifier.Dispatcher(), notifier.Registry(), notification, report,
		fastOptions(redeliver.WithMaxAttempts(4), redeliver.WithMetrics(metrics))...,
	)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 4, journal.CountFor("email"))
	assert.Equal(t, []notify.Handle{handle}, final.FailedHandles())
	assert.Len(t, metrics.GetDurationRecords(), 4)
	assert.True(t, metrics.HasDurationRecordForMetric(redeliver.MetricRedeliveryDelay).WithLabel("attempt_number", "4").Assert())
	assert.True(t, metrics.HasCounterRecordForMetric(redeliver.MetricRedeliveryExhausted).
		WithLabel("final_failure_type", notify.FailureTypeObserverError).
		Assert())
}

func Test_Redeliver_Does_Not_Retry_Panics_By_Default(t *testing.T) {
	// arrange
	ctx := context.Background()
	notifier, err := notify.NewNotifier()
	require.NoError(t, err)

	journal := notifytest.NewJournal()
	_, _ = notifier.Subscribe(journal.PanickingObserver("tv", "broken"))

	notification := givenNotification(t)
	report := notifier.Publish(ctx, notification)
	journal.Reset()

	// act
	final, err := redeliver.Redeliver(ctx, notifier.Dispatcher(), notifier.Registry(), notification, report, fastOptions()...)

	// assert
	require.NoError(t, err)
	assert.Empty(t, journal.Names())
	assert.ErrorIs(t, final.Failures[0].Reason, notify.ErrObserverPanicked)
}

func Test_Redeliver_With_Custom_Retryable(t *testing.T) {
	// arrange
	ctx := context.Background()
	notifier, err := notify.NewNotifier()
	require.NoError(t, err)

	journal := notifytest.NewJournal()
	permanent := errors.New("invalid phone number")
	_, _ = notifier.Subscribe(journal.FailingObserver("sms", permanent))

	notification := givenNotification(t)
	report := notifier.Publish(ctx, notification)
	journal.Reset()

	onlyTransient := func(reason error) bool { return errors.Is(reason, errTransient) }

	// act
	final, err := redeliver.Redeliver(
		ctx, notifier.Dispatcher(), notifier.Registry(), notification, report,
		fastOptions(redeliver.WithRetryable(onlyTransient))...,
	)

	// assert
	require.NoError(t, err)
	assert.Empty(t, journal.Names())
	assert.Equal(t, 1, final.Failed())
}

func Test_Redeliver_Returns_Context_Error_While_Waiting(t *testing.T) {
	// arrange
	notifier, err := notify.NewNotifier()
	require.NoError(t, err)

	journal := notifytest.NewJournal()
	_, _ = notifier.Subscribe(journal.FailingObserver("email", errTransient))

	notification := givenNotification(t)
	report := notifier.Publish(context.Background(), notification)
	journal.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	final, err := redeliver.Redeliver(ctx, notifier.Dispatcher(), notifier.Registry(), notification, report,
		redeliver.WithBaseDelay(time.Hour))

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, journal.Names())
	assert.Equal(t, 1, final.Failed())
}

func Test_Redeliver_Without_Failures_Is_A_NoOp(t *testing.T) {
	notifier, err := notify.NewNotifier()
	require.NoError(t, err)

	report := notify.DeliveryReport{Attempted: 2, Succeeded: 2}

	final, err := redeliver.Redeliver(context.Background(), notifier.Dispatcher(), notifier.Registry(), givenNotification(t), report,
		redeliver.WithBaseDelay(time.Hour))

	require.NoError(t, err)
	assert.True(t, final.OK())
	assert.Equal(t, 2, final.Succeeded)
}

func Test_Redeliver_Rejects_Invalid_Options(t *testing.T) {
	notifier, err := notify.NewNotifier()
	require.NoError(t, err)

	testCases := []struct {
		description string
		option      redeliver.Option
		expectedErr error
	}{
		{"zero max attempts", redeliver.WithMaxAttempts(0), redeliver.ErrInvalidMaxAttempts},
		{"negative base delay", redeliver.WithBaseDelay(-time.Second), redeliver.ErrNegativeBaseDelay},
		{"zero max delay", redeliver.WithMaxDelay(0), redeliver.ErrInvalidMaxDelay},
		{"jitter above one", redeliver.WithJitterFactor(1.5), redeliver.ErrInvalidJitterFactor},
		{"jitter below zero", redeliver.WithJitterFactor(-0.1), redeliver.ErrInvalidJitterFactor},
		{"nil retryable", redeliver.WithRetryable(nil), redeliver.ErrNilRetryable},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			_, err := redeliver.Redeliver(context.Background(), notifier.Dispatcher(), notifier.Registry(),
				givenNotification(t), notify.DeliveryReport{}, tc.option)

			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}

	_, nilDelivererErr := redeliver.Redeliver(context.Background(), nil, notifier.Registry(), givenNotification(t), notify.DeliveryReport{})
	_, nilLookupErr := redeliver.Redeliver(context.Background(), notifier.Dispatcher(), nil, givenNotification(t), notify.DeliveryReport{})

	assert.ErrorIs(t, nilDelivererErr, redeliver.ErrNilDeliverer)
	assert.ErrorIs(t, nilLookupErr, redeliver.ErrNilLookup)
}
