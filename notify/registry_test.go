package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
	"github.com/AntonStoeckl/notification-dispatch-go/testutil/notifytest"
)

func Test_Registry_Subscribe_Returns_Unique_NonZero_Handles(t *testing.T) {
	// arrange
	registry := notify.NewRegistry()
	journal := notifytest.NewJournal()

	// act
	h1, err1 := registry.Subscribe(journal.Observer("O1"))
	h2, err2 := registry.Subscribe(journal.Observer("O2"))

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.False(t, h1.IsZero())
	assert.False(t, h2.IsZero())
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, registry.Len())
}

func Test_Registry_Subscribe_Rejects_Nil_Observer(t *testing.T) {
	registry := notify.NewRegistry()

	h1, err1 := registry.Subscribe(nil)
	h2, err2 := registry.Subscribe(notify.ObserverFunc(nil))

	assert.ErrorIs(t, err1, notify.ErrNilObserver)
	assert.ErrorIs(t, err2, notify.ErrNilObserver)
	assert.True(t, h1.IsZero())
	assert.True(t, h2.IsZero())
	assert.Equal(t, 0, registry.Len())
}

func Test_Registry_Subscribe_Same_Observer_Twice_Yields_Independent_Subscriptions(t *testing.T) {
	// arrange
	registry := notify.NewRegistry()
	observer := notifytest.NewJournal().Observer("O1")

	// act
	h1, _ := registry.Subscribe(observer)
	h2, _ := registry.Subscribe(observer)
	registry.Unsubscribe(h1)

	// assert
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, []notify.Handle{h2}, registry.Snapshot().Handles())
}

func Test_Registry_Unsubscribe_Is_Idempotent(t *testing.T) {
	// arrange
	registry := notify.NewRegistry()
	otherRegistry := notify.NewRegistry()
	journal := notifytest.NewJournal()

	h1, _ := registry.Subscribe(journal.Observer("O1"))
	h2, _ := registry.Subscribe(journal.Observer("O2"))

	for range 5 {
		_, _ = otherRegistry.Subscribe(journal.Observer("foreign"))
	}
	neverIssuedHere, _ := otherRegistry.Subscribe(journal.Observer("foreign"))

	// act
	assert.NotPanics(t, func() {
		registry.Unsubscribe(h1)
		registry.Unsubscribe(h1)
		registry.Unsubscribe(notify.Handle{})
		registry.Unsubscribe(neverIssuedHere)
	})

	// assert
	assert.Equal(t, []notify.Handle{h2}, registry.Snapshot().Handles())
}

func Test_Registry_Unsubscribe_Keeps_Registration_Order_Of_Survivors(t *testing.T) {
	// arrange
	registry := notify.NewRegistry()
	journal := notifytest.NewJournal()

	handles := make([]notify.Handle, 0, 5)
	for _, name := range []string{"O1", "O2", "O3", "O4", "O5"} {
		h, err := registry.Subscribe(journal.Observer(name))
		require.NoError(t, err)
		handles = append(handles, h)
	}

	// act
	registry.Unsubscribe(handles[1])
	registry.Unsubscribe(handles[3])

	// assert
	assert.Equal(t, []notify.Handle{handles[0], handles[2], handles[4]}, registry.Snapshot().Handles())
}

func Test_Registry_Handles_Are_Never_Reused(t *testing.T) {
	// arrange
	registry := notify.NewRegistry()
	journal := notifytest.NewJournal()

	old, _ := registry.Subscribe(journal.Observer("old"))
	registry.Unsubscribe(old)

	// act
	newer, _ := registry.Subscribe(journal.Observer("newer"))
	registry.Unsubscribe(old) // a late unsubscribe must not hit the newer subscription

	// assert
	assert.NotEqual(t, old, newer)
	observer, found := registry.Lookup(newer)
	assert.True(t, found)
	assert.Equal(t, "newer", observer.(*notifytest.RecordingObserver).Name())
}

func Test_Registry_Snapshot_Is_Not_Affected_By_Later_Mutation(t *testing.T) {
	// arrange
	registry := notify.NewRegistry()
	journal := notifytest.NewJournal()

	h1, _ := registry.Subscribe(journal.Observer("O1"))
	h2, _ := registry.Subscribe(journal.Observer("O2"))

	// act
	snapshot := registry.Snapshot()
	registry.Unsubscribe(h1)
	h3, _ := registry.Subscribe(journal.Observer("O3"))

	// assert
	assert.Equal(t, []notify.Handle{h1, h2}, snapshot.Handles())
	assert.Equal(t, []notify.Handle{h2, h3}, registry.Snapshot().Handles())
}

func Test_Registry_Lookup_Unknown_Handle(t *testing.T) {
	registry := notify.NewRegistry()

	observer, found := registry.Lookup(notify.Handle{})

	assert.False(t, found)
	assert.Nil(t, observer)
}

func Test_Registry_Zero_Value_Is_Usable(t *testing.T) {
	var registry notify.Registry

	assert.Equal(t, 0, registry.Snapshot().Len())

	h, err := registry.Subscribe(notifytest.NewJournal().Observer("O1"))
	require.NoError(t, err)
	assert.Equal(t, []notify.Handle{h}, registry.Snapshot().Handles())
}

func Test_Registry_Concurrent_Subscribe_And_Unsubscribe(t *testing.T) {
	// arrange
	registry := notify.NewRegistry()
	journal := notifytest.NewJournal()
	group, _ := errgroup.WithContext(context.Background())

	const workers = 16
	const perWorker = 50

	// act
	for range workers {
		group.Go(func() error {
			for range perWorker {
				h, err := registry.Subscribe(journal.Observer("O"))
				if err != nil {
					return err
				}

				_ = registry.Snapshot()
				registry.Unsubscribe(h)
			}

			return nil
		})
	}

	// assert
	require.NoError(t, group.Wait())
	assert.Equal(t, 0, registry.Len())
}

func Test_Snapshot_Filter_And_Copies(t *testing.T) {
	// arrange
	registry := notify.NewRegistry()
	journal := notifytest.NewJournal()

	h1, _ := registry.Subscribe(journal.Observer("O1"))
	h2, _ := registry.Subscribe(journal.Observer("O2"))
	snapshot := registry.Snapshot()

	// act
	filtered := snapshot.Filter(func(s notify.Subscription) bool { return s.Handle == h2 })
	subscriptions := snapshot.Subscriptions()
	subscriptions[0] = notify.Subscription{}

	// assert
	assert.Equal(t, []notify.Handle{h2}, filtered.Handles())
	assert.Equal(t, h1, snapshot.At(0).Handle, "mutating the returned slice must not affect the snapshot")
	assert.Equal(t, 2, notify.NewSnapshot(snapshot.Subscriptions()...).Len())
}
