package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_DeliversInSubscriptionOrder(t *testing.T) {
	n := NewNotifier(nil)
	var got []string
	n.Subscribe(func(e Event) { got = append(got, "first:"+string(e.Kind)) })
	n.Subscribe(func(e Event) { got = append(got, "second:"+string(e.Kind)) })

	n.Publish(Event{Kind: SyncStarted, Trigger: "manual"})

	assert.Equal(t, []string{"first:sync_started", "second:sync_started"}, got)
}

func TestPublish_IsolatesPanickingSubscriber(t *testing.T) {
	n := NewNotifier(nil)
	var delivered int
	n.Subscribe(func(Event) { delivered++ })
	n.Subscribe(func(Event) { panic("boom") })
	n.Subscribe(func(Event) { delivered++ })

	require.NotPanics(t, func() {
		n.Publish(Event{Kind: SyncFailed, Err: errors.New("offline")})
	})
	assert.Equal(t, 2, delivered)
}

func TestUnsubscribe_StopsDeliveryAndIsIdempotent(t *testing.T) {
	n := NewNotifier(nil)
	var count int
	unsubscribe := n.Subscribe(func(Event) { count++ })

	n.Publish(Event{Kind: SyncCompleted})
	unsubscribe()
	unsubscribe()
	n.Publish(Event{Kind: SyncCompleted})

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, n.SubscriberCount())
}

func TestSubscribeDuringPublish(t *testing.T) {
	n := NewNotifier(nil)
	var late int
	n.Subscribe(func(Event) {
		n.Subscribe(func(Event) { late++ })
	})

	require.NotPanics(t, func() { n.Publish(Event{Kind: SyncStarted}) })
	assert.Equal(t, 0, late)

	n.Publish(Event{Kind: SyncStarted})
	assert.Equal(t, 1, late)
}

func TestEventString(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Event{Kind: SyncStarted, Trigger: "focus"}, "sync started (focus)"},
		{Event{Kind: SyncCompleted, Trigger: "periodic", SyncedCount: 2, TotalCount: 7}, "sync completed (periodic): 2 of 7 bookings synced"},
		{Event{Kind: SyncSkipped, Trigger: "manual", Reason: "already in progress"}, "sync skipped (manual): already in progress"},
		{Event{Kind: SyncFailed, Trigger: "startup", Err: errors.New("timeout")}, "sync failed (startup): timeout"},
		{Event{Kind: Notification, Message: "3 new bookings"}, "3 new bookings"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.event.String())
	}
}
