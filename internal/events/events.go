// Package events is a synchronous publish/subscribe hub for sync lifecycle
// events. Subscribers run on the publisher's goroutine in subscription
// order; a panicking subscriber is recovered and logged so the remaining
// subscribers still see the event.
package events

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind identifies an event.
type Kind string

// Event kinds.
const (
	SyncStarted   Kind = "sync_started"
	SyncCompleted Kind = "sync_completed"
	SyncSkipped   Kind = "sync_skipped"
	SyncFailed    Kind = "sync_failed"
	// Notification asks the UI to surface a non-blocking message.
	Notification Kind = "notification"
)

// Event is one lifecycle notification.
type Event struct {
	Kind        Kind
	Trigger     string
	Reason      string
	SyncedCount int
	TotalCount  int
	Err         error
	Message     string
	At          time.Time
}

// String renders the event for logs and the activity view.
func (e Event) String() string {
	switch e.Kind {
	case SyncStarted:
		return fmt.Sprintf("sync started (%s)", e.Trigger)
	case SyncCompleted:
		return fmt.Sprintf("sync completed (%s): %d of %d bookings synced", e.Trigger, e.SyncedCount, e.TotalCount)
	case SyncSkipped:
		return fmt.Sprintf("sync skipped (%s): %s", e.Trigger, e.Reason)
	case SyncFailed:
		return fmt.Sprintf("sync failed (%s): %v", e.Trigger, e.Err)
	case Notification:
		return e.Message
	}
	return string(e.Kind)
}

// Handler receives events.
type Handler func(Event)

// Notifier fans events out to subscribers.
type Notifier struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]Handler
	log    *zap.SugaredLogger
}

// NewNotifier creates an empty Notifier.
func NewNotifier(log *zap.SugaredLogger) *Notifier {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Notifier{subs: make(map[uint64]Handler), log: log}
}

// Subscribe registers h and returns a function that removes it. Calling the
// returned function more than once is safe.
func (n *Notifier) Subscribe(h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[id] = h
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Publish delivers e to every current subscriber before returning.
func (n *Notifier) Publish(e Event) {
	if n == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	n.mu.RLock()
	ids := make([]uint64, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, n.subs[id])
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		n.deliver(h, e)
	}
}

// SubscriberCount returns the current number of subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

func (n *Notifier) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Errorf("event subscriber panicked on %s: %v", e.Kind, r)
		}
	}()
	h(e)
}
