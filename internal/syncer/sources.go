package syncer

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// TriggerSource delivers triggers from the host environment. Watch blocks
// until ctx is done, calling fire for each trigger.
type TriggerSource interface {
	Watch(ctx context.Context, fire func(Trigger))
}

// ChannelSource forwards triggers fired by the host, such as a key press
// for a manual sync or a terminal focus event.
type ChannelSource struct {
	ch chan Trigger
}

// NewChannelSource returns a ChannelSource with a small buffer.
func NewChannelSource() *ChannelSource {
	return &ChannelSource{ch: make(chan Trigger, 4)}
}

// Fire queues t without blocking. When the buffer is full the trigger is
// dropped.
func (s *ChannelSource) Fire(t Trigger) bool {
	select {
	case s.ch <- t:
		return true
	default:
		return false
	}
}

// Watch implements TriggerSource.
func (s *ChannelSource) Watch(ctx context.Context, fire func(Trigger)) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.ch:
			fire(t)
		}
	}
}

// VisibilitySource emits TriggerVisibility only when the host goes from
// hidden to visible.
type VisibilitySource struct {
	mu      sync.Mutex
	visible bool
	inner   *ChannelSource
}

// NewVisibilitySource starts in the visible state.
func NewVisibilitySource() *VisibilitySource {
	return &VisibilitySource{visible: true, inner: NewChannelSource()}
}

// SetVisible records the host visibility and fires on a hidden to visible
// transition. It reports whether a trigger was emitted.
func (s *VisibilitySource) SetVisible(visible bool) bool {
	s.mu.Lock()
	becameVisible := visible && !s.visible
	s.visible = visible
	s.mu.Unlock()

	if !becameVisible {
		return false
	}
	return s.inner.Fire(TriggerVisibility)
}

// Visible reports the last recorded visibility.
func (s *VisibilitySource) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Watch implements TriggerSource.
func (s *VisibilitySource) Watch(ctx context.Context, fire func(Trigger)) {
	s.inner.Watch(ctx, fire)
}

// SignalSource turns OS signals into a trigger, e.g. SIGUSR1 into a manual
// sync for the headless agent.
type SignalSource struct {
	trigger Trigger
	signals []os.Signal
}

// NewSignalSource maps signals to trigger.
func NewSignalSource(trigger Trigger, signals ...os.Signal) *SignalSource {
	return &SignalSource{trigger: trigger, signals: signals}
}

// Watch implements TriggerSource.
func (s *SignalSource) Watch(ctx context.Context, fire func(Trigger)) {
	if len(s.signals) == 0 {
		<-ctx.Done()
		return
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, s.signals...)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			fire(s.trigger)
		}
	}
}
