package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/events"
	"github.com/guidedesk/guidedesk/internal/kv"
	"github.com/guidedesk/guidedesk/internal/session"
)

//go:generate mockgen -destination=mocks/mock_remote.go -package=mocks github.com/guidedesk/guidedesk/internal/syncer Remote

// Remote is the part of the booking API the orchestrator drives.
type Remote interface {
	SyncEnabled(ctx context.Context) (bool, error)
	RunSync(ctx context.Context, trigger string) (api.SyncResult, error)
}

var _ Remote = (*api.Client)(nil)

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(events.Event)
}

// KeyLastSync stores the time of the last successful sync (RFC 3339).
const KeyLastSync = "bokun_last_sync"

// ErrNotAdmin is returned by Start for sessions without the admin role.
var ErrNotAdmin = errors.New("sync requires an administrator session")

const defaultDebounce = 5 * time.Second

// Orchestrator runs Bokun syncs on behalf of the triggers wired to it. At
// most one sync runs at a time across every trigger.
type Orchestrator struct {
	remote  Remote
	state   kv.Store
	notify  Publisher
	log     *zap.SugaredLogger
	now     func() time.Time
	limiter *rate.Limiter

	inProgress atomic.Bool

	mu      sync.Mutex
	cfg     Config
	sources []TriggerSource
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	reset   chan struct{}
	loops   sync.WaitGroup
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithDebounce sets the minimum spacing between focus and visibility
// triggers. Zero disables debouncing.
func WithDebounce(window time.Duration) Option {
	return func(o *Orchestrator) {
		if window <= 0 {
			o.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		o.limiter = rate.NewLimiter(rate.Every(window), 1)
	}
}

// New builds an idle, stopped Orchestrator.
func New(remote Remote, state kv.Store, notify Publisher, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		remote:  remote,
		state:   state,
		notify:  notify,
		log:     zap.NewNop().Sugar(),
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Every(defaultDebounce), 1),
		cfg:     cfg.normalized(),
		reset:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State reports whether a sync is running.
func (o *Orchestrator) State() State {
	if o.inProgress.Load() {
		return InProgress
	}
	return Idle
}

// Config returns the active configuration.
func (o *Orchestrator) Config() Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// SetConfig replaces the configuration. The periodic timer is re-armed at
// once, so disabling stops it and enabling starts it without waiting for
// the previous period to elapse.
func (o *Orchestrator) SetConfig(cfg Config) {
	cfg = cfg.normalized()
	o.mu.Lock()
	prev := o.cfg
	o.cfg = cfg
	o.mu.Unlock()

	if prev != cfg {
		o.log.Infof("sync config updated: enabled=%t interval=%s startup=%t focus=%t",
			cfg.Enabled, cfg.Interval, cfg.OnStartupSync, cfg.OnFocusSync)
	}
	select {
	case o.reset <- struct{}{}:
	default:
	}
}

// Running reports whether Start has been called without a matching Stop.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// TimerActive reports whether the periodic timer is armed.
func (o *Orchestrator) TimerActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running && o.cfg.Enabled
}

// LastSyncTime returns the persisted time of the last successful sync. An
// unreadable or malformed value counts as absent.
func (o *Orchestrator) LastSyncTime() (time.Time, bool) {
	raw, ok, err := o.state.Get(KeyLastSync)
	if err != nil {
		o.log.Warnf("read last sync time: %v", err)
		return time.Time{}, false
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return time.Time{}, false
	}
	last, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		o.log.Debugf("ignoring malformed last sync time %q", raw)
		return time.Time{}, false
	}
	return last, true
}

// ShouldSync applies the interval policy to trigger. Manual triggers always
// proceed; every other trigger proceeds only when no sync has succeeded yet
// or the interval has fully elapsed since the last one.
func (o *Orchestrator) ShouldSync(trigger Trigger) (bool, string) {
	if trigger == TriggerManual {
		return true, ReasonManual
	}
	last, ok := o.LastSyncTime()
	if !ok {
		return true, ReasonNeverSynced
	}
	interval := o.Config().Interval
	if o.now().Sub(last) >= interval {
		return true, ReasonIntervalElapsed
	}
	return false, ReasonNotDue
}

// AddSource attaches a trigger source. Sources added while running start
// immediately.
func (o *Orchestrator) AddSource(src TriggerSource) {
	if src == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources = append(o.sources, src)
	if o.running {
		o.watchLocked(src)
	}
}

// Start enables automatic syncing for sess. Non-admin sessions stop the
// orchestrator instead and get ErrNotAdmin. Starting twice is a no-op.
func (o *Orchestrator) Start(ctx context.Context, sess session.Session) error {
	if !sess.IsAdmin() {
		o.Stop()
		return ErrNotAdmin
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.runCtx = runCtx
	o.cancel = cancel
	cfg := o.cfg

	o.loops.Add(1)
	go o.runTimer(runCtx)
	for _, src := range o.sources {
		o.watchLocked(src)
	}
	if cfg.Enabled && cfg.OnStartupSync {
		o.dispatch(runCtx, TriggerStartup)
	}
	o.mu.Unlock()

	o.log.Infof("sync orchestrator started for %s", sess.Name)
	return nil
}

// Stop disables automatic syncing: the timer is cleared and sources are
// detached. A sync already running is cancelled through its context. Stop
// must not be called from an event handler of this orchestrator.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.runCtx = nil
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.loops.Wait()
	o.log.Infof("sync orchestrator stopped")
}

// Request handles a trigger: it checks that the orchestrator is running,
// applies the per-trigger settings and the interval policy, and then runs
// PerformSync. Gated triggers publish sync_skipped.
func (o *Orchestrator) Request(ctx context.Context, trigger Trigger) {
	if !o.Running() {
		o.skip(trigger, ReasonStopped)
		return
	}
	cfg := o.Config()
	if trigger != TriggerManual && !cfg.Enabled {
		o.skip(trigger, ReasonAutoSyncOff)
		return
	}
	switch trigger {
	case TriggerStartup:
		if !cfg.OnStartupSync {
			o.skip(trigger, ReasonStartupSyncOff)
			return
		}
	case TriggerFocus, TriggerVisibility:
		if !cfg.OnFocusSync {
			o.skip(trigger, ReasonFocusSyncOff)
			return
		}
		if !o.limiter.Allow() {
			o.log.Debugf("%s trigger debounced", trigger)
			return
		}
	}
	if ok, reason := o.ShouldSync(trigger); !ok {
		o.skip(trigger, reason)
		return
	}
	o.PerformSync(ctx, trigger)
}

// PerformSync runs one sync attempt. It never returns an error: every
// outcome is published as an event, and the orchestrator is back to Idle
// when it returns, including when the remote call panics.
func (o *Orchestrator) PerformSync(ctx context.Context, trigger Trigger) {
	if !o.inProgress.CompareAndSwap(false, true) {
		o.skip(trigger, ReasonInProgress)
		return
	}
	defer o.inProgress.Store(false)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("sync panicked: %v", r)
			o.log.Errorf("%s sync: %v", trigger, err)
			o.publish(events.Event{Kind: events.SyncFailed, Trigger: string(trigger), Err: err})
		}
	}()

	o.publish(events.Event{Kind: events.SyncStarted, Trigger: string(trigger)})

	enabled, err := o.remote.SyncEnabled(ctx)
	if err != nil {
		o.fail(trigger, fmt.Errorf("check sync config: %w", err))
		return
	}
	if !enabled {
		o.skip(trigger, ReasonDisabled)
		return
	}

	result, err := o.remote.RunSync(ctx, string(trigger))
	if err != nil {
		o.fail(trigger, err)
		return
	}
	if !result.Success {
		msg := strings.TrimSpace(result.Error)
		if msg == "" {
			msg = "server reported an unsuccessful sync"
		}
		o.fail(trigger, errors.New(msg))
		return
	}

	now := o.now()
	if err := o.state.Set(KeyLastSync, now.UTC().Format(time.RFC3339Nano)); err != nil {
		o.log.Warnf("persist last sync time: %v", err)
	}
	o.log.Infof("%s sync completed: %d of %d bookings synced", trigger, result.SyncedCount, result.TotalBookings)
	o.publish(events.Event{
		Kind:        events.SyncCompleted,
		Trigger:     string(trigger),
		SyncedCount: result.SyncedCount,
		TotalCount:  result.TotalBookings,
	})

	if result.SyncedCount > 0 && trigger != TriggerManual {
		o.publish(events.Event{
			Kind:        events.Notification,
			Trigger:     string(trigger),
			SyncedCount: result.SyncedCount,
			TotalCount:  result.TotalBookings,
			Message:     notificationMessage(result.SyncedCount),
		})
	}
}

func notificationMessage(n int) string {
	if n == 1 {
		return "1 booking synced from Bokun"
	}
	return fmt.Sprintf("%d bookings synced from Bokun", n)
}

func (o *Orchestrator) fail(trigger Trigger, err error) {
	o.log.Warnf("%s sync failed: %v", trigger, err)
	o.publish(events.Event{Kind: events.SyncFailed, Trigger: string(trigger), Err: err})
}

func (o *Orchestrator) skip(trigger Trigger, reason string) {
	o.log.Debugf("%s sync skipped: %s", trigger, reason)
	o.publish(events.Event{Kind: events.SyncSkipped, Trigger: string(trigger), Reason: reason})
}

func (o *Orchestrator) publish(e events.Event) {
	if o.notify == nil {
		return
	}
	if e.At.IsZero() {
		e.At = o.now()
	}
	o.notify.Publish(e)
}

func (o *Orchestrator) watchLocked(src TriggerSource) {
	ctx := o.runCtx
	o.loops.Add(1)
	go func() {
		defer o.loops.Done()
		src.Watch(ctx, func(t Trigger) { o.dispatch(ctx, t) })
	}()
}

// dispatch handles t on its own goroutine so a trigger fired while a sync
// runs reaches the in-progress guard and is skipped rather than queued
// behind it. The caller must hold o.mu or a reference in o.loops.
func (o *Orchestrator) dispatch(ctx context.Context, t Trigger) {
	o.loops.Add(1)
	go func() {
		defer o.loops.Done()
		o.Request(ctx, t)
	}()
}

// runTimer fires periodic triggers. It re-reads the configuration whenever
// SetConfig signals a change, so a disabled config parks the loop until it
// is enabled again.
func (o *Orchestrator) runTimer(ctx context.Context) {
	defer o.loops.Done()
	for {
		cfg := o.Config()
		if !cfg.Enabled {
			select {
			case <-ctx.Done():
				return
			case <-o.reset:
				continue
			}
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-o.reset:
			timer.Stop()
		case <-timer.C:
			o.Request(ctx, TriggerPeriodic)
		}
	}
}
