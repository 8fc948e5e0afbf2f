package syncer

import "time"

// Trigger names the event source that requested a sync.
type Trigger string

// Triggers.
const (
	TriggerStartup    Trigger = "startup"
	TriggerPeriodic   Trigger = "periodic"
	TriggerFocus      Trigger = "focus"
	TriggerVisibility Trigger = "visibility"
	TriggerManual     Trigger = "manual"
)

// State is the orchestrator's sync state.
type State int

// States.
const (
	Idle State = iota
	InProgress
)

func (s State) String() string {
	if s == InProgress {
		return "in progress"
	}
	return "idle"
}

// Reasons reported by ShouldSync and sync_skipped events.
const (
	ReasonManual          = "manual trigger"
	ReasonNeverSynced     = "no previous sync"
	ReasonIntervalElapsed = "interval elapsed"
	ReasonNotDue          = "interval not elapsed"
	ReasonInProgress      = "already in progress"
	ReasonDisabled        = "disabled"
	ReasonStopped         = "sync not started"
	ReasonAutoSyncOff     = "automatic sync disabled"
	ReasonStartupSyncOff  = "startup sync disabled"
	ReasonFocusSyncOff    = "focus sync disabled"
)

// DefaultInterval is the minimum spacing of automatic syncs.
const DefaultInterval = 15 * time.Minute

// Config controls automatic syncing.
type Config struct {
	Enabled       bool
	Interval      time.Duration
	OnStartupSync bool
	OnFocusSync   bool
}

// DefaultConfig enables every automatic trigger with DefaultInterval.
func DefaultConfig() Config {
	return Config{Enabled: true, Interval: DefaultInterval, OnStartupSync: true, OnFocusSync: true}
}

func (c Config) normalized() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}
