package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/bokun"
	"github.com/guidedesk/guidedesk/internal/server/store"
)

// ErrImportRunning rejects an import while another one is in progress.
var ErrImportRunning = errors.New("a Bokun import is already running")

// BookingSource lists bookings starting in [from, to). It returns the
// bookings and the total reported upstream.
type BookingSource interface {
	SearchBookings(ctx context.Context, from, to time.Time) ([]bokun.Booking, int, error)
}

// Importer copies Bokun bookings into the tour table and audits every run.
type Importer struct {
	source       BookingSource
	store        store.Store
	log          *zap.SugaredLogger
	now          func() time.Time
	lookback     time.Duration
	lookahead    time.Duration
	defaultGuide int64
	onDone       func(syncType string, result api.SyncResult)

	running atomic.Bool
}

// NewImporter builds an importer. A nil source makes every run fail with
// bokun.ErrNotConfigured, which is still recorded in the audit log.
func NewImporter(source BookingSource, st store.Store, cfg BokunConfig, log *zap.SugaredLogger) *Importer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Importer{
		source:       source,
		store:        st,
		log:          log,
		now:          time.Now,
		lookback:     time.Duration(cfg.LookbackDays) * 24 * time.Hour,
		lookahead:    time.Duration(cfg.LookaheadDays) * 24 * time.Hour,
		defaultGuide: cfg.DefaultGuideID,
	}
}

// Run imports the configured window. Upstream failures are reported in the
// result, not as an error; the error is reserved for runs that could not
// start.
func (im *Importer) Run(ctx context.Context, trigger, syncType string) (api.SyncResult, error) {
	if !im.running.CompareAndSwap(false, true) {
		return api.SyncResult{}, ErrImportRunning
	}
	defer im.running.Store(false)

	started := im.now()
	result, err := im.importWindow(ctx, started)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		im.log.Warnw("bokun import failed", "trigger", trigger, "type", syncType, "error", err)
	} else {
		result.Success = true
		im.log.Infow("bokun import finished",
			"trigger", trigger,
			"type", syncType,
			"synced", result.SyncedCount,
			"total", result.TotalBookings,
			"took", im.now().Sub(started).Round(time.Millisecond),
		)
	}

	run := store.SyncRun{
		Trigger:       trigger,
		Type:          syncType,
		Success:       result.Success,
		SyncedCount:   result.SyncedCount,
		TotalBookings: result.TotalBookings,
		Error:         result.Error,
		StartedAt:     started,
		FinishedAt:    im.now(),
	}
	// The audit entry outlives a cancelled request.
	if _, err := im.store.RecordSyncRun(context.WithoutCancel(ctx), run); err != nil {
		im.log.Errorw("record sync run", "error", err)
	}
	if im.onDone != nil {
		im.onDone(syncType, result)
	}
	return result, nil
}

// Running reports whether an import is in progress.
func (im *Importer) Running() bool {
	return im.running.Load()
}

func (im *Importer) importWindow(ctx context.Context, now time.Time) (api.SyncResult, error) {
	if im.source == nil {
		return api.SyncResult{}, bokun.ErrNotConfigured
	}
	from := now.Add(-im.lookback)
	to := now.Add(im.lookahead)
	bookings, total, err := im.source.SearchBookings(ctx, from, to)
	if err != nil {
		return api.SyncResult{}, fmt.Errorf("search bookings: %w", err)
	}

	result := api.SyncResult{TotalBookings: total}
	for _, b := range bookings {
		changed, err := im.store.UpsertBooking(ctx, im.toStore(b))
		if err != nil {
			return result, fmt.Errorf("store booking %s: %w", b.ConfirmationCode, err)
		}
		if changed {
			result.SyncedCount++
		}
	}
	return result, nil
}

func (im *Importer) toStore(b bokun.Booking) store.Booking {
	return store.Booking{
		ExternalID:   b.ConfirmationCode,
		Title:        b.Title,
		Duration:     b.Duration,
		Description:  fmt.Sprintf("Bokun booking %s", b.ConfirmationCode),
		Date:         b.Date(),
		Time:         b.Time(),
		CustomerName: b.CustomerName,
		Participants: b.Participants,
		Paid:         b.Paid,
		Cancelled:    b.Cancelled,
		GuideID:      im.defaultGuide,
	}
}
