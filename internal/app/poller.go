package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/guidedesk/guidedesk/internal/state"
	"github.com/guidedesk/guidedesk/internal/tours"
)

const (
	defaultPollInterval = 30 * time.Second
	maxBackoff          = 5 * time.Minute
)

// Poller refreshes the store from the tours service at a fixed cadence,
// backing off while the API is unreachable.
type Poller struct {
	store    *state.Store
	svc      *tours.Service
	interval time.Duration
	log      *zap.SugaredLogger
	kick     chan bool
}

// NewPoller builds a Poller. A non-positive interval uses the default.
func NewPoller(store *state.Store, svc *tours.Service, interval time.Duration, log *zap.SugaredLogger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Poller{store: store, svc: svc, interval: interval, log: log, kick: make(chan bool, 1)}
}

// Refresh asks for an immediate refresh without blocking. force bypasses
// fresh cache entries. Requests made while one is pending are merged.
func (p *Poller) Refresh(force bool) {
	select {
	case p.kick <- force:
	default:
		if force {
			// A pending non-forced kick would lose the force flag.
			select {
			case <-p.kick:
			default:
			}
			select {
			case p.kick <- true:
			default:
			}
		}
	}
}

// Run refreshes once and then keeps refreshing until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.refresh(ctx, false)
	for {
		wait := calculateBackoff(p.store.Snapshot().ConsecutiveFailures, p.interval)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case force := <-p.kick:
			timer.Stop()
			p.refresh(ctx, force)
		case <-timer.C:
			p.refresh(ctx, false)
		}
	}
}

func (p *Poller) refresh(ctx context.Context, force bool) {
	tourRes := p.svc.Tours(ctx, force)
	guideRes := p.svc.Guides(ctx, force)
	p.store.Update(tourRes, guideRes)
	if tourRes.Err != nil || guideRes.Err != nil {
		p.log.Debugf("refresh served tours from %s, guides from %s", tourRes.Source, guideRes.Source)
	}
}

// calculateBackoff doubles baseInterval per consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, baseInterval time.Duration) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoff
	b.Reset()

	next := b.NextBackOff()
	for i := 0; i < failures; i++ {
		next = b.NextBackOff()
	}
	if next > maxBackoff {
		next = maxBackoff
	}
	return next
}
