package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/guidedesk/guidedesk/internal/events"
	"github.com/guidedesk/guidedesk/internal/syncer"
)

// RunAgent runs the sync orchestrator without a UI until ctx is cancelled.
// Sync events are written to the log, and manualSyncSignals request a
// manual sync.
func RunAgent(ctx context.Context, opts Options) error {
	d, err := Bootstrap(opts)
	if err != nil {
		return err
	}
	defer d.Close()

	sess, err := d.Sessions.Load()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !sess.LoggedIn() {
		return ErrLoginRequired
	}

	unsubscribe := d.Notifier.Subscribe(agentLogger(d))
	defer unsubscribe()

	if sigs := manualSyncSignals(); len(sigs) > 0 {
		d.Syncer.AddSource(syncer.NewSignalSource(syncer.TriggerManual, sigs...))
	}
	if err := d.Syncer.Start(ctx, sess); err != nil {
		if errors.Is(err, syncer.ErrNotAdmin) {
			return fmt.Errorf("agent needs an admin session, %s is %q: %w", sess.Name, sess.Role, err)
		}
		return err
	}
	defer d.Syncer.Stop()

	cfg := d.Syncer.Config()
	d.Log.Infof("agent running: sync enabled=%v every %v", cfg.Enabled, cfg.Interval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watchConfig(gctx, d) })
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	d.Log.Infof("agent stopping")
	return nil
}

func agentLogger(d *Deps) events.Handler {
	log := d.Log.Named("agent")
	return func(e events.Event) {
		switch e.Kind {
		case events.SyncFailed:
			log.Errorw(e.String(), "trigger", e.Trigger)
		case events.SyncSkipped:
			log.Debugw(e.String(), "trigger", e.Trigger, "reason", e.Reason)
		case events.SyncCompleted:
			log.Infow(e.String(), "trigger", e.Trigger, "synced", e.SyncedCount, "total", e.TotalCount)
			if err := d.Tours.Invalidate(); err != nil {
				log.Warnf("drop cached listings: %v", err)
			}
		default:
			log.Infow(e.String(), "kind", string(e.Kind))
		}
	}
}
