package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/cache"
	"github.com/guidedesk/guidedesk/internal/config"
	"github.com/guidedesk/guidedesk/internal/events"
	"github.com/guidedesk/guidedesk/internal/kv"
	"github.com/guidedesk/guidedesk/internal/logging"
	"github.com/guidedesk/guidedesk/internal/prefs"
	"github.com/guidedesk/guidedesk/internal/session"
	"github.com/guidedesk/guidedesk/internal/state"
	"github.com/guidedesk/guidedesk/internal/syncer"
	"github.com/guidedesk/guidedesk/internal/tours"
	"github.com/guidedesk/guidedesk/internal/ui"
)

// Options configure the guidedesk client.
type Options struct {
	ConfigPath string
	PrefsPath  string        // empty uses default ~/.config/guidedesk/prefs.toml
	PollEvery  time.Duration // zero uses the configured refresh interval
	APIURL     string        // overrides api_url from the config file
	LogLevel   string        // overrides log_level from the config file
	Console    bool          // log to stderr instead of the log file
}

// Deps is the wired client stack shared by the TUI, the agent and the
// one-shot commands.
type Deps struct {
	Config     config.Config
	ConfigPath string
	Log        *zap.SugaredLogger
	LogFile    string
	State      *kv.FileStore
	Cache      *cache.Store
	Sessions   *session.Store
	Client     *api.Client
	Notifier   *events.Notifier
	Syncer     *syncer.Orchestrator
	Tours      *tours.Service
}

// Bootstrap loads configuration and builds every client component. The
// orchestrator is created stopped.
func Bootstrap(opts Options) (*Deps, error) {
	configPath, err := config.ResolvePath(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.APIURL != "" {
		cfg.APIURL = opts.APIURL
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	logFile := ""
	if !opts.Console {
		logFile = cfg.LogFile
		if logFile == "" {
			if logFile, err = logging.DefaultFile(); err != nil {
				return nil, fmt.Errorf("resolve log file: %w", err)
			}
		}
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: logFile, Console: opts.Console})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	store, err := kv.OpenFile(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	sessions := session.New(store, log.Named("session"))

	client, err := api.NewClient(cfg.APIURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithTokenSource(api.TokenFunc(sessions.Token)),
	)
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}

	cacheOpts := append(tours.CacheOptions(),
		cache.WithWindow(cfg.CacheTTL),
		cache.WithLogger(log.Named("cache")),
	)
	tourCache := cache.New(store, cacheOpts...)

	notifier := events.NewNotifier(log.Named("events"))
	orchestrator := syncer.New(client, store, notifier, SyncConfig(cfg.Sync),
		syncer.WithLogger(log.Named("sync")),
	)

	log.Debugf("state file %s, api %s", store.Path(), client.BaseURL())
	return &Deps{
		Config:     cfg,
		ConfigPath: configPath,
		Log:        log,
		LogFile:    logFile,
		State:      store,
		Cache:      tourCache,
		Sessions:   sessions,
		Client:     client,
		Notifier:   notifier,
		Syncer:     orchestrator,
		Tours:      tours.New(client, tourCache, log.Named("tours")),
	}, nil
}

// Close flushes the logger.
func (d *Deps) Close() {
	if d == nil || d.Log == nil {
		return
	}
	_ = d.Log.Sync()
}

// SyncConfig maps the [sync] table onto the orchestrator settings.
func SyncConfig(s config.Sync) syncer.Config {
	return syncer.Config{
		Enabled:       s.Enabled,
		Interval:      s.Interval(),
		OnStartupSync: s.OnStartupSync,
		OnFocusSync:   s.OnFocusSync,
	}
}

// ErrLoginRequired is returned when a command needs a session and none is
// stored.
var ErrLoginRequired = errors.New("not logged in: run `guidedesk login` first")

// SyncNow runs one manual sync and returns its terminal event. It requires
// an administrator session.
func SyncNow(ctx context.Context, d *Deps) (events.Event, error) {
	sess, err := d.Sessions.Load()
	if err != nil {
		return events.Event{}, err
	}
	if !sess.LoggedIn() {
		return events.Event{}, ErrLoginRequired
	}
	if !sess.IsAdmin() {
		return events.Event{}, syncer.ErrNotAdmin
	}

	var last events.Event
	unsubscribe := d.Notifier.Subscribe(func(e events.Event) {
		switch e.Kind {
		case events.SyncCompleted, events.SyncFailed, events.SyncSkipped:
			last = e
		}
	})
	defer unsubscribe()

	d.Syncer.PerformSync(ctx, syncer.TriggerManual)
	if last.Kind == events.SyncFailed {
		return last, last.Err
	}
	if err := d.Tours.Invalidate(); err != nil {
		d.Log.Warnf("drop cached listings after sync: %v", err)
	}
	return last, nil
}

// Run boots the TUI until the user quits or the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	d, err := Bootstrap(opts)
	if err != nil {
		return err
	}
	defer d.Close()

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		d.Log.Warnf("load prefs: %v", err)
	}

	sess, err := d.Sessions.Load()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !sess.LoggedIn() {
		return ErrLoginRequired
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := &state.Store{}
	if last, ok := d.Syncer.LastSyncTime(); ok {
		store.SetLastSync(last)
	}

	interval := d.Config.RefreshInterval
	if opts.PollEvery > 0 {
		interval = opts.PollEvery
	}
	poller := NewPoller(store, d.Tours, interval, d.Log.Named("poller"))

	unsubscribe := d.Notifier.Subscribe(func(e events.Event) {
		store.Record(e)
		if e.Kind == events.SyncCompleted {
			poller.Refresh(true)
		}
	})
	defer unsubscribe()

	triggers := ui.Triggers{
		Focus:      syncer.NewChannelSource(),
		Visibility: syncer.NewVisibilitySource(),
		Manual:     syncer.NewChannelSource(),
	}
	d.Syncer.AddSource(triggers.Focus)
	d.Syncer.AddSource(triggers.Visibility)
	d.Syncer.AddSource(triggers.Manual)

	if err := d.Syncer.Start(runCtx, sess); err != nil {
		if !errors.Is(err, syncer.ErrNotAdmin) {
			return err
		}
		d.Log.Infof("automatic sync off for %s (%s)", sess.Name, sess.Role)
	}
	defer d.Syncer.Stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return watchConfig(gctx, d) })
	g.Go(func() error { return watchChanges(gctx, d, poller) })

	uiErr := ui.Run(ui.Options{
		Context:   runCtx,
		Store:     store,
		Tours:     d.Tours,
		Refresher: poller,
		Session:   sess,
		Triggers:  triggers,
		APIURL:    d.Client.BaseURL(),
		LogPath:   d.LogFile,
		Prefs:     userPrefs,
		PrefsPath: opts.PrefsPath,
		Log:       d.Log.Named("ui"),
	})

	d.Syncer.Stop()
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		d.Log.Warnf("background task: %v", err)
	}
	return uiErr
}

// watchConfig applies [sync] changes to the running orchestrator. A config
// directory that cannot be watched only disables reloading.
func watchConfig(ctx context.Context, d *Deps) error {
	err := config.Watch(ctx, d.ConfigPath, d.Log.Named("config"), func(cfg config.Config) {
		d.Log.Debugf("applying sync settings: enabled=%v interval=%v", cfg.Sync.Enabled, cfg.Sync.Interval())
		d.Syncer.SetConfig(SyncConfig(cfg.Sync))
	})
	if err != nil {
		d.Log.Infof("config reload disabled: %v", err)
	}
	return nil
}

// watchChanges keeps a change stream open to the server and refreshes the
// listings whenever another client edits them. Reconnects back off
// exponentially; authentication failures end the stream.
func watchChanges(ctx context.Context, d *Deps, poller *Poller) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = maxBackoff

	op := func() (struct{}, error) {
		err := d.Client.Watch(ctx, func(ev api.ChangeEvent) {
			d.Log.Debugf("server change: %s %s %d", ev.Type, ev.Resource, ev.ID)
			poller.Refresh(true)
		})
		if err == nil || ctx.Err() != nil {
			return struct{}{}, nil
		}
		if errors.Is(err, api.ErrUnauthorized) {
			return struct{}{}, backoff.Permanent(err)
		}
		if api.IsServer(err) {
			// Older servers have no change stream.
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			d.Log.Debugf("change stream: %v, reconnecting in %v", err, wait)
		}),
	)
	if err != nil && ctx.Err() == nil {
		d.Log.Infof("change stream unavailable: %v", err)
	}
	return nil
}
