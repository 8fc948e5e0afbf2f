package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/bokun"
	"github.com/guidedesk/guidedesk/internal/server/store"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
	requestIDHeader   = "X-Request-ID"
)

// Server is the guidedesk REST API.
type Server struct {
	cfg      Config
	store    store.Store
	log      *zap.SugaredLogger
	now      func() time.Time
	tokens   tokens
	hub      *Hub
	metrics  *metrics
	importer *Importer
	source   BookingSource
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces the clock used for tokens and events.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBookingSource overrides the Bokun client built from the config.
func WithBookingSource(src BookingSource) Option {
	return func(s *Server) {
		s.source = src
	}
}

// New wires a server around st. It does not take ownership of st.
func New(cfg Config, st store.Store, log *zap.SugaredLogger, opts ...Option) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		cfg:     cfg,
		store:   st,
		log:     log,
		now:     time.Now,
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tokens = tokens{secret: []byte(cfg.JWTSecret), ttl: cfg.TokenTTL, now: s.now}
	s.hub = NewHub(log.Named("hub"), func(n int) { s.metrics.wsClients.Set(float64(n)) })

	if s.source == nil && cfg.Bokun.Configured() {
		client, err := newBokunClient(cfg.Bokun, log.Named("bokun"))
		if err != nil {
			return nil, err
		}
		s.source = client
	}
	s.importer = NewImporter(s.source, st, cfg.Bokun, log.Named("import"))
	s.importer.now = s.now
	s.importer.onDone = func(syncType string, result api.SyncResult) {
		s.metrics.observeSync(syncType, result.Success, result.SyncedCount)
	}
	return s, nil
}

func newBokunClient(cfg BokunConfig, log *zap.SugaredLogger) (*bokun.Client, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("bokun timezone: %w", err)
	}
	client, err := bokun.NewClient(bokun.Config{
		BaseURL:   cfg.BaseURL,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Location:  loc,
	}, bokun.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("bokun client: %w", err)
	}
	return client, nil
}

// Hub exposes the change feed.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(s.metrics.middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Handle("/metrics", s.metrics.handler())
	r.With(s.requireAuth(true)).Get("/ws", s.hub.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth(false))

			r.Get("/guides", s.handleListGuides)
			r.Post("/guides", s.handleCreateGuide)
			r.Delete("/guides/{id}", s.handleDeleteGuide)

			r.Get("/tours", s.handleListTours)
			r.Post("/tours", s.handleCreateTour)
			r.Put("/tours/{id}", s.handleUpdateTour)
			r.Put("/tours/{id}/paid", s.handleSetPaid)
			r.Put("/tours/{id}/cancelled", s.handleSetCancelled)
			r.Delete("/tours/{id}", s.handleDeleteTour)

			r.Get("/bokun_sync", s.handleBokunSync)
			r.Put("/bokun_sync", s.handleBokunSync)
			r.Post("/bokun_sync", s.handleBokunSync)
		})
	})
	return r
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Infow("api listening", "addr", ln.Addr().String(), "store", s.cfg.Driver, "bokun", s.source != nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.log.Infow("api stopped")
		return nil
	})
	return g.Wait()
}

// ListenAndServe opens the configured store, applies the seed and admin
// account, and runs the API until ctx is cancelled.
func ListenAndServe(ctx context.Context, cfg Config, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.GeneratedSecret {
		log.Warnw("JWT_SECRET is not set; using a random secret, tokens will not survive a restart")
	}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warnw("close store", "error", err)
		}
	}()

	if cfg.SeedFile != "" {
		seed, err := store.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, st); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
		log.Infow("seed applied", "file", cfg.SeedFile)
	}
	if cfg.AdminPassword != "" {
		created, err := store.EnsureUser(ctx, st, cfg.AdminUser, cfg.AdminPassword, api.RoleAdmin)
		if err != nil {
			return fmt.Errorf("ensure admin: %w", err)
		}
		if created {
			log.Infow("admin account created", "username", cfg.AdminUser)
		}
	}

	srv, err := New(cfg, st, log)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// OpenStore returns the store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.Driver {
	case DriverMySQL:
		return store.OpenMySQL(ctx, cfg.MySQL)
	case DriverMemory, "":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(start).Round(time.Microsecond),
			"remote", r.RemoteAddr,
			"request_id", RequestID(r.Context()),
		)
	})
}

// cors allows the configured origin, or any origin when none is set, and
// answers preflight requests before routing.
func (s *Server) cors(next http.Handler) http.Handler {
	allowed := strings.TrimSpace(s.cfg.CORSOrigin)
	if allowed == "" {
		allowed = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control, Pragma, Expires, X-Request-ID")
			h.Set("Access-Control-Max-Age", "600")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
