/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/dronepad/internal/api"
	"github.com/friendsincode/dronepad/internal/audit"
	"github.com/friendsincode/dronepad/internal/booking"
	"github.com/friendsincode/dronepad/internal/cache"
	"github.com/friendsincode/dronepad/internal/config"
	"github.com/friendsincode/dronepad/internal/db"
	"github.com/friendsincode/dronepad/internal/eventbus"
	"github.com/friendsincode/dronepad/internal/events"
	"github.com/friendsincode/dronepad/internal/integrity"
	"github.com/friendsincode/dronepad/internal/leadership"
	"github.com/friendsincode/dronepad/internal/logbuffer"
	"github.com/friendsincode/dronepad/internal/store"
	"github.com/friendsincode/dronepad/internal/sweeper"
	"github.com/friendsincode/dronepad/internal/telemetry"
)

// requestTimeout bounds every API request, including commit lock waits.
const requestTimeout = 30 * time.Second

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	logBuffer     *logbuffer.Buffer
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db                 *gorm.DB
	store              *store.Gorm
	redis              *redis.Client
	cache              *cache.Cache
	bus                *events.Bus
	booking            *booking.Service
	auditSvc           *audit.Service
	sweeper            *sweeper.Service
	leaderAwareSweeper *sweeper.LeaderAware
	natsBridge         *eventbus.NATSBridge
	api                *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. logBuf may be nil.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("dronepad-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(requestTimeout))

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		logBuffer: logBuf,
		router:    router,
		bus:       events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	if err := srv.startBackgroundWorkers(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.RegisterCallbacks(database); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := s.seedIfEmpty(context.Background()); err != nil {
		return err
	}

	s.store = store.New(database, store.Options{
		LockTimeout: s.cfg.LockTimeout,
		Holder:      s.cfg.InstanceID,
	})
	s.booking = booking.NewService(s.store, s.bus, booking.ConfigFrom(s.cfg), s.logger)

	if s.cfg.CacheEnabled || s.cfg.LeaderElectionEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		s.redis = cache.NewClient(cacheCfg)
		s.DeferClose(func() error { return s.redis.Close() })

		if s.cfg.CacheEnabled {
			s.cache = cache.New(s.redis, cacheCfg, s.logger)
			s.booking.SetPadSource(cache.NewZoneRoster(s.cache, s.store))
			s.logger.Info().Str("redis_addr", s.cfg.RedisAddr).Msg("zone roster cache enabled")
		}
	}

	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	s.sweeper = sweeper.NewService(s.store, s.booking, sweeper.Config{
		Interval:  s.cfg.AutoReleaseSweepInterval,
		Grace:     s.cfg.AutoReleaseGrace,
		BatchSize: s.cfg.AutoReleaseBatchSize,
	}, s.logger)

	if s.cfg.LeaderElectionEnabled && s.sweeper.Enabled() {
		electionConfig := leadership.DefaultConfig()
		if s.cfg.InstanceID != "" {
			electionConfig.InstanceID = s.cfg.InstanceID
		}

		election, err := leadership.NewElection(s.redis, electionConfig, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}

		s.leaderAwareSweeper = sweeper.NewLeaderAware(s.sweeper, election, s.logger)
		s.DeferClose(func() error { return s.leaderAwareSweeper.Stop() })

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Str("instance_id", election.InstanceID()).
			Msg("leader election enabled for auto-release sweeper")
	}

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.Token = s.cfg.NATSToken
		natsCfg.NodeID = s.cfg.InstanceID
		bridge, err := eventbus.NewNATSBridge(natsCfg, s.bus, s.logger)
		if err != nil {
			return fmt.Errorf("connect nats bridge: %w", err)
		}
		s.natsBridge = bridge
		s.DeferClose(bridge.Close)
	}

	s.api = api.New(database, []byte(s.cfg.JWTSigningKey), s.booking, s.store, s.auditSvc, s.bus, s.cfg.Location, s.logger)
	s.api.SetIntegrity(integrity.NewService(database, overdueAfter(s.cfg, s.sweeper.Enabled()), s.logger))
	if s.logBuffer != nil {
		s.api.SetLogBuffer(s.logBuffer)
	}
	return nil
}

// overdueAfter is how long past start a CONFIRMED reservation may go
// unreleased before the integrity scan reports it. Without a sweeper, no-shows
// are only released lazily and are never reported.
func overdueAfter(cfg *config.Config, sweeping bool) time.Duration {
	if !sweeping {
		return 0
	}
	return cfg.AutoReleaseGrace + 2*cfg.AutoReleaseSweepInterval
}

// seedIfEmpty loads the configured pad fixture into an empty pads table.
func (s *Server) seedIfEmpty(ctx context.Context) error {
	if s.cfg.SeedFile == "" {
		return nil
	}
	pads, err := db.LoadPadFixture(s.cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("load seed file: %w", err)
	}
	n, err := db.SeedPads(ctx, s.db, pads)
	if err != nil {
		return fmt.Errorf("seed pads: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int("pads", n).Str("file", s.cfg.SeedFile).Msg("seeded pads")
	}
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer returns the dedicated metrics listener, or nil when metrics
// are served on the API router.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Subscriptions are registered synchronously so no event published after
	// New returns is missed.
	s.auditSvc.Start(ctx)
	if s.cache != nil {
		s.cache.WatchPadUpdates(ctx, s.bus)
	}
	if s.natsBridge != nil {
		types := append([]events.EventType{events.EventPadUpdated}, events.ReservationEvents...)
		s.natsBridge.Start(ctx, types...)
	}

	switch {
	case s.leaderAwareSweeper != nil:
		if err := s.leaderAwareSweeper.Start(ctx); err != nil {
			return fmt.Errorf("start leader-aware sweeper: %w", err)
		}
	case s.sweeper.Enabled():
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("sweeper loop exited")
			}
		}()
	default:
		s.logger.Info().Msg("background auto-release sweep disabled, relying on lazy release")
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	return nil
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	if s.auditSvc != nil {
		<-s.auditSvc.Done()
	}
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`

		if s.leaderAwareSweeper != nil {
			if s.leaderAwareSweeper.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}

		response += `}`
		_, _ = w.Write([]byte(response))
	})

	if s.cfg.MetricsBind == "" {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.api.Routes(s.router)
}
