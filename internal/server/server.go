// Package server собирает HTTP сервер contactsync: хранилище, реестр типов,
// координатор синхронизации, обработчики и middleware.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/contactsync/internal/clock"
	"github.com/iudanet/contactsync/internal/kinds"
	"github.com/iudanet/contactsync/internal/server/config"
	"github.com/iudanet/contactsync/internal/server/handlers"
	"github.com/iudanet/contactsync/internal/server/jwt"
	"github.com/iudanet/contactsync/internal/server/metrics"
	"github.com/iudanet/contactsync/internal/server/middleware"
	"github.com/iudanet/contactsync/internal/server/storage"
	"github.com/iudanet/contactsync/internal/server/storage/memory"
	"github.com/iudanet/contactsync/internal/server/storage/sqlite"
	"github.com/iudanet/contactsync/internal/syncer"
)

// Server собранное приложение
type Server struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       storage.Backend
	clock       *clock.Monotonic
	metrics     *metrics.Metrics
	tokens      *jwt.Service
	limiter     *middleware.RateLimiter
	auth        *handlers.AuthHandler
	coordinator *syncer.Coordinator
	handler     http.Handler
}

// OpenStorage открывает хранилище согласно конфигурации
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		return sqlite.New(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// New собирает сервер поверх открытого хранилища.
// Хранилище закрывается в Close.
func New(ctx context.Context, cfg *config.Config, store storage.Backend, logger *slog.Logger, version string) (*Server, error) {
	// Часы не должны выдать serverTime меньше уже выданного до перезапуска
	clk := clock.NewMonotonic()
	latest, err := store.LatestServerTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest server time: %w", err)
	}
	clk.Observe(latest)

	registry := syncer.NewRegistry()
	if err := kinds.RegisterAll(registry, store); err != nil {
		return nil, err
	}

	m := metrics.New()
	coordinator := syncer.NewCoordinator(store, registry, clk, logger,
		syncer.WithResolver(syncer.NewResolver(cfg.StampPolicy())),
		syncer.WithJournal(store),
		syncer.WithRecorder(m),
		syncer.WithMaxChanges(cfg.Sync.MaxChanges),
		syncer.WithMaxResolveAttempts(cfg.Sync.MaxResolveAttempts),
	)

	tokens := jwt.NewService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		clock:       clk,
		metrics:     m,
		tokens:      tokens,
		limiter:     middleware.NewRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateLimitWindow, logger),
		auth:        handlers.NewAuthHandler(logger, store, store, tokens),
		coordinator: coordinator,
	}
	s.handler = s.routes(registry, version)

	if err := s.seedAdmin(ctx); err != nil {
		s.limiter.Stop()
		return nil, err
	}
	return s, nil
}

// routes регистрирует все маршруты
func (s *Server) routes(registry *syncer.Registry, version string) http.Handler {
	requireAuth := middleware.AuthMiddleware(s.logger, s.tokens)

	syncHandler := handlers.NewSyncHandler(s.logger, s.coordinator, registry, s.cfg.Server.MaxBodyBytes)
	contacts := handlers.NewRecordHandler(s.logger, s.store, kinds.Contact(s.store.Contacts()), s.clock)
	companies := handlers.NewRecordHandler(s.logger, s.store, kinds.Company(s.store.Companies()), s.clock)
	health := handlers.NewHealthHandler(s.logger, s.store, version)

	mux := http.NewServeMux()

	// Публичные маршруты
	mux.HandleFunc("GET /api/v1/health", health.Health)
	mux.Handle("POST /api/v1/auth/register", s.limiter.Middleware(http.HandlerFunc(s.auth.Register)))
	mux.Handle("POST /api/v1/auth/login", s.limiter.Middleware(http.HandlerFunc(s.auth.Login)))
	mux.Handle("POST /api/v1/auth/refresh", s.limiter.Middleware(http.HandlerFunc(s.auth.Refresh)))
	mux.HandleFunc("POST /api/v1/auth/logout", s.auth.Logout)

	// Защищенные маршруты
	mux.Handle("POST /sync", requireAuth(http.HandlerFunc(syncHandler.HandleSync)))
	mux.Handle("POST /api/v1/sync", requireAuth(http.HandlerFunc(syncHandler.HandleSync)))

	mux.Handle("GET /api/v1/contacts", requireAuth(http.HandlerFunc(contacts.List)))
	mux.Handle("POST /api/v1/contacts", requireAuth(http.HandlerFunc(contacts.Create)))
	mux.Handle("GET /api/v1/contacts/{id}", requireAuth(http.HandlerFunc(contacts.Get)))
	mux.Handle("PUT /api/v1/contacts/{id}", requireAuth(http.HandlerFunc(contacts.Update)))
	mux.Handle("DELETE /api/v1/contacts/{id}", requireAuth(http.HandlerFunc(contacts.Delete)))

	mux.Handle("GET /api/v1/companies", requireAuth(http.HandlerFunc(companies.List)))
	mux.Handle("POST /api/v1/companies", requireAuth(http.HandlerFunc(companies.Create)))
	mux.Handle("GET /api/v1/companies/{id}", requireAuth(http.HandlerFunc(companies.Get)))
	mux.Handle("PUT /api/v1/companies/{id}", requireAuth(http.HandlerFunc(companies.Update)))
	mux.Handle("DELETE /api/v1/companies/{id}", requireAuth(http.HandlerFunc(companies.Delete)))

	// Recovery снаружи, metrics внутри: mux выставляет r.Pattern до вызова обработчика
	return middleware.Chain(mux,
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger, "/api/v1/health"),
		middleware.MetricsMiddleware(s.metrics),
	)
}

// seedAdmin создает начального пользователя, если он задан в конфигурации
func (s *Server) seedAdmin(ctx context.Context) error {
	if s.cfg.Auth.AdminEmail == "" {
		return nil
	}
	_, err := s.auth.CreateUser(ctx, s.cfg.Auth.AdminEmail, s.cfg.Auth.AdminPassword)
	switch {
	case err == nil:
		s.logger.Info("Admin user created", "email", s.cfg.Auth.AdminEmail)
		return nil
	case errors.Is(err, storage.ErrUserAlreadyExists):
		return nil
	default:
		return fmt.Errorf("failed to create admin user: %w", err)
	}
}

// Handler возвращает корневой HTTP обработчик API
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Metrics возвращает метрики сервера
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Run запускает API и metrics серверы и блокируется до отмены ctx.
// После отмены серверы останавливаются с таймаутом server.shutdown_timeout.
func (s *Server) Run(ctx context.Context) error {
	api := &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	servers := []*http.Server{api}

	if s.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("GET "+s.cfg.Metrics.Path, s.metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              s.cfg.Metrics.Address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			s.logger.Info("HTTP server listening", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		s.cleanupTokens(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// cleanupTokens периодически удаляет истекшие refresh токены
func (s *Server) cleanupTokens(ctx context.Context) {
	interval := s.cfg.Auth.TokenCleanupInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.DeleteExpiredTokens(ctx, time.Now().UTC())
			if err != nil {
				s.logger.Error("Failed to delete expired tokens", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("Expired refresh tokens deleted", "count", n)
			}
		}
	}
}

// Close освобождает ресурсы сервера и закрывает хранилище
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.store.Close()
}
