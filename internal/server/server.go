// Package server wires handlers and middleware into the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/gorilla/mux"

	"github.com/iudanet/securehub/internal/server/handlers"
	"github.com/iudanet/securehub/internal/server/metrics"
	"github.com/iudanet/securehub/internal/server/middleware"
	"github.com/iudanet/securehub/internal/server/storage"
)

// AuthService is everything the API needs from auth.Service
type AuthService interface {
	handlers.AuthService
	handlers.UserLister
	middleware.IdentityResolver
}

// Config параметры HTTP сервера
type Config struct {
	Address         string
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AuthRateWindow  time.Duration
	AuthRateLimit   int
	MaxUploadBytes  int64
	// TrustedProxies чьим X-Forwarded-For можно верить; пусто: никому
	TrustedProxies  []netip.Prefix
}

// Deps собранные сервисы, которые сервер только маршрутизирует
type Deps struct {
	Logger      *slog.Logger
	Auth        AuthService
	Files       handlers.FileService
	DeadLetters storage.DeadLetterStorage
	DB          handlers.Pinger
	Realtime    http.Handler // GET /api/ws
	Metrics     *metrics.Metrics
}

// VerifyOTPPath маршрут подтверждения устройства, лимитируется по паре (IP, email)
const VerifyOTPPath = "/api/auth/verify-device-otp"

// Server HTTP сервер с graceful shutdown
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	authLimits *middleware.AuthRateLimits
	cfg        Config
}

// New создает сервер
func New(cfg Config, deps Deps) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	limits := NewAuthRateLimits(cfg, deps.Logger)
	return &Server{
		logger:     deps.Logger,
		cfg:        cfg,
		authLimits: limits,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           NewRouter(cfg, deps, limits),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// NewAuthRateLimits создает лимиты /api/auth с дефолтами 20 запросов в минуту
func NewAuthRateLimits(cfg Config, logger *slog.Logger) *middleware.AuthRateLimits {
	rate, window := cfg.AuthRateLimit, cfg.AuthRateWindow
	if rate <= 0 {
		rate = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return middleware.NewAuthRateLimits(logger, VerifyOTPPath, rate, window)
}

// NewRouter строит маршруты /api и /metrics.
// Очистку limits запускает владелец через Run.
func NewRouter(cfg Config, deps Deps, limits *middleware.AuthRateLimits) http.Handler {
	logger := deps.Logger

	authHandler := handlers.NewAuthHandler(logger, deps.Auth)
	filesHandler := handlers.NewFilesHandler(logger, deps.Files, cfg.MaxUploadBytes)
	usersHandler := handlers.NewUsersHandler(logger, deps.Auth)
	adminHandler := handlers.NewAdminHandler(logger, deps.DeadLetters)
	healthHandler := handlers.NewHealthHandler(logger, deps.DB, cfg.Version)

	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware(deps.Metrics))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	// Публичные auth эндпоинты с ограничением частоты
	authRoutes := api.PathPrefix("/auth").Subrouter()
	authRoutes.Use(limits.Middleware)
	authRoutes.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	authRoutes.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)
	authRoutes.HandleFunc("/verify-device-otp", authHandler.VerifyDeviceOTP).Methods(http.MethodPost)

	// Токен для websocket передаётся в query, его проверяет сам hub
	if deps.Realtime != nil {
		api.Handle("/ws", deps.Realtime).Methods(http.MethodGet)
	}

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.AuthMiddleware(logger, deps.Auth))

	// Статичные пути регистрируются раньше /files/{id}
	protected.HandleFunc("/files", filesHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/files/upload", filesHandler.Upload).Methods(http.MethodPost)
	protected.HandleFunc("/files/logs/mine", filesHandler.MyLogs).Methods(http.MethodGet)
	protected.HandleFunc("/files/{id}/download", filesHandler.Download).Methods(http.MethodGet)
	protected.HandleFunc("/users", usersHandler.List).Methods(http.MethodGet)

	admin := protected.NewRoute().Subrouter()
	admin.Use(middleware.RequireAdmin(logger))
	admin.HandleFunc("/files/logs/all", filesHandler.AllLogs).Methods(http.MethodGet)
	admin.HandleFunc("/files/{id}", filesHandler.Delete).Methods(http.MethodDelete)
	admin.HandleFunc("/admin/mail/dead-letters", adminHandler.DeadLetters).Methods(http.MethodGet)

	var h http.Handler = r
	h = middleware.LoggingWithSkip(logger, []string{"/api/health", "/metrics"})(h)
	h = middleware.ClientIPMiddleware(cfg.TrustedProxies)(h)
	h = middleware.RecoveryMiddleware(logger)(h)
	return h
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run слушает адрес до отмены ctx, затем корректно завершает соединения
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve обслуживает уже открытый listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	limitsCtx, stopLimits := context.WithCancel(ctx)
	defer stopLimits()
	go s.authLimits.Run(limitsCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", slog.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server", slog.Duration("timeout", s.cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
