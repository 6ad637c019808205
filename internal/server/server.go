// Пакет server — HTTP-сервер File Vault: маршруты, TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/goartstore/filevault/internal/api/handlers"
	"github.com/bigkaa/goartstore/filevault/internal/api/middleware"
	"github.com/bigkaa/goartstore/filevault/internal/config"
	"github.com/bigkaa/goartstore/filevault/internal/ratelimit"
)

// Handlers — обработчики, из которых собирается маршрутизатор.
type Handlers struct {
	Files       *handlers.FilesHandler
	Auth        *handlers.AuthHandler
	Health      *handlers.HealthHandler
	Maintenance *handlers.MaintenanceHandler
	OpenAPI     http.Handler
}

// NewRouter собирает маршруты.
//
// Публичные: GET /, POST /token, /health/*, /metrics, /openapi.json.
// Остальные проходят authenticate, затем лимит класса маршрута.
func NewRouter(
	logger *slog.Logger,
	h Handlers,
	authenticate func(http.Handler) http.Handler,
	limiter *middleware.RateLimiter,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MetricsMiddleware())
	r.Use(chimw.Recoverer)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	// --- Публичные маршруты ---

	r.Get("/", handlers.Root)
	r.With(limiter.Limit(ratelimit.ClassLogin)).Post("/token", h.Auth.Login)
	r.Get("/health/live", h.Health.HealthLive)
	r.Get("/health/ready", h.Health.HealthReady)
	r.Get("/metrics", h.Health.GetMetrics)
	r.Method(http.MethodGet, "/openapi.json", h.OpenAPI)

	// --- Защищённые маршруты ---

	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		upload := r.With(limiter.Limit(ratelimit.ClassUpload))
		upload.Post("/upload", h.Files.UploadFile)
		upload.Post("/upload/", h.Files.UploadFile)

		read := r.With(limiter.Limit(ratelimit.ClassRead))
		read.Get("/files", h.Files.ListFiles)
		read.Get("/files/{id}", h.Files.GetFile)
		read.Get("/{date}/{name}", h.Files.DownloadFile)

		r.With(limiter.Limit(ratelimit.ClassUpdate)).Put("/files/{id}", h.Files.UpdateFile)
		r.With(limiter.Limit(ratelimit.ClassDelete)).Delete("/files/{id}", h.Files.DeleteFile)

		if h.Maintenance != nil {
			r.With(limiter.Limit(ratelimit.ClassUpdate)).Post("/maintenance/reconcile", h.Maintenance.Reconcile)
		}
	})

	return r
}

// Server — HTTP-сервер File Vault.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер поверх собранного маршрутизатора.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	// Настройка TLS
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown с FV_SHUTDOWN_TIMEOUT.
func (s *Server) Run(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSCert != ""),
		)

		var err error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
