// Пакет server — HTTP-сервер хранилища артефактов с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/Hug0lvt/DriveOps-sub003/internal/api/handlers"
	"github.com/Hug0lvt/DriveOps-sub003/internal/config"
)

// Server — HTTP-сервер хранилища артефактов.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// middlewares добавляются в порядке переданного среза.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	health *handlers.HealthHandler,
	objects *handlers.ObjectsHandler,
	artifacts *handlers.ArtifactsHandler,
	documents *handlers.DocumentsHandler,
	middlewares ...func(http.Handler) http.Handler,
) *Server {
	router := chi.NewRouter()

	for _, mw := range middlewares {
		router.Use(mw)
	}

	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)
	router.Get("/metrics", health.GetMetrics)

	// Ключи объектов содержат слэши (YYYY/MM/DD/...) — wildcard-параметр
	router.Get("/objects/{bucket}/*", objects.Download)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/artifacts", func(r chi.Router) {
			r.Post("/", artifacts.Upload)
			r.Get("/", artifacts.List)
			r.Get("/{id}", artifacts.GetMetadata)
			r.Get("/{id}/download", artifacts.Download)
			r.Delete("/{id}", artifacts.Delete)
			r.Post("/{id}/presign", artifacts.Presign)
			r.Post("/{id}/verify", artifacts.Verify)
		})
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", documents.Search)
			r.Put("/{subjectID}", documents.Update)
			r.Get("/{subjectID}", documents.Latest)
			r.Post("/{subjectID}/versions", documents.Append)
			r.Get("/{subjectID}/history", documents.History)
			r.Delete("/versions/{id}", documents.Deactivate)
		})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
