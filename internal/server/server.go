package server

import (
	"context"
	"log/slog"
	"time"

	"storefront/internal/config"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Newはミドルウェアとルートを組んだechoインスタンスを返す
func New(cfg config.Config, userRepo repository.UserRepository, h Handlers, m *metrics.ServerMetrics, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.Metrics(m))

	RegisterRoutes(e, cfg, userRepo, h)

	return e
}

// Startはサーバーを起動し、ctxのキャンセルで止める
func Start(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
