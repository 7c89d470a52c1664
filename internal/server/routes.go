package server

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/metrics"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
)

// Handlersはルーティング対象のハンドラ一式
type Handlers struct {
	Auth         *handler.AuthHandler
	User         *handler.UserHandler
	Product      *handler.ProductHandler
	Order        *handler.OrderHandler
	Webhook      *handler.WebhookHandler
	AdminOrder   *handler.AdminOrderHandler
	AdminProduct *handler.AdminProductHandler
	AdminUser    *handler.AdminUserHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	h.Auth.RegisterRoutes(e)
	h.User.RegisterRoutes(e, cfg, userRepo)
	h.Product.RegisterRoutes(e, cfg, userRepo)
	h.Order.RegisterRoutes(e, cfg, userRepo)
	h.Webhook.RegisterRoutes(e)
	h.AdminOrder.RegisterRoutes(e, cfg, userRepo)
	h.AdminProduct.RegisterRoutes(e, cfg, userRepo)
	h.AdminUser.RegisterRoutes(e, cfg, userRepo)
}
