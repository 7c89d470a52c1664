package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"storefront/internal/infra/cache"
	"storefront/internal/metrics"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Stripe webhook受け口。
// 署名検証があるので生のbodyが必要（JSONバインドより先に読む）。
// レスポンスは200/400だけ。bodyの中身で相手に情報を渡さない。
type WebhookHandler struct {
	uc            *usecase.OrderUsecase
	webhookSecret string
	dedup         cache.WebhookDedup
	m             *metrics.ServerMetrics
	logger        *slog.Logger
}

func NewWebhookHandler(
	uc *usecase.OrderUsecase,
	webhookSecret string,
	dedup cache.WebhookDedup,
	m *metrics.ServerMetrics,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		uc:            uc,
		webhookSecret: webhookSecret,
		dedup:         dedup,
		m:             m,
		logger:        logger,
	}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhook/payment", h.handle)
}

func (h *WebhookHandler) handle(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.m.WebhookEvents.WithLabelValues("read_error").Inc()
		return c.NoContent(http.StatusBadRequest)
	}

	sig := c.Request().Header.Get("Stripe-Signature")
	ev, err := webhook.ConstructEvent(payload, sig, h.webhookSecret)
	if err != nil {
		//偽造の試行かもしれないのでログにだけ残し、詳細は返さない
		h.logger.Warn("webhook signature verification failed", "remote_ip", c.RealIP())
		h.m.WebhookEvents.WithLabelValues("bad_signature").Inc()
		return c.NoContent(http.StatusBadRequest)
	}

	//処理済みイベントの再配送はここで弾く。
	//dedupが落ちていても処理は続ける（支払い確定側が冪等なので安全）。
	if seen, err := h.dedup.Seen(c.Request().Context(), ev.ID); err == nil && seen {
		h.m.WebhookEvents.WithLabelValues("duplicate").Inc()
		return c.NoContent(http.StatusOK)
	}

	if ev.Type != "payment_intent.succeeded" {
		h.m.WebhookEvents.WithLabelValues("ignored").Inc()
		return c.NoContent(http.StatusOK)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		h.logger.Error("webhook payload decode failed", "event_id", ev.ID, "error", err)
		h.m.WebhookEvents.WithLabelValues("decode_error").Inc()
		return c.NoContent(http.StatusBadRequest)
	}

	res, err := h.uc.ConfirmPaymentByIntent(c.Request().Context(), pi.ID)
	if err != nil {
		//DB障害など。Stripeに再送してもらうため500を返す。
		h.logger.Error("webhook confirm failed", "event_id", ev.ID, "error", err)
		h.m.WebhookEvents.WithLabelValues("error").Inc()
		return c.NoContent(http.StatusInternalServerError)
	}

	//確定に失敗したときは記録しない。500で再送してもらい、再送側で処理する。
	if err := h.dedup.MarkSeen(c.Request().Context(), ev.ID); err != nil {
		h.logger.Warn("webhook dedup mark failed", "event_id", ev.ID, "error", err)
	}

	switch {
	case !res.OrderFound:
		//対応する注文がない（別環境のテストイベントなど）。ackして無視。
		h.logger.Info("webhook for unknown payment intent", "event_id", ev.ID)
		h.m.WebhookEvents.WithLabelValues("unknown_order").Inc()
	case res.Transitioned:
		h.m.PaymentsConfirmed.Inc()
		h.m.WebhookEvents.WithLabelValues("confirmed").Inc()
	default:
		//既に支払い済み。再配送は成功扱い。
		h.m.WebhookEvents.WithLabelValues("already_paid").Inc()
	}

	return c.NoContent(http.StatusOK)
}
