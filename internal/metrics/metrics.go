package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	OrdersCreated     prometheus.Counter
	PaymentsConfirmed prometheus.Counter
	WebhookEvents     *prometheus.CounterVec
}

func NewServerMetrics() *ServerMetrics {
	return NewServerMetricsWith(prometheus.DefaultRegisterer)
}

// NewServerMetricsWith はレジストリを差し替えられる（テストで使う）
func NewServerMetricsWith(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "orders_created_total",
		Help:      "Total number of orders placed.",
	})
	paymentsConfirmed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "payments_confirmed_total",
		Help:      "Total number of orders marked paid.",
	})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "webhook_events_total",
		Help:      "Payment webhook deliveries by result.",
	}, []string{"result"})

	reg.MustRegister(requests, latency, ordersCreated, paymentsConfirmed, webhookEvents)
	return &ServerMetrics{
		Requests:          requests,
		LatencyMS:         latency,
		OrdersCreated:     ordersCreated,
		PaymentsConfirmed: paymentsConfirmed,
		WebhookEvents:     webhookEvents,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
