package payment

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerGateway はGatewayをサーキットブレーカーで包む。
// Stripe障害時に全リクエストがタイムアウト待ちになるのを避ける。
// open中の呼び出しは即エラーで返り、注文の状態は変更されない。
type BreakerGateway struct {
	inner Gateway
	cb    *gobreaker.CircuitBreaker[Intent]
}

func NewBreakerGateway(inner Gateway) *BreakerGateway {
	cb := gobreaker.NewCircuitBreaker[Intent](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &BreakerGateway{inner: inner, cb: cb}
}

func (g *BreakerGateway) CreateIntent(ctx context.Context, amountMinorUnits int64, currency string) (Intent, error) {
	return g.cb.Execute(func() (Intent, error) {
		return g.inner.CreateIntent(ctx, amountMinorUnits, currency)
	})
}

func (g *BreakerGateway) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	return g.cb.Execute(func() (Intent, error) {
		return g.inner.RetrieveIntent(ctx, intentID)
	})
}
