package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	FindByPaymentIntentID(ctx context.Context, intentID string) (model.Order, bool, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	// payment_intent_idが未設定のときだけ書き込み、PROCESSINGへ進める。
	// 競合で負けた側はfalseを受け取り、再取得して勝者のintentを使う。
	ClaimPaymentIntent(ctx context.Context, orderID int64, intentID string) (bool, error)

	// status<>PAIDのときだけPAIDにする条件付き更新。
	// 2回目以降はfalse（変更なし）で返り、エラーにはならない。
	MarkPaid(ctx context.Context, orderID int64, paidAt time.Time) (bool, error)

	// is_delivered=falseのときだけ配達済みにする。繰り返しはfalse。
	MarkDelivered(ctx context.Context, orderID int64, deliveredAt time.Time) (bool, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
