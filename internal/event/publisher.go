package event

import "time"

const (
	TypeOrderCreated   = "order.created"
	TypeOrderPaid      = "order.paid"
	TypeOrderDelivered = "order.delivered"
)

// 注文のライフサイクルイベント。下流（通知・集計）向け。
type OrderEvent struct {
	EventID   string         `json:"event_id"`
	Type      string         `json:"type"`
	OrderID   int64          `json:"order_id"`
	UserID    int64          `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Publisher は配信失敗をリクエストに波及させない前提で使う。
// 呼び出し側はエラーをログに残すだけでよい。
type Publisher interface {
	Publish(ev OrderEvent) error
	Close() error
}
