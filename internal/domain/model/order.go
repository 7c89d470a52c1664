package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusPaid       OrderStatus = "PAID"
)

// 注文時点の配送先スナップショット（住所マスタは参照しない）
type ShippingAddress struct {
	PostalCode string `gorm:"column:ship_postal_code;type:varchar(20);not null" json:"postal_code"`
	City       string `gorm:"column:ship_city;type:varchar(255);not null" json:"city"`
	Line1      string `gorm:"column:ship_line1;type:varchar(255);not null" json:"line1"`
	Line2      string `gorm:"column:ship_line2;type:varchar(255)" json:"line2"`
	Country    string `gorm:"column:ship_country;type:varchar(100);not null" json:"country"`
	Name       string `gorm:"column:ship_name;type:varchar(255);not null" json:"name"`
}

// 注文。金額・明細・住所は作成時に確定し、以後変更しない。
// statusはPENDING→PROCESSING→PAIDの一方向のみ。
type Order struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64           `gorm:"not null;index" json:"user_id"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	ShippingAddress ShippingAddress `gorm:"embedded" json:"shipping_address"`
	PaymentMethod   string          `gorm:"type:varchar(50);not null" json:"payment_method"`

	ItemsPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"items_price"`
	TaxPrice      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax_price"`
	ShippingPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"shipping_price"`
	TotalPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`

	// 最初の支払い開始で一度だけ設定される
	PaymentIntentID string     `gorm:"type:varchar(255);index" json:"-"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`

	IsDelivered bool       `gorm:"not null;default:false" json:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// Stripeに渡す最小通貨単位（セント）
func (o Order) TotalCents() int64 {
	return o.TotalPrice.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
