package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"type:varchar(255);not null;index" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Image       string          `gorm:"type:varchar(512)" json:"image"`
	Brand       string          `gorm:"type:varchar(255)" json:"brand"`
	Category    string          `gorm:"type:varchar(255);index" json:"category"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock       int64           `gorm:"not null" json:"stock"`

	// レビューから再計算して保存する
	Rating     decimal.Decimal `gorm:"type:numeric(3,2);not null;default:0" json:"rating"`
	NumReviews int64           `gorm:"not null;default:0" json:"num_reviews"`

	IsActive  bool           `gorm:"not null;default:false" json:"is_active"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
