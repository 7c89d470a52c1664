package model

import "time"

// 商品レビュー
// 1ユーザーにつき同じ商品へは1件まで。
type Review struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64     `gorm:"not null;index;uniqueIndex:idx_reviews_product_user" json:"product_id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_reviews_product_user" json:"user_id"`
	UserName  string    `gorm:"type:varchar(255);not null" json:"user_name"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
