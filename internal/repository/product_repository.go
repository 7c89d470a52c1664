package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

// 公開カタログの絞り込み条件
type ProductListFilter struct {
	Page     int
	Limit    int
	Search   string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	// この評価以上に絞る
	MinRating *decimal.Decimal
	// 管理画面では非公開商品も見える
	IncludeInactive bool
}

type ProductRepository interface {
	FindByID(ctx context.Context, productID int64) (model.Product, error)
	List(ctx context.Context, f ProductListFilter) ([]model.Product, int64, error)
	//トップページ用の評価上位
	ListFeatured(ctx context.Context, limit int) ([]model.Product, error)
	//高評価の新着
	ListTrending(ctx context.Context, minRating decimal.Decimal, limit int) ([]model.Product, error)
	Create(ctx context.Context, p model.Product) (int64, error)
	Update(ctx context.Context, p model.Product) error
	//ソフトデリート
	Delete(ctx context.Context, productID int64) error
	//レビュー集計の反映
	UpdateRating(ctx context.Context, productID int64, rating decimal.Decimal, numReviews int64) error
}
