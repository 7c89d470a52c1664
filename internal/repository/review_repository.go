package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type ReviewRepository interface {
	Create(ctx context.Context, review model.Review) (int64, error)
	ListByProductID(ctx context.Context, productID int64) ([]model.Review, error)
	//同じユーザーが既にレビュー済みか
	ExistsByProductAndUser(ctx context.Context, productID int64, userID int64) (bool, error)
}
