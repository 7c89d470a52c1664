package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// リフレッシュトークンの保存・取得・失効
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	// ハッシュで1件取得。見つからなければnil。
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	Revoke(ctx context.Context, tokenID string, revokedAt time.Time) error
	DeleteAllByUserID(ctx context.Context, userID int64) error
}
