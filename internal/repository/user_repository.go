package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成
	Create(ctx context.Context, user *model.User) error
	// IDからユーザーを1件取得する。見つからなければnil。
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	//メールからユーザーを1件取得する。見つからなければnil。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// ユーザー情報の更新（ロール変更・最終ログイン更新など）
	Update(ctx context.Context, user *model.User) error
	//削除（管理者のみ）
	Delete(ctx context.Context, userID int64) error
	//管理者用一覧
	List(ctx context.Context, page int, limit int) ([]model.User, int64, error)
	//トークンのバージョンを＋１（強制ログアウト）
	IncrementTokenVersion(ctx context.Context, userID int64) error
}
