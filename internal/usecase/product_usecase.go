package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

type ProductUsecase struct {
	tx          repo.TransactionManager
	productRepo repo.ProductRepository
	reviewRepo  repo.ReviewRepository
}

// DI
func NewProductUsecase(
	tx repo.TransactionManager,
	productRepo repo.ProductRepository,
	reviewRepo repo.ReviewRepository,
) *ProductUsecase {
	return &ProductUsecase{
		tx:          tx,
		productRepo: productRepo,
		reviewRepo:  reviewRepo,
	}
}

// トップページに載せる抜粋の件数
const (
	featuredLimit = 10
	trendingLimit = 4
)

// 「高評価の新着」に入る下限評価
var trendingMinRating = decimal.NewFromInt(4)

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Search   string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	// ratings=3,4,5 のような複数指定は最小値で下限フィルタになる
	MinRating *decimal.Decimal
}

type ProductListOutput struct {
	Items    []model.Product `json:"items"`
	Featured []model.Product `json:"featured"`
	Trending []model.Product `json:"trending"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Search) > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid search")
	}

	items, total, err := u.productRepo.List(ctx, repo.ProductListFilter{
		Page:      in.Page,
		Limit:     in.Limit,
		Search:    strings.TrimSpace(in.Search),
		Category:  strings.TrimSpace(in.Category),
		MinPrice:  in.MinPrice,
		MaxPrice:  in.MaxPrice,
		MinRating: in.MinRating,
	})
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//抜粋は絞り込み条件と無関係に全公開商品から選ぶ
	featured, err := u.productRepo.ListFeatured(ctx, featuredLimit)
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	trending, err := u.productRepo.ListTrending(ctx, trendingMinRating, trendingLimit)
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ProductListOutput{
		Items:    items,
		Featured: featured,
		Trending: trending,
		Total:    total,
		Page:     in.Page,
		Limit:    in.Limit,
	}, nil
}

type ProductDetailOutput struct {
	Product model.Product  `json:"product"`
	Reviews []model.Review `json:"reviews"`
}

func (u *ProductUsecase) GetPublicProduct(ctx context.Context, productID int64) (ProductDetailOutput, error) {
	if productID <= 0 {
		return ProductDetailOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return ProductDetailOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	//非公開商品は一般には見せない
	if !p.IsActive {
		return ProductDetailOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	reviews, err := u.reviewRepo.ListByProductID(ctx, productID)
	if err != nil {
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ProductDetailOutput{Product: p, Reviews: reviews}, nil
}

type CreateReviewInput struct {
	Rating  int
	Comment string
}

// レビュー投稿。1ユーザー1商品1件まで。
// 投稿と評価の再計算は同一トランザクションで行う。
func (u *ProductUsecase) CreateReview(ctx context.Context, userID int64, userName string, productID int64, in CreateReviewInput) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return NewHTTPError(http.StatusBadRequest, "invalid rating")
	}
	if len(in.Comment) > 2000 {
		return NewHTTPError(http.StatusBadRequest, "comment too long")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !p.IsActive {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		exists, err := r.Reviews().ExistsByProductAndUser(ctx, productID, userID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if exists {
			return NewHTTPError(http.StatusBadRequest, "product already reviewed")
		}

		if _, err := r.Reviews().Create(ctx, model.Review{
			ProductID: productID,
			UserID:    userID,
			UserName:  userName,
			Rating:    in.Rating,
			Comment:   in.Comment,
		}); err != nil {
			//一意制約に当たったら同時投稿。already reviewed扱い。
			return NewHTTPError(http.StatusBadRequest, "product already reviewed")
		}

		//評価の平均を再計算して商品に反映
		reviews, err := r.Reviews().ListByProductID(ctx, productID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		sum := decimal.Zero
		for _, rv := range reviews {
			sum = sum.Add(decimal.NewFromInt(int64(rv.Rating)))
		}
		avg := sum.Div(decimal.NewFromInt(int64(len(reviews)))).Round(2)

		if err := r.Products().UpdateRating(ctx, productID, avg, int64(len(reviews))); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		return nil
	})
}
