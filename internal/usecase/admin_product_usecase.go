package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

type AdminProductUsecase struct {
	productRepo   repo.ProductRepository
	inventoryRepo repo.InventoryRepository
	auditRepo     repo.AuditLogRepository
}

func NewAdminProductUsecase(
	productRepo repo.ProductRepository,
	inventoryRepo repo.InventoryRepository,
	auditRepo repo.AuditLogRepository,
) *AdminProductUsecase {
	return &AdminProductUsecase{
		productRepo:   productRepo,
		inventoryRepo: inventoryRepo,
		auditRepo:     auditRepo,
	}
}

func (u *AdminProductUsecase) List(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	items, total, err := u.productRepo.List(ctx, repo.ProductListFilter{
		Page:            in.Page,
		Limit:           in.Limit,
		Search:          strings.TrimSpace(in.Search),
		Category:        strings.TrimSpace(in.Category),
		IncludeInactive: true,
	})
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ProductListOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

// 新規作成はサンプル値で作る（管理画面が直後に編集画面へ遷移する前提）
func (u *AdminProductUsecase) Create(ctx context.Context, actorAdminUserID int64) (model.Product, error) {
	if actorAdminUserID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	p := model.Product{
		Name:        "Sample name",
		Description: "Sample description",
		Image:       "/images/sample.jpg",
		Brand:       "Sample brand",
		Category:    "Sample category",
		Price:       decimal.Zero,
		Stock:       0,
		IsActive:    false,
	}

	id, err := u.productRepo.Create(ctx, p)
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	p.ID = id

	if err := u.audit(ctx, actorAdminUserID, model.AuditActionCreateProduct, id, nil, p); err != nil {
		return model.Product{}, err
	}

	return p, nil
}

type AdminUpdateProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock"`
	IsActive    bool            `json:"is_active"`
}

func (u *AdminProductUsecase) Update(ctx context.Context, actorAdminUserID int64, productID int64, in AdminUpdateProductInput) (model.Product, error) {
	if actorAdminUserID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid name")
	}
	if in.Price.IsNegative() {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid price")
	}
	if in.Stock < 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid stock")
	}

	before, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	after := before
	after.Name = in.Name
	after.Description = in.Description
	after.Image = in.Image
	after.Brand = in.Brand
	after.Category = in.Category
	after.Price = in.Price
	after.Stock = in.Stock
	after.IsActive = in.IsActive

	if err := u.productRepo.Update(ctx, after); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.audit(ctx, actorAdminUserID, model.AuditActionUpdateProduct, productID, before, after); err != nil {
		return model.Product{}, err
	}

	return after, nil
}

func (u *AdminProductUsecase) Delete(ctx context.Context, actorAdminUserID int64, productID int64) error {
	if actorAdminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	before, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.productRepo.Delete(ctx, productID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.audit(ctx, actorAdminUserID, model.AuditActionDeleteProduct, productID, before, nil)
}

// 在庫数の直接設定（棚卸し）
func (u *AdminProductUsecase) SetStock(ctx context.Context, actorAdminUserID int64, productID int64, newStock int64) error {
	if actorAdminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if newStock < 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid stock")
	}

	before, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.inventoryRepo.SetStock(ctx, productID, newStock); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	after := before
	after.Stock = newStock
	return u.audit(ctx, actorAdminUserID, model.AuditActionUpdateStock, productID, before, after)
}

func (u *AdminProductUsecase) audit(ctx context.Context, actorID int64, action model.AuditAction, resourceID int64, before any, after any) error {
	beforeJSON, _ := json.Marshal(before)
	afterJSON, _ := json.Marshal(after)

	if err := u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   resourceID,
		BeforeJSON:   string(beforeJSON),
		AfterJSON:    string(afterJSON),
		CreatedAt:    time.Now(),
	}); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}
