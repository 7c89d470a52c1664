package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/event"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
)

type AdminOrderUsecase struct {
	orders    repo.OrderRepository
	items     repo.OrderItemRepository
	auditRepo repo.AuditLogRepository
	events    event.Publisher
	logger    *slog.Logger
}

func NewAdminOrderUsecase(
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	auditRepo repo.AuditLogRepository,
	events event.Publisher,
	logger *slog.Logger,
) *AdminOrderUsecase {
	return &AdminOrderUsecase{
		orders:    orders,
		items:     items,
		auditRepo: auditRepo,
		events:    events,
		logger:    logger,
	}
}

// 注文一覧（管理者）
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	orders, total, err := u.orders.ListAdmin(ctx, f)
	if err != nil {
		return OrderListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.items.ListByOrderID(ctx, o.ID)
		if err != nil {
			return OrderListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		outs = append(outs, toOrderOutput(o, items))
	}

	pages := total / int64(f.Limit)
	if total%int64(f.Limit) != 0 {
		pages++
	}

	return OrderListOutput{Orders: outs, Page: f.Page, Pages: pages, Total: total}, nil
}

// 配達済みにする（管理者のみ）。
// 繰り返し呼ばれても2回目以降は何もしないで成功を返す。
// 支払いの「already paid」は400で弾くのと対照的に、配達は黙ってno-opにする仕様。
func (u *AdminOrderUsecase) MarkDelivered(ctx context.Context, actorAdminUserID int64, orderID int64) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	now := time.Now()
	changed, err := u.orders.MarkDelivered(ctx, orderID, now)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if changed {
		//監査ログ（MARK_DELIVERED）
		beforeJSON := fmt.Sprintf(`{"is_delivered":%t}`, o.IsDelivered)
		afterJSON := `{"is_delivered":true}`
		if err := u.auditRepo.Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionMarkDelivered,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   beforeJSON,
			AfterJSON:    afterJSON,
			CreatedAt:    now,
		}); err != nil {
			return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		ev := event.OrderEvent{
			EventID:   uuid.NewString(),
			Type:      event.TypeOrderDelivered,
			OrderID:   orderID,
			UserID:    o.UserID,
			CreatedAt: now.UTC(),
		}
		if err := u.events.Publish(ev); err != nil {
			u.logger.Error("order event publish failed",
				"type", ev.Type, "order_id", orderID, "error", err)
		}
	}

	//最新状態を返す
	updated, err := u.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	items, err := u.items.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return toOrderOutput(updated, items), nil
}
