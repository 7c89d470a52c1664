package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/event"
	"storefront/internal/payment"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 注文一覧のページサイズ（注文履歴画面の都合で固定）
const myOrdersPageSize = 7

type OrderUsecase struct {
	tx       repo.TransactionManager
	orders   repo.OrderRepository
	items    repo.OrderItemRepository
	gateway  payment.Gateway
	events   event.Publisher
	rules    PricingRules
	currency string
	logger   *slog.Logger
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	gateway payment.Gateway,
	events event.Publisher,
	rules PricingRules,
	currency string,
	logger *slog.Logger,
) *OrderUsecase {
	return &OrderUsecase{
		tx:       tx,
		orders:   orders,
		items:    items,
		gateway:  gateway,
		events:   events,
		rules:    rules,
		currency: currency,
		logger:   logger,
	}
}

type OrderLineInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type PlaceOrderInput struct {
	Items           []OrderLineInput
	ShippingAddress model.ShippingAddress
	PaymentMethod   string
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
}

type OrderOutput struct {
	ID              int64                 `json:"id"`
	UserID          int64                 `json:"user_id"`
	Status          string                `json:"status"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method"`
	ItemsPrice      decimal.Decimal       `json:"items_price"`
	TaxPrice        decimal.Decimal       `json:"tax_price"`
	ShippingPrice   decimal.Decimal       `json:"shipping_price"`
	TotalPrice      decimal.Decimal       `json:"total_price"`
	PaidAt          *time.Time            `json:"paid_at,omitempty"`
	IsDelivered     bool                  `json:"is_delivered"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	Items           []OrderItemOutput     `json:"items"`
}

type OrderListOutput struct {
	Orders []OrderOutput `json:"orders"`
	Page   int           `json:"page"`
	Pages  int64         `json:"pages"`
	Total  int64         `json:"total"`
}

// 注文を作成する。
// 金額はクライアントの申告ではなく、商品マスタの現在価格から計算し直す。
// 明細の名前・画像・単価は注文時点の値をスナップショットする。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "no order items")
	}
	for _, line := range in.Items {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid items")
		}
	}
	if in.ShippingAddress.PostalCode == "" || in.ShippingAddress.City == "" ||
		in.ShippingAddress.Line1 == "" || in.ShippingAddress.Name == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid shipping address")
	}
	if in.PaymentMethod == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment method")
	}

	var out OrderOutput

	//注文処理はトランザクション
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orderItems := make([]model.OrderItem, 0, len(in.Items))
		pricingItems := make([]PricingItem, 0, len(in.Items))

		now := time.Now()

		for _, line := range in.Items {
			//商品取得
			p, err := r.Products().FindByID(ctx, line.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusBadRequest, "invalid product")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.IsActive {
				return NewHTTPError(http.StatusBadRequest, "invalid product")
			}

			//在庫減算（足りないなら false）
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				return NewHTTPError(http.StatusBadRequest, "out of stock")
			}

			//スナップショット
			orderItems = append(orderItems, model.OrderItem{
				ProductID:            line.ProductID,
				ProductNameSnapshot:  p.Name,
				ProductImageSnapshot: p.Image,
				UnitPriceSnapshot:    p.Price,
				Quantity:             line.Quantity,
				CreatedAt:            now,
			})
			pricingItems = append(pricingItems, PricingItem{
				UnitPrice: p.Price,
				Quantity:  line.Quantity,
			})
		}

		quote := CalculateQuote(pricingItems, u.rules)

		// 注文作成
		order := model.Order{
			UserID:          userID,
			Status:          model.OrderStatusPending,
			ShippingAddress: in.ShippingAddress,
			PaymentMethod:   in.PaymentMethod,
			ItemsPrice:      quote.ItemsPrice,
			TaxPrice:        quote.TaxPrice,
			ShippingPrice:   quote.ShippingPrice,
			TotalPrice:      quote.TotalPrice,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//注文明細一括作成
		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		order.ID = orderID
		out = toOrderOutput(order, orderItems)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	u.publish(event.TypeOrderCreated, out.ID, userID, map[string]any{
		"total_price": out.TotalPrice.String(),
	})

	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		page = 1
	}

	orders, total, err := u.orders.ListByUserID(ctx, userID, page, myOrdersPageSize)
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

	pages := total / myOrdersPageSize
	if total%myOrdersPageSize != 0 {
		pages++
	}

	return OrderListOutput{Orders: outs, Page: page, Pages: pages, Total: total}, nil
}

// 注文詳細。所有者か管理者だけが見られる。
// 他人の注文は「存在しない扱い」にする（IDの総当たりで誰の注文かを当てさせない）。
func (u *OrderUsecase) GetOrderDetail(ctx context.Context, userID int64, isAdmin bool, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
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
	if o.UserID != userID && !isAdmin {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	items, err := u.items.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return toOrderOutput(o, items), nil
}

type InitiatePaymentOutput struct {
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// 支払いを開始する。
// 既にintentがあれば同じものを返す（画面リロードで二重課金用のintentを作らない）。
// intentの作成と注文への紐付けは条件付き更新で直列化し、競合の敗者は勝者のintentを使う。
func (u *OrderUsecase) InitiatePayment(ctx context.Context, userID int64, isAdmin bool, orderID int64) (InitiatePaymentOutput, error) {
	if userID <= 0 {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if o.UserID != userID && !isAdmin {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if o.Status == model.OrderStatusPaid {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusBadRequest, "order already paid")
	}

	//intent設定済みなら再取得して同じclient_secretを返す
	if o.PaymentIntentID != "" {
		return u.reuseIntent(ctx, o)
	}

	intent, err := u.gateway.CreateIntent(ctx, o.TotalCents(), u.currency)
	if err != nil {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusBadGateway, "payment provider unavailable")
	}

	claimed, err := u.orders.ClaimPaymentIntent(ctx, o.ID, intent.ID)
	if err != nil {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !claimed {
		//同時リクエストに先を越された。勝者のintentを読み直して使う。
		//今作ったintentは未確定のまま放置され、期限切れで消える。
		o2, err := u.orders.FindByID(ctx, orderID)
		if err != nil {
			return InitiatePaymentOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o2.Status == model.OrderStatusPaid {
			return InitiatePaymentOutput{}, NewHTTPError(http.StatusBadRequest, "order already paid")
		}
		if o2.PaymentIntentID == "" {
			return InitiatePaymentOutput{}, NewHTTPError(http.StatusInternalServerError, "payment intent conflict")
		}
		return u.reuseIntent(ctx, o2)
	}

	return InitiatePaymentOutput{
		ClientSecret: intent.ClientSecret,
		Status:       string(model.OrderStatusProcessing),
	}, nil
}

// 設定済みintentの再利用。
// Stripe側で既に決済が完了していたら、その場で支払い済みへ進める
// （webhookが先に届いていなくてもクライアント側の確認が取れる）。
func (u *OrderUsecase) reuseIntent(ctx context.Context, o model.Order) (InitiatePaymentOutput, error) {
	intent, err := u.gateway.RetrieveIntent(ctx, o.PaymentIntentID)
	if err != nil {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusBadGateway, "payment provider unavailable")
	}

	status := o.Status
	if intent.Succeeded {
		won, err := u.orders.MarkPaid(ctx, o.ID, time.Now())
		if err != nil {
			return InitiatePaymentOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if won {
			u.publish(event.TypeOrderPaid, o.ID, o.UserID, map[string]any{
				"payment_intent_id": o.PaymentIntentID,
			})
		}
		status = model.OrderStatusPaid
	}

	return InitiatePaymentOutput{
		ClientSecret: intent.ClientSecret,
		Status:       string(status),
	}, nil
}

// ConfirmResult はwebhook処理の結果。
type ConfirmResult struct {
	OrderFound   bool
	Transitioned bool
	OrderID      int64
}

// webhook経由の支払い確定。intentに対応する注文がなければ何もしない
// （別環境のテストイベントが届くことがあるため、見つからなくてもエラーにしない）。
// 条件付き更新なので同じイベントが何度届いても2回目以降はno-op。
func (u *OrderUsecase) ConfirmPaymentByIntent(ctx context.Context, intentID string) (ConfirmResult, error) {
	if intentID == "" {
		return ConfirmResult{}, nil
	}

	o, found, err := u.orders.FindByPaymentIntentID(ctx, intentID)
	if err != nil {
		return ConfirmResult{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !found {
		return ConfirmResult{}, nil
	}

	won, err := u.orders.MarkPaid(ctx, o.ID, time.Now())
	if err != nil {
		return ConfirmResult{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if won {
		u.publish(event.TypeOrderPaid, o.ID, o.UserID, map[string]any{
			"payment_intent_id": intentID,
		})
	}

	return ConfirmResult{OrderFound: true, Transitioned: won, OrderID: o.ID}, nil
}

// イベント配信は成否をリクエストに波及させない
func (u *OrderUsecase) publish(eventType string, orderID int64, userID int64, payload map[string]any) {
	ev := event.OrderEvent{
		EventID:   uuid.NewString(),
		Type:      eventType,
		OrderID:   orderID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
	if err := u.events.Publish(ev); err != nil {
		u.logger.Error("order event publish failed",
			"type", eventType, "order_id", orderID, "error", err)
	}
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Image:     it.ProductImageSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		ItemsPrice:      o.ItemsPrice,
		TaxPrice:        o.TaxPrice,
		ShippingPrice:   o.ShippingPrice,
		TotalPrice:      o.TotalPrice,
		PaidAt:          o.PaidAt,
		IsDelivered:     o.IsDelivered,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}
