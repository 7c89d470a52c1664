package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/event"
	"storefront/internal/payment"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// テスト用ロガー（出力は捨てる）
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =====================
// TxManager / TxRepos mocks
// =====================

// txManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type txManagerMock struct {
	Repos repo.TxRepos
}

func (m *txManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(m.Repos)
}

type txReposMock struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	products   repo.ProductRepository
	inventory  repo.InventoryRepository
	reviews    repo.ReviewRepository
}

func (r *txReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *txReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *txReposMock) Products() repo.ProductRepository     { return r.products }
func (r *txReposMock) Inventory() repo.InventoryRepository  { return r.inventory }
func (r *txReposMock) Reviews() repo.ReviewRepository       { return r.reviews }

// =====================
// Repository mocks
// =====================

type orderRepoMock struct{ mock.Mock }

func (m *orderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *orderRepoMock) FindByPaymentIntentID(ctx context.Context, intentID string) (model.Order, bool, error) {
	args := m.Called(ctx, intentID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Bool(1), args.Error(2)
}

func (m *orderRepoMock) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *orderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *orderRepoMock) ClaimPaymentIntent(ctx context.Context, orderID int64, intentID string) (bool, error) {
	args := m.Called(ctx, orderID, intentID)
	return args.Bool(0), args.Error(1)
}

func (m *orderRepoMock) MarkPaid(ctx context.Context, orderID int64, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, orderID, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *orderRepoMock) MarkDelivered(ctx context.Context, orderID int64, deliveredAt time.Time) (bool, error) {
	args := m.Called(ctx, orderID, deliveredAt)
	return args.Bool(0), args.Error(1)
}

func (m *orderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

type orderItemRepoMock struct{ mock.Mock }

func (m *orderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *orderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

type productRepoMock struct{ mock.Mock }

func (m *productRepoMock) FindByID(ctx context.Context, productID int64) (model.Product, error) {
	args := m.Called(ctx, productID)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *productRepoMock) List(ctx context.Context, f repo.ProductListFilter) ([]model.Product, int64, error) {
	args := m.Called(ctx, f)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *productRepoMock) ListFeatured(ctx context.Context, limit int) ([]model.Product, error) {
	args := m.Called(ctx, limit)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Error(1)
}

func (m *productRepoMock) ListTrending(ctx context.Context, minRating decimal.Decimal, limit int) ([]model.Product, error) {
	args := m.Called(ctx, minRating, limit)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Error(1)
}

func (m *productRepoMock) Create(ctx context.Context, p model.Product) (int64, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(int64), args.Error(1)
}

func (m *productRepoMock) Update(ctx context.Context, p model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *productRepoMock) Delete(ctx context.Context, productID int64) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

func (m *productRepoMock) UpdateRating(ctx context.Context, productID int64, rating decimal.Decimal, numReviews int64) error {
	args := m.Called(ctx, productID, rating, numReviews)
	return args.Error(0)
}

type inventoryRepoMock struct{ mock.Mock }

func (m *inventoryRepoMock) SetStock(ctx context.Context, productID int64, newStock int64) error {
	args := m.Called(ctx, productID, newStock)
	return args.Error(0)
}

func (m *inventoryRepoMock) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	args := m.Called(ctx, productID, qty)
	return args.Bool(0), args.Error(1)
}

func (m *inventoryRepoMock) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	args := m.Called(ctx, productID, qty)
	return args.Error(0)
}

type reviewRepoMock struct{ mock.Mock }

func (m *reviewRepoMock) Create(ctx context.Context, review model.Review) (int64, error) {
	args := m.Called(ctx, review)
	return args.Get(0).(int64), args.Error(1)
}

func (m *reviewRepoMock) ListByProductID(ctx context.Context, productID int64) ([]model.Review, error) {
	args := m.Called(ctx, productID)
	reviews, _ := args.Get(0).([]model.Review)
	return reviews, args.Error(1)
}

func (m *reviewRepoMock) ExistsByProductAndUser(ctx context.Context, productID int64, userID int64) (bool, error) {
	args := m.Called(ctx, productID, userID)
	return args.Bool(0), args.Error(1)
}

type auditLogRepoMock struct{ mock.Mock }

func (m *auditLogRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *auditLogRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

// =====================
// Gateway / Publisher mocks
// =====================

type gatewayMock struct{ mock.Mock }

func (m *gatewayMock) CreateIntent(ctx context.Context, amountMinorUnits int64, currency string) (payment.Intent, error) {
	args := m.Called(ctx, amountMinorUnits, currency)
	in, _ := args.Get(0).(payment.Intent)
	return in, args.Error(1)
}

func (m *gatewayMock) RetrieveIntent(ctx context.Context, intentID string) (payment.Intent, error) {
	args := m.Called(ctx, intentID)
	in, _ := args.Get(0).(payment.Intent)
	return in, args.Error(1)
}

// publisherMock は発行されたイベントを保持して検証に使う
type publisherMock struct {
	Events []event.OrderEvent
}

func (m *publisherMock) Publish(ev event.OrderEvent) error {
	m.Events = append(m.Events, ev)
	return nil
}

func (m *publisherMock) Close() error { return nil }
