package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/event"
	"storefront/internal/payment"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func validAddress() model.ShippingAddress {
	return model.ShippingAddress{
		PostalCode: "1500001",
		City:       "Shibuya",
		Line1:      "1-2-3",
		Country:    "JP",
		Name:       "Taro Yamada",
	}
}

func newOrderUsecaseForTest(
	orders *orderRepoMock,
	items *orderItemRepoMock,
	products *productRepoMock,
	inventory *inventoryRepoMock,
	gw *gatewayMock,
	pub *publisherMock,
) *OrderUsecase {
	tx := &txManagerMock{Repos: &txReposMock{
		orders:     orders,
		orderItems: items,
		products:   products,
		inventory:  inventory,
	}}
	return NewOrderUsecase(tx, orders, items, gw, pub, defaultRules(), "usd", testLogger())
}

func assertHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	he, ok := AsHTTPError(err)
	assert.True(t, ok, "expected HTTPError, got %v", err)
	assert.Equal(t, want, he.Status)
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	uc := newOrderUsecaseForTest(&orderRepoMock{}, &orderItemRepoMock{}, &productRepoMock{}, &inventoryRepoMock{}, &gatewayMock{}, &publisherMock{})

	_, err := uc.PlaceOrder(context.Background(), 1, PlaceOrderInput{
		Items:           nil,
		ShippingAddress: validAddress(),
		PaymentMethod:   "card",
	})

	assertHTTPStatus(t, err, http.StatusBadRequest)
}

func TestPlaceOrder_OutOfStock(t *testing.T) {
	orders := &orderRepoMock{}
	items := &orderItemRepoMock{}
	products := &productRepoMock{}
	inventory := &inventoryRepoMock{}
	pub := &publisherMock{}

	products.On("FindByID", mock.Anything, int64(10)).Return(model.Product{
		ID:       10,
		Name:     "Keyboard",
		Price:    decimal.NewFromInt(50),
		IsActive: true,
	}, nil)
	inventory.On("DecreaseStockIfEnough", mock.Anything, int64(10), int64(3)).Return(false, nil)

	uc := newOrderUsecaseForTest(orders, items, products, inventory, &gatewayMock{}, pub)

	_, err := uc.PlaceOrder(context.Background(), 1, PlaceOrderInput{
		Items:           []OrderLineInput{{ProductID: 10, Quantity: 3}},
		ShippingAddress: validAddress(),
		PaymentMethod:   "card",
	})

	assertHTTPStatus(t, err, http.StatusBadRequest)
	// 注文もイベントも作られない
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, pub.Events)
}

func TestPlaceOrder_InactiveProduct(t *testing.T) {
	products := &productRepoMock{}
	products.On("FindByID", mock.Anything, int64(10)).Return(model.Product{
		ID:       10,
		IsActive: false,
	}, nil)

	uc := newOrderUsecaseForTest(&orderRepoMock{}, &orderItemRepoMock{}, products, &inventoryRepoMock{}, &gatewayMock{}, &publisherMock{})

	_, err := uc.PlaceOrder(context.Background(), 1, PlaceOrderInput{
		Items:           []OrderLineInput{{ProductID: 10, Quantity: 1}},
		ShippingAddress: validAddress(),
		PaymentMethod:   "card",
	})

	assertHTTPStatus(t, err, http.StatusBadRequest)
}

func TestPlaceOrder_SnapshotsAndTotals(t *testing.T) {
	orders := &orderRepoMock{}
	items := &orderItemRepoMock{}
	products := &productRepoMock{}
	inventory := &inventoryRepoMock{}
	pub := &publisherMock{}

	products.On("FindByID", mock.Anything, int64(10)).Return(model.Product{
		ID:       10,
		Name:     "Keyboard",
		Image:    "/images/keyboard.jpg",
		Price:    decimal.NewFromInt(60),
		IsActive: true,
	}, nil)
	inventory.On("DecreaseStockIfEnough", mock.Anything, int64(10), int64(2)).Return(true, nil)
	orders.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.Status == model.OrderStatusPending &&
			o.ItemsPrice.Equal(decimal.RequireFromString("120.00")) &&
			o.ShippingPrice.IsZero() &&
			o.TaxPrice.Equal(decimal.RequireFromString("18.00")) &&
			o.TotalPrice.Equal(decimal.RequireFromString("138.00"))
	})).Return(int64(77), nil)
	items.On("CreateBulk", mock.Anything, int64(77), mock.MatchedBy(func(its []model.OrderItem) bool {
		return len(its) == 1 &&
			its[0].ProductNameSnapshot == "Keyboard" &&
			its[0].UnitPriceSnapshot.Equal(decimal.NewFromInt(60)) &&
			its[0].Quantity == 2
	})).Return(nil)

	uc := newOrderUsecaseForTest(orders, items, products, inventory, &gatewayMock{}, pub)

	out, err := uc.PlaceOrder(context.Background(), 1, PlaceOrderInput{
		Items:           []OrderLineInput{{ProductID: 10, Quantity: 2}},
		ShippingAddress: validAddress(),
		PaymentMethod:   "card",
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(77), out.ID)
	assert.Equal(t, string(model.OrderStatusPending), out.Status)
	assert.Equal(t, "138.00", out.TotalPrice.StringFixed(2))

	// order.createdイベントが1件
	assert.Len(t, pub.Events, 1)
	assert.Equal(t, event.TypeOrderCreated, pub.Events[0].Type)
	assert.Equal(t, int64(77), pub.Events[0].OrderID)
}

func TestGetOrderDetail_OtherUsersOrderLooksMissing(t *testing.T) {
	orders := &orderRepoMock{}
	orders.On("FindByID", mock.Anything, int64(5)).Return(model.Order{ID: 5, UserID: 99}, nil)

	uc := newOrderUsecaseForTest(orders, &orderItemRepoMock{}, &productRepoMock{}, &inventoryRepoMock{}, &gatewayMock{}, &publisherMock{})

	_, err := uc.GetOrderDetail(context.Background(), 1, false, 5)
	assertHTTPStatus(t, err, http.StatusNotFound)
}

func TestGetOrderDetail_AdminSeesAnyOrder(t *testing.T) {
	orders := &orderRepoMock{}
	items := &orderItemRepoMock{}
	orders.On("FindByID", mock.Anything, int64(5)).Return(model.Order{ID: 5, UserID: 99}, nil)
	items.On("ListByOrderID", mock.Anything, int64(5)).Return([]model.OrderItem{}, nil)

	uc := newOrderUsecaseForTest(orders, items, &productRepoMock{}, &inventoryRepoMock{}, &gatewayMock{}, &publisherMock{})

	out, err := uc.GetOrderDetail(context.Background(), 1, true, 5)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), out.ID)
}

func TestInitiatePayment_AlreadyPaid(t *testing.T) {
	orders := &orderRepoMock{}
	orders.On("FindByID", mock.Anything, int64(5)).Return(model.Order{
		ID:     5,
		UserID: 1,
		Status: model.OrderStatusPaid,
	}, nil)

	gw := &gatewayMock{}
	uc := newOrderUsecaseForTest(orders, &orderItemRepoMock{}, &productRepoMock{}, &inventoryRepoMock{}, gw, &publisherMock{})

	_, err := uc.InitiatePayment(context.Background(), 1, false, 5)
	assertHTTPStatus(t, err, http.StatusBadRequest)
	gw.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything, mock.Anything)
}

func TestInitiatePayment_CreatesAndClaimsIntent(t *testing.T) {
	orders := &orderRepoMock{}
	gw := &gatewayMock{}

	orders.On("FindByID", mock.Anything, int64(5)).Return(model.Order{
		ID:         5,
		UserID:     1,
		Status:     model.OrderStatusPending,
		TotalPrice: decimal.RequireFromString("138.00"),
	}, nil)
	gw.On("CreateIntent", mock.Anything, int64(13800), "usd").Return(payment.Intent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
	}, nil)
	orders.On("ClaimPaymentIntent", mock.Anything, int64(5), "pi_123").Return(true, nil)

	uc := newOrderUsecaseForTest(orders, &orderItemRepoMock{}, &productRepoMock{}, &inventoryRepoMock{}, gw, &publisherMock{})

	out, err := uc.InitiatePayment(context.Background(), 1, false, 5)
	assert.NoError(t, err)
	assert.Equal(t, "pi_123_secret", out.ClientSecret)
	assert.Equal(t, string(model.OrderStatusProcessing), out.Status)
}

func TestInitiatePayment_ReusesExistingIntent(t *testing.T) {
	orders := &orderRepoMock{}
	gw := &gatewayMock{}

	orders.On("FindByID", mock.Anything, int64(5)).Return(model.Order{
		ID:              5,
		UserID:          1,
		Status:          model.OrderStatusProcessing,
		PaymentIntentID: "pi_123",
	}, nil)
	gw.On("RetrieveIntent", mock.Anything, "pi_123").Return(payment.Intent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
	}, nil)

	uc := newOrderUsecaseForTest(orders, &orderItemRepoMock{}, &productRepoMock{}, &inventoryRepoMock{}, gw, &publisherMock{})

	// 2回呼んでも同じclient_secretで、新しいintentは作られない
	for i := 0; i < 2; i++ {
		out, err := uc.InitiatePayment(context.Background(), 1, false, 5)
		assert.NoError(t, err)
		assert.Equal(t, "pi_123_secret", out.ClientSecret)
		assert.Equal(t, string(model.OrderStatusProcessing), out.Status)
	}
	gw.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything, mock.Anything)
}

func TestInitiatePayment_ReusedIntentAlreadySucceeded(t *testing.T) {
	orders := &orderRepoMock{}
	gw := &gatewayMock{}
	pub := &publisherMock{}

	orders.On("FindByID", mock.Anything, int64(5)).Return(model.Order{
		ID:              5,
		UserID:          1,
		Status:          model.OrderStatusProcessing,
		PaymentIntentID: "pi_123",
	}, nil)
	gw.On("RetrieveIntent", mock.Anything, "pi_123").Return(payment.Intent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
		Succeeded:    true,
	}, nil)
	orders.On("MarkPaid", mock.Anything, int64(5), mock.Anything).Return(true, nil)

	uc := newOrderUsecaseForTest(orders, &orderItemRepoMock{}, &productRepoMock{}, &inventoryRepoMock{}, gw, pub)

	out, err := uc.InitiatePayment(context.Background(), 1, false, 5)
	assert.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusPaid), out.Status)

	assert.Len(t, pub.Events, 1)
	assert.Equal(t, event.TypeOrderPaid, pub.Events[0].Type)
}

func TestInitiatePayment_LostClaimUsesWinnersIntent(t *testing.T) {
	orders := &orderRepoMock{}
	gw := &gatewayMock{}

	// 初回読み込みはintent未設定
	orders.On("FindByID", mock.Anything, int64(5)).Return(model.Order{
		ID:         5,
		UserID:     1,
		Status:     model.OrderStatusPending,
		TotalPrice: decimal.NewFromInt(50),
	}, nil).Once()
	gw.On("CreateIntent", mock.Anything, int64(5000), "usd").Return(payment.Intent{
		ID:           "pi_loser",
		ClientSecret: "pi_loser_secret",
	}, nil)
	//別リクエストが先に紐付けた
	orders.On("ClaimPaymentIntent", mock.Anything, int64(5), "pi_loser").Return(false, nil)
	orders.On("FindByID", mock.Anything, int64(5)).Return(model.Order{
		ID:              5,
		UserID:          1,
		Status:          model.OrderStatusProcessing,
		PaymentIntentID: "pi_winner",
	}, nil).Once()
	gw.On("RetrieveIntent", mock.Anything, "pi_winner").Return(payment.Intent{
		ID:           "pi_winner",
		ClientSecret: "pi_winner_secret",
	}, nil)

	uc := newOrderUsecaseForTest(orders, &orderItemRepoMock{}, &productRepoMock{}, &inventoryRepoMock{}, gw, &publisherMock{})

	out, err := uc.InitiatePayment(context.Background(), 1, false, 5)
	assert.NoError(t, err)
	assert.Equal(t, "pi_winner_secret", out.ClientSecret)
}

func TestInitiatePayment_GatewayDown(t *testing.T) {
	orders := &orderRepoMock{}
	gw := &gatewayMock{}

	orders.On("FindByID", mock.Anything, int64(5)).Return(model.Order{
		ID:         5,
		UserID:     1,
		Status:     model.OrderStatusPending,
		TotalPrice: decimal.NewFromInt(50),
	}, nil)
	gw.On("CreateIntent", mock.Anything, int64(5000), "usd").Return(payment.Intent{}, errors.New("connection refused"))

	uc := newOrderUsecaseForTest(orders, &orderItemRepoMock{}, &productRepoMock{}, &inventoryRepoMock{}, gw, &publisherMock{})

	_, err := uc.InitiatePayment(context.Background(), 1, false, 5)
	assertHTTPStatus(t, err, http.StatusBadGateway)
}

func TestConfirmPaymentByIntent_UnknownIntentIsNoop(t *testing.T) {
	orders := &orderRepoMock{}
	orders.On("FindByPaymentIntentID", mock.Anything, "pi_unknown").Return(model.Order{}, false, nil)

	uc := newOrderUsecaseForTest(orders, &orderItemRepoMock{}, &productRepoMock{}, &inventoryRepoMock{}, &gatewayMock{}, &publisherMock{})

	res, err := uc.ConfirmPaymentByIntent(context.Background(), "pi_unknown")
	assert.NoError(t, err)
	assert.False(t, res.OrderFound)
	orders.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmPaymentByIntent_Idempotent(t *testing.T) {
	orders := &orderRepoMock{}
	pub := &publisherMock{}

	orders.On("FindByPaymentIntentID", mock.Anything, "pi_123").Return(model.Order{
		ID:     5,
		UserID: 1,
	}, true, nil)
	//初回だけ状態が変わる
	orders.On("MarkPaid", mock.Anything, int64(5), mock.Anything).Return(true, nil).Once()
	orders.On("MarkPaid", mock.Anything, int64(5), mock.Anything).Return(false, nil)

	uc := newOrderUsecaseForTest(orders, &orderItemRepoMock{}, &productRepoMock{}, &inventoryRepoMock{}, &gatewayMock{}, pub)

	first, err := uc.ConfirmPaymentByIntent(context.Background(), "pi_123")
	assert.NoError(t, err)
	assert.True(t, first.Transitioned)

	second, err := uc.ConfirmPaymentByIntent(context.Background(), "pi_123")
	assert.NoError(t, err)
	assert.True(t, second.OrderFound)
	assert.False(t, second.Transitioned)

	// order.paidは1回だけ
	assert.Len(t, pub.Events, 1)
	assert.Equal(t, event.TypeOrderPaid, pub.Events[0].Type)
}

func TestListMyOrders_Pagination(t *testing.T) {
	orders := &orderRepoMock{}
	items := &orderItemRepoMock{}

	orders.On("ListByUserID", mock.Anything, int64(1), 2, myOrdersPageSize).Return([]model.Order{
		{ID: 8, UserID: 1},
	}, int64(8), nil)
	items.On("ListByOrderID", mock.Anything, int64(8)).Return([]model.OrderItem{}, nil)

	uc := newOrderUsecaseForTest(orders, items, &productRepoMock{}, &inventoryRepoMock{}, &gatewayMock{}, &publisherMock{})

	out, err := uc.ListMyOrders(context.Background(), 1, 2)
	assert.NoError(t, err)
	assert.Equal(t, 2, out.Page)
	assert.Equal(t, int64(2), out.Pages) // 8件÷7件/ページ→2ページ
	assert.Equal(t, int64(8), out.Total)
}

var _ repo.TransactionManager = (*txManagerMock)(nil)
