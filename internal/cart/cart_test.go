package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/models"
	"storefront-workers/internal/orders"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeProducts map[int64]*models.Product

func (f fakeProducts) GetByID(_ context.Context, id int64) (*models.Product, error) {
	if p, ok := f[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, apperrors.NewProductNotFoundError(id)
}

type MockOrderCreator struct {
	CreateFunc func(ctx context.Context, customer *models.Principal, in orders.CreateOrderInput) (*models.Order, error)
}

func (m *MockOrderCreator) Create(ctx context.Context, customer *models.Principal, in orders.CreateOrderInput) (*models.Order, error) {
	return m.CreateFunc(ctx, customer, in)
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, fakeProducts) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	products := fakeProducts{
		1: {ID: 1, Name: "Mug", SKU: "MUG-1", Price: decimal.RequireFromString("25.50"), StockQuantity: 5, IsActive: true},
		2: {ID: 2, Name: "Pen", SKU: "PEN-1", Price: decimal.RequireFromString("10"), StockQuantity: 100, IsActive: true},
		3: {ID: 3, Name: "Old", SKU: "OLD-1", Price: decimal.RequireFromString("1"), StockQuantity: 100, IsActive: false},
	}
	return NewStore(rdb, products, 7*24*time.Hour, logger.NewTestLogger(t)), mr, products
}

// ==========================
// Core Functionality Tests
// ==========================

func TestStore_AddAndGet(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "sess-1", 1, 2))
	require.NoError(t, s.Add(ctx, "sess-1", 2, 3))
	require.NoError(t, s.Add(ctx, "sess-1", 1, 1))

	c, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, c.Lines, 2)
	assert.Equal(t, int64(1), c.Lines[0].Product.ID)
	assert.Equal(t, 3, c.Lines[0].Quantity)
	assert.True(t, c.Lines[0].LineTotal.Equal(decimal.RequireFromString("76.50")))
	assert.True(t, c.Subtotal.Equal(decimal.RequireFromString("106.50")))
	assert.Equal(t, 6, c.Items)

	assert.Equal(t, 7*24*time.Hour, mr.TTL("cart:sess-1"))
}

func TestStore_Add_Validation(t *testing.T) {
	tests := []struct {
		name      string
		productID int64
		qty       int
		wantErr   *apperrors.StandardError
	}{
		{"zero quantity", 1, 0, apperrors.ErrValidation},
		{"over stock", 1, 6, apperrors.ErrInsufficientStock},
		{"inactive product", 3, 1, apperrors.ErrProductNotFound},
		{"unknown product", 99, 1, apperrors.ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mr, _ := newTestStore(t)
			err := s.Add(context.Background(), "sess", tt.productID, tt.qty)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, mr.Exists("cart:sess"))
		})
	}
}

func TestStore_Add_CumulativeStockCheck(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "sess", 1, 4))
	err := s.Add(ctx, "sess", 1, 2)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.Equal(t, "Insufficient stock. Only 5 units available.", apperrors.AsStandard(err).Message)
}

func TestStore_Update(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "sess", 2, 1))

	require.NoError(t, s.Update(ctx, "sess", 2, 7))
	assert.Equal(t, "7", mr.HGet("cart:sess", "2"))

	assert.ErrorIs(t, s.Update(ctx, "sess", 1, 1), apperrors.ErrItemNotInCart)
	assert.ErrorIs(t, s.Update(ctx, "sess", 2, -1), apperrors.ErrValidation)
	assert.ErrorIs(t, s.Update(ctx, "sess", 2, 101), apperrors.ErrInsufficientStock)

	require.NoError(t, s.Update(ctx, "sess", 2, 0))
	assert.False(t, mr.Exists("cart:sess"))
}

func TestStore_RemoveAndClear(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "sess", 1, 1))
	require.NoError(t, s.Add(ctx, "sess", 2, 1))

	require.NoError(t, s.Remove(ctx, "sess", 1))
	assert.ErrorIs(t, s.Remove(ctx, "sess", 1), apperrors.ErrItemNotInCart)

	require.NoError(t, s.Clear(ctx, "sess"))
	assert.False(t, mr.Exists("cart:sess"))
}

func TestStore_Get_DropsVanishedProducts(t *testing.T) {
	s, mr, products := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "sess", 1, 1))
	require.NoError(t, s.Add(ctx, "sess", 2, 1))
	delete(products, 2)

	c, err := s.Get(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "", mr.HGet("cart:sess", "2"))
	assert.Equal(t, "1", mr.HGet("cart:sess", "1"))
}

// ==========================
// Checkout
// ==========================

func TestStore_Checkout(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()
	customer := &models.Principal{ID: 3, Role: models.RoleCustomer}
	require.NoError(t, s.Add(ctx, "sess", 2, 4))
	require.NoError(t, s.Add(ctx, "sess", 1, 1))

	creator := &MockOrderCreator{CreateFunc: func(ctx context.Context, c *models.Principal, in orders.CreateOrderInput) (*models.Order, error) {
		assert.Equal(t, int64(3), c.ID)
		assert.Equal(t, []orders.LineInput{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 4}}, in.Items)
		assert.Equal(t, "1 Moi Ave", in.ShippingAddress)
		return &models.Order{OrderNumber: "ORD-00000001"}, nil
	}}

	o, err := s.Checkout(ctx, "sess", customer, creator, CheckoutInput{ShippingAddress: "1 Moi Ave"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-00000001", o.OrderNumber)
	assert.False(t, mr.Exists("cart:sess"))
}

func TestStore_Checkout_KeepsCartOnFailure(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "sess", 2, 1))

	creator := &MockOrderCreator{CreateFunc: func(ctx context.Context, c *models.Principal, in orders.CreateOrderInput) (*models.Order, error) {
		return nil, errors.New("db down")
	}}

	_, err := s.Checkout(ctx, "sess", &models.Principal{ID: 3}, creator, CheckoutInput{ShippingAddress: "x"})
	require.Error(t, err)
	assert.True(t, mr.Exists("cart:sess"))
}

func TestStore_Checkout_EmptyCart(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.Checkout(context.Background(), "sess", &models.Principal{ID: 3}, &MockOrderCreator{}, CheckoutInput{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
