// Package cart keeps shopping carts in Redis hashes keyed by session, one
// field per product holding the quantity.
package cart

import (
	"context"
	"sort"
	"strconv"
	"time"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/models"
	"storefront-workers/internal/orders"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const keyPrefix = "cart:"

type ProductLookup interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
}

// OrderCreator places the order built from a cart.
type OrderCreator interface {
	Create(ctx context.Context, customer *models.Principal, in orders.CreateOrderInput) (*models.Order, error)
}

type Line struct {
	Product   models.Product  `json:"product"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type Cart struct {
	Session  string          `json:"session"`
	Lines    []Line          `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Items    int             `json:"items"`
}

type Store struct {
	rdb      *redis.Client
	products ProductLookup
	ttl      time.Duration
	logger   logger.Logger
}

func NewStore(rdb *redis.Client, products ProductLookup, ttl time.Duration, log logger.Logger) *Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Store{rdb: rdb, products: products, ttl: ttl, logger: log.Named("cart")}
}

func key(session string) string { return keyPrefix + session }

func field(productID int64) string { return strconv.FormatInt(productID, 10) }

// Add increases the quantity of productID by qty, checking the resulting
// quantity against current stock.
func (s *Store) Add(ctx context.Context, session string, productID int64, qty int) error {
	if qty < 1 {
		return apperrors.NewValidationError("quantity must be at least 1")
	}
	current, err := s.quantity(ctx, session, productID)
	if err != nil {
		return err
	}
	if err := s.checkStock(ctx, productID, current+qty); err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key(session), field(productID), int64(qty))
	pipe.Expire(ctx, key(session), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewCacheError("cart_add", err)
	}
	return nil
}

// Update sets the quantity of an existing line. Zero removes it.
func (s *Store) Update(ctx context.Context, session string, productID int64, qty int) error {
	if qty < 0 {
		return apperrors.NewValidationError("quantity cannot be negative")
	}
	current, err := s.quantity(ctx, session, productID)
	if err != nil {
		return err
	}
	if current == 0 {
		return apperrors.NewItemNotInCartError(productID)
	}
	if qty == 0 {
		return s.Remove(ctx, session, productID)
	}
	if err := s.checkStock(ctx, productID, qty); err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key(session), field(productID), qty)
	pipe.Expire(ctx, key(session), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewCacheError("cart_update", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, session string, productID int64) error {
	n, err := s.rdb.HDel(ctx, key(session), field(productID)).Result()
	if err != nil {
		return apperrors.NewCacheError("cart_remove", err)
	}
	if n == 0 {
		return apperrors.NewItemNotInCartError(productID)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, session string) error {
	if err := s.rdb.Del(ctx, key(session)).Err(); err != nil {
		return apperrors.NewCacheError("cart_clear", err)
	}
	return nil
}

// Get returns the cart with current product data. Lines whose product has
// disappeared are dropped from the cart.
func (s *Store) Get(ctx context.Context, session string) (*Cart, error) {
	raw, err := s.rdb.HGetAll(ctx, key(session)).Result()
	if err != nil {
		return nil, apperrors.NewCacheError("cart_get", err)
	}

	c := &Cart{Session: session, Lines: []Line{}, Subtotal: decimal.Zero}
	for f, v := range raw {
		productID, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.Atoi(v)
		if err != nil || qty <= 0 {
			continue
		}
		p, err := s.products.GetByID(ctx, productID)
		if apperrors.HasCode(err, apperrors.ErrCodeProductNotFound) {
			s.logger.Info("dropping missing product from cart", map[string]interface{}{"session": session, "productId": productID})
			_ = s.rdb.HDel(ctx, key(session), f).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		line := Line{Product: *p, Quantity: qty, LineTotal: p.Price.Mul(decimal.NewFromInt(int64(qty)))}
		c.Lines = append(c.Lines, line)
		c.Subtotal = c.Subtotal.Add(line.LineTotal)
		c.Items += qty
	}
	sort.Slice(c.Lines, func(i, j int) bool { return c.Lines[i].Product.ID < c.Lines[j].Product.ID })
	return c, nil
}

// CheckoutInput carries the order fields not held in the cart.
type CheckoutInput struct {
	ShippingAddress string          `json:"shippingAddress"`
	ShippingPhone   string          `json:"shippingPhone"`
	CustomerNotes   string          `json:"customerNotes"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	ShippingAmount  decimal.Decimal `json:"shippingAmount"`
}

// Checkout places an order for the cart contents and empties the cart once
// the order exists. The cart is kept when order creation fails.
func (s *Store) Checkout(ctx context.Context, session string, customer *models.Principal, creator OrderCreator, in CheckoutInput) (*models.Order, error) {
	c, err := s.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(c.Lines) == 0 {
		return nil, apperrors.NewValidationError("cart is empty")
	}

	input := orders.CreateOrderInput{
		TaxAmount:       in.TaxAmount,
		ShippingAmount:  in.ShippingAmount,
		ShippingAddress: in.ShippingAddress,
		ShippingPhone:   in.ShippingPhone,
		CustomerNotes:   in.CustomerNotes,
	}
	for _, l := range c.Lines {
		input.Items = append(input.Items, orders.LineInput{ProductID: l.Product.ID, Quantity: l.Quantity})
	}

	o, err := creator.Create(ctx, customer, input)
	if err != nil {
		return nil, err
	}
	if err := s.Clear(ctx, session); err != nil {
		s.logger.WithError(err).Warn("order placed but cart not cleared", map[string]interface{}{
			"session":     session,
			"orderNumber": o.OrderNumber,
		})
	}
	return o, nil
}

func (s *Store) quantity(ctx context.Context, session string, productID int64) (int, error) {
	n, err := s.rdb.HGet(ctx, key(session), field(productID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.NewCacheError("cart_read", err)
	}
	return n, nil
}

func (s *Store) checkStock(ctx context.Context, productID int64, want int) error {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return apperrors.NewProductNotFoundError(productID)
	}
	if want > p.StockQuantity {
		return apperrors.NewInsufficientStockError(productID, p.StockQuantity)
	}
	return nil
}
