// Package orders implements the order lifecycle: creation with stock
// reservation, cancellation with stock release, and staff updates. Every
// transition runs in one database transaction holding row locks, and
// customer notifications are sent only after commit.
package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront-workers/internal/common/database"
	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/common/metrics"
	"storefront-workers/internal/common/observability"
	"storefront-workers/internal/models"
	"storefront-workers/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Notifier is told about committed transitions. Implementations must not
// fail the caller.
type Notifier interface {
	NotifyOrderConfirmation(ctx context.Context, o *models.Order, customer *models.Principal)
	NotifyOrderStatus(ctx context.Context, o *models.Order, customer *models.Principal, status models.OrderStatus)
}

// CustomerLookup loads the order owner for notifications.
type CustomerLookup interface {
	GetByID(ctx context.Context, id int64) (*models.Principal, error)
}

type Service struct {
	db        *sql.DB
	orders    *storage.OrderRepository
	products  *storage.ProductRepository
	customers CustomerLookup
	notifier  Notifier
	logger    logger.Logger
	now       func() time.Time
}

func NewService(db *sql.DB, customers CustomerLookup, notifier Notifier, log logger.Logger) *Service {
	return &Service{
		db:        db,
		orders:    storage.NewOrderRepository(db),
		products:  storage.NewProductRepository(db),
		customers: customers,
		notifier:  notifier,
		logger:    log.Named("orders"),
		now:       time.Now,
	}
}

// ==========================
// Reads
// ==========================

// Get returns an order with its history. Customers only see their own
// orders; anything else is reported as not found.
func (s *Service) Get(ctx context.Context, actor *models.Principal, orderNumber string) (*models.Order, error) {
	o, err := s.orders.GetByNumber(ctx, s.db, orderNumber, false)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, o) {
		return nil, apperrors.NewOrderNotFoundError(orderNumber)
	}
	history, err := s.orders.ListHistory(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.History = history
	return o, nil
}

// List returns order headers newest first unless f.Ordering says otherwise.
// Customers are always narrowed to their own orders.
func (s *Service) List(ctx context.Context, actor *models.Principal, f models.OrderFilter) ([]models.Order, error) {
	if !actor.IsStaff() {
		f.CustomerID = actor.ID
	}
	if f.Ordering != "" && !storage.ValidOrdering(f.Ordering) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown ordering %q", f.Ordering))
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, apperrors.NewValidationError("date range is empty")
	}
	return s.orders.List(ctx, f)
}

// Analytics aggregates orders created in [from, to) for staff.
func (s *Service) Analytics(ctx context.Context, actor *models.Principal, from, to *time.Time) (*models.OrderAnalytics, error) {
	if !actor.IsStaff() {
		return nil, apperrors.NewForbiddenError("only staff can view order analytics")
	}
	ctx, span := observability.Tracer().Start(ctx, "orders.analytics")
	defer span.End()
	return s.orders.Analytics(ctx, from, to)
}

func canAccess(actor *models.Principal, o *models.Order) bool {
	return actor.IsStaff() || actor.ID == o.CustomerID
}

// ==========================
// Create
// ==========================

// Create validates input, reserves stock and inserts the order with its
// initial history entry. Either every line is reserved or none is.
func (s *Service) Create(ctx context.Context, customer *models.Principal, in CreateOrderInput) (*models.Order, error) {
	ctx, span := observability.Tracer().Start(ctx, "orders.create", trace.WithAttributes(
		attribute.Int64("customer.id", customer.ID),
		attribute.Int("order.lines", len(in.Items)),
	))
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderNumber:     models.NewOrderNumber(),
		CustomerID:      customer.ID,
		Status:          models.OrderPending,
		PaymentStatus:   models.PaymentPending,
		TaxAmount:       in.TaxAmount,
		ShippingAmount:  in.ShippingAmount,
		ShippingAddress: in.ShippingAddress,
		ShippingPhone:   in.ShippingPhone,
		CustomerNotes:   in.CustomerNotes,
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		locked, err := s.products.LockForUpdate(ctx, tx, in.productIDs())
		if err != nil {
			return err
		}

		for _, line := range in.Items {
			p, ok := locked[line.ProductID]
			if !ok || !p.IsActive {
				return apperrors.NewProductNotFoundError(line.ProductID)
			}
			if line.Quantity > p.StockQuantity {
				return apperrors.NewInsufficientStockError(p.ID, p.StockQuantity)
			}
			order.Items = append(order.Items, models.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				ProductSKU:  p.SKU,
				UnitPrice:   p.Price,
				Quantity:    line.Quantity,
			})
			order.Subtotal = order.Subtotal.Add(order.Items[len(order.Items)-1].TotalPrice())
		}

		if err := s.orders.Insert(ctx, tx, order); err != nil {
			return err
		}
		for _, it := range order.Items {
			if err := s.products.AdjustStock(ctx, tx, it.ProductID, -it.Quantity); err != nil {
				return err
			}
		}
		return s.orders.AppendHistory(ctx, tx, &models.OrderStatusHistory{
			OrderID:   order.ID,
			ToStatus:  models.OrderPending,
			Notes:     "Order created",
			ChangedBy: actorID(customer),
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues("none", string(models.OrderPending)).Inc()
	s.logger.Info("order created", map[string]interface{}{
		"orderNumber": order.OrderNumber,
		"customerId":  customer.ID,
		"total":       order.TotalAmount.StringFixed(2),
	})

	s.notifier.NotifyOrderConfirmation(ctx, order, customer)
	return order, nil
}

// ==========================
// Cancel
// ==========================

// Cancel moves a non-terminal order to cancelled and returns its stock.
func (s *Service) Cancel(ctx context.Context, actor *models.Principal, orderNumber string) (*models.Order, error) {
	ctx, span := observability.Tracer().Start(ctx, "orders.cancel", trace.WithAttributes(
		attribute.String("order.number", orderNumber),
	))
	defer span.End()

	var (
		order *models.Order
		from  models.OrderStatus
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		o, err := s.orders.GetByNumber(ctx, tx, orderNumber, true)
		if err != nil {
			return err
		}
		if !canAccess(actor, o) {
			return apperrors.NewOrderNotFoundError(orderNumber)
		}
		if o.Status.IsTerminal() {
			return apperrors.NewInvalidTransitionError(fmt.Sprintf("Cannot cancel order with status: %s", o.Status))
		}

		from = o.Status
		if err := s.releaseStock(ctx, tx, o); err != nil {
			return err
		}
		o.Status = models.OrderCancelled
		if err := s.orders.Update(ctx, tx, o); err != nil {
			return err
		}
		if err := s.orders.AppendHistory(ctx, tx, &models.OrderStatusHistory{
			OrderID:    o.ID,
			FromStatus: &from,
			ToStatus:   models.OrderCancelled,
			Notes:      "Order cancelled",
			ChangedBy:  actorID(actor),
		}); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, order, from, actor)
	return order, nil
}

// releaseStock returns every line's quantity to its product. Products that
// no longer exist are skipped.
func (s *Service) releaseStock(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	ids := make([]int64, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	locked, err := s.products.LockForUpdate(ctx, tx, ids)
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		if _, ok := locked[it.ProductID]; !ok {
			s.logger.Warn("product gone, stock not restored", map[string]interface{}{
				"orderNumber": o.OrderNumber,
				"productId":   it.ProductID,
			})
			continue
		}
		if err := s.products.AdjustStock(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// ==========================
// Update
// ==========================

// Update applies a staff edit. Terminal orders accept admin notes only.
func (s *Service) Update(ctx context.Context, actor *models.Principal, orderNumber string, in UpdateOrderInput) (*models.Order, error) {
	if !actor.IsStaff() {
		return nil, apperrors.NewForbiddenError("only staff can update orders")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, span := observability.Tracer().Start(ctx, "orders.update", trace.WithAttributes(
		attribute.String("order.number", orderNumber),
	))
	defer span.End()

	var (
		order   *models.Order
		from    models.OrderStatus
		changed bool
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		o, err := s.orders.GetByNumber(ctx, tx, orderNumber, true)
		if err != nil {
			return err
		}
		if o.Status.IsTerminal() && in.touchesMoreThanNotes() {
			return apperrors.NewInvalidTransitionError(fmt.Sprintf("Cannot update order with status: %s", o.Status))
		}

		from = o.Status
		if in.Status != nil && *in.Status != o.Status {
			changed = true
			if *in.Status == models.OrderCancelled {
				if err := s.releaseStock(ctx, tx, o); err != nil {
					return err
				}
			}
			s.applyStatus(o, *in.Status)
		}
		in.apply(o)

		if err := s.orders.Update(ctx, tx, o); err != nil {
			return err
		}
		if changed {
			notes := fmt.Sprintf("Status changed from %s to %s", from, o.Status)
			if in.Notes != "" {
				notes += ": " + in.Notes
			}
			if err := s.orders.AppendHistory(ctx, tx, &models.OrderStatusHistory{
				OrderID:    o.ID,
				FromStatus: &from,
				ToStatus:   o.Status,
				Notes:      notes,
				ChangedBy:  actorID(actor),
			}); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.afterTransition(ctx, order, from, actor)
	}
	return order, nil
}

// applyStatus sets the status and stamps shipped/delivered times once.
func (s *Service) applyStatus(o *models.Order, to models.OrderStatus) {
	o.Status = to
	now := s.now()
	switch to {
	case models.OrderShipped:
		if o.ShippedAt == nil {
			o.ShippedAt = &now
		}
	case models.OrderDelivered:
		if o.DeliveredAt == nil {
			o.DeliveredAt = &now
		}
	}
}

// ==========================
// System transitions
// ==========================

// AutoConfirmPending confirms paid orders still pending since before cutoff.
// Each order is confirmed in its own transaction; one failure does not stop
// the rest.
func (s *Service) AutoConfirmPending(ctx context.Context, cutoff time.Time) (int, error) {
	numbers, err := s.orders.ListPendingPaidBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	confirmed := 0
	for _, number := range numbers {
		ok, err := s.confirmIfStillPending(ctx, number, models.SystemPrincipal)
		if err != nil {
			s.logger.WithError(err).Error("auto-confirm failed", map[string]interface{}{"orderNumber": number})
			continue
		}
		if ok {
			confirmed++
		}
	}
	return confirmed, nil
}

func (s *Service) confirmIfStillPending(ctx context.Context, orderNumber string, actor *models.Principal) (bool, error) {
	var order *models.Order
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		o, err := s.orders.GetByNumber(ctx, tx, orderNumber, true)
		if err != nil {
			return err
		}
		if o.Status != models.OrderPending || o.PaymentStatus != models.PaymentPaid {
			return nil
		}
		from := o.Status
		o.Status = models.OrderConfirmed
		if err := s.orders.Update(ctx, tx, o); err != nil {
			return err
		}
		if err := s.orders.AppendHistory(ctx, tx, &models.OrderStatusHistory{
			OrderID:    o.ID,
			FromStatus: &from,
			ToStatus:   models.OrderConfirmed,
			Notes:      "Auto-confirmed after payment",
			ChangedBy:  actorID(actor),
		}); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil || order == nil {
		return false, err
	}
	metrics.OrderTransitions.WithLabelValues(string(models.OrderPending), string(models.OrderConfirmed)).Inc()
	s.logger.Info("order auto-confirmed", map[string]interface{}{
		"orderNumber": order.OrderNumber,
		"actor":       actor.Username,
	})
	return true, nil
}

// SetStock overwrites a product's stock under the same row lock used by
// order transitions.
func (s *Service) SetStock(ctx context.Context, actor *models.Principal, productID int64, quantity int) error {
	if !actor.IsStaff() {
		return apperrors.NewForbiddenError("only staff can set stock")
	}
	return s.products.SetStock(ctx, productID, quantity)
}

// ==========================
// Helpers
// ==========================

func (s *Service) afterTransition(ctx context.Context, o *models.Order, from models.OrderStatus, actor *models.Principal) {
	metrics.OrderTransitions.WithLabelValues(string(from), string(o.Status)).Inc()
	s.logger.Info("order status changed", map[string]interface{}{
		"orderNumber": o.OrderNumber,
		"from":        from,
		"to":          o.Status,
		"actorId":     actor.ID,
	})

	customer := actor
	if actor.ID != o.CustomerID {
		c, err := s.customers.GetByID(ctx, o.CustomerID)
		if err != nil {
			s.logger.WithError(err).Error("cannot load customer for notification", map[string]interface{}{
				"orderNumber": o.OrderNumber,
				"customerId":  o.CustomerID,
			})
			return
		}
		customer = c
	}
	s.notifier.NotifyOrderStatus(ctx, o, customer, o.Status)
}

// actorID is nil for the system principal.
func actorID(p *models.Principal) *int64 {
	if p == nil || p.ID == 0 {
		return nil
	}
	id := p.ID
	return &id
}
