package storage

import (
	"context"
	"database/sql"
	"time"

	"storefront-workers/internal/common/database"
	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/models"

	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// DB exposes the pool so services can open transactions spanning repositories.
func (r *OrderRepository) DB() *sql.DB { return r.db }

const orderColumns = `id, order_number, customer_id, status, payment_status, subtotal, tax_amount,
	shipping_amount, total_amount, shipping_address, shipping_phone, customer_notes, admin_notes,
	created_at, updated_at, shipped_at, delivered_at`

func scanOrder(s rowScanner) (*models.Order, error) {
	var (
		o           models.Order
		shippedAt   sql.NullTime
		deliveredAt sql.NullTime
	)
	err := s.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.Status, &o.PaymentStatus, &o.Subtotal, &o.TaxAmount,
		&o.ShippingAmount, &o.TotalAmount, &o.ShippingAddress, &o.ShippingPhone, &o.CustomerNotes, &o.AdminNotes,
		&o.CreatedAt, &o.UpdatedAt, &shippedAt, &deliveredAt,
	)
	if err != nil {
		return nil, err
	}
	o.ShippedAt = nullTime(shippedAt)
	o.DeliveredAt = nullTime(deliveredAt)
	return &o, nil
}

// Insert writes the order header and its items. The total is recalculated
// before writing.
func (r *OrderRepository) Insert(ctx context.Context, q database.Querier, o *models.Order) error {
	o.Recalculate()
	err := q.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_number, customer_id, status, payment_status, subtotal, tax_amount,
			shipping_amount, total_amount, shipping_address, shipping_phone, customer_notes, admin_notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		o.OrderNumber, o.CustomerID, string(o.Status), string(o.PaymentStatus), o.Subtotal, o.TaxAmount,
		o.ShippingAmount, o.TotalAmount, o.ShippingAddress, o.ShippingPhone, o.CustomerNotes, o.AdminNotes,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("insert_order", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err := q.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, product_sku, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			it.OrderID, it.ProductID, it.ProductName, it.ProductSKU, it.UnitPrice, it.Quantity,
		).Scan(&it.ID)
		if err != nil {
			return apperrors.NewQueryExecutionFailedError("insert_order_item", err)
		}
	}
	return nil
}

// Update persists every mutable header field. The total is recalculated
// before writing.
func (r *OrderRepository) Update(ctx context.Context, q database.Querier, o *models.Order) error {
	o.Recalculate()
	err := q.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, tax_amount = $4, shipping_amount = $5, total_amount = $6,
		    shipping_address = $7, shipping_phone = $8, admin_notes = $9,
		    shipped_at = $10, delivered_at = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, string(o.Status), string(o.PaymentStatus), o.TaxAmount, o.ShippingAmount, o.TotalAmount,
		o.ShippingAddress, o.ShippingPhone, o.AdminNotes,
		o.ShippedAt, o.DeliveredAt,
	).Scan(&o.UpdatedAt)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("update_order", err)
	}
	return nil
}

// AppendHistory inserts one status history entry.
func (r *OrderRepository) AppendHistory(ctx context.Context, q database.Querier, h *models.OrderStatusHistory) error {
	var from sql.NullString
	if h.FromStatus != nil {
		from = sql.NullString{String: string(*h.FromStatus), Valid: true}
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, notes, changed_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		h.OrderID, from, string(h.ToStatus), h.Notes, toNullInt64(h.ChangedBy),
	).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("insert_status_history", err)
	}
	return nil
}

// GetByNumber loads an order with its items. With forUpdate the order row is
// locked, which only has effect when q is a transaction.
func (r *OrderRepository) GetByNumber(ctx context.Context, q database.Querier, orderNumber string, forUpdate bool) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRowContext(ctx, query, orderNumber))
	if isNoRows(err) {
		return nil, apperrors.NewOrderNotFoundError(orderNumber)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_order", err)
	}

	items, err := r.listItems(ctx, q, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

// GetByID is GetByNumber keyed by primary key, without locking.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, apperrors.NewOrderNotFoundError("")
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_order", err)
	}
	items, err := r.listItems(ctx, r.db, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *OrderRepository) listItems(ctx context.Context, q database.Querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, product_sku, unit_price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_order_items", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductSKU, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_order_item", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListHistory returns an order's status history oldest first.
func (r *OrderRepository) ListHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, notes, changed_by, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_status_history", err)
	}
	defer rows.Close()

	var out []models.OrderStatusHistory
	for rows.Next() {
		var (
			h         models.OrderStatusHistory
			from      sql.NullString
			changedBy sql.NullInt64
		)
		if err := rows.Scan(&h.ID, &h.OrderID, &from, &h.ToStatus, &h.Notes, &changedBy, &h.CreatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_status_history", err)
		}
		if from.Valid {
			s := models.OrderStatus(from.String)
			h.FromStatus = &s
		}
		h.ChangedBy = nullInt64(changedBy)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListPendingPaidBefore returns order numbers still pending but already paid
// that were created before cutoff.
func (r *OrderRepository) ListPendingPaidBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_number
		FROM orders
		WHERE status = 'pending' AND payment_status = 'paid' AND created_at < $1
		ORDER BY created_at`, cutoff)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_pending_orders", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_order_number", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Summarize aggregates orders created in [from, to).
func (r *OrderRepository) Summarize(ctx context.Context, from, to time.Time) (*models.OrderReport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY status`, from, to)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("summarize_orders", err)
	}
	defer rows.Close()

	report := &models.OrderReport{
		Date:           from.Format("2006-01-02"),
		TotalRevenue:   decimal.Zero,
		OrdersByStatus: make(map[models.OrderStatus]int, len(models.AllOrderStatuses)),
	}
	for _, s := range models.AllOrderStatuses {
		report.OrdersByStatus[s] = 0
	}
	for rows.Next() {
		var (
			status models.OrderStatus
			count  int
			sum    decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_order_summary", err)
		}
		report.OrdersByStatus[status] = count
		report.TotalOrders += count
		report.TotalRevenue = report.TotalRevenue.Add(sum)
	}
	return report, rows.Err()
}

// orderings maps the accepted sort keys to ORDER BY clauses. The id tiebreak
// keeps pages stable.
var orderings = map[string]string{
	"created_at":    "created_at ASC, id ASC",
	"-created_at":   "created_at DESC, id DESC",
	"total_amount":  "total_amount ASC, id ASC",
	"-total_amount": "total_amount DESC, id DESC",
	"status":        "status ASC, id ASC",
	"-status":       "status DESC, id DESC",
	"order_number":  "order_number ASC",
	"-order_number": "order_number DESC",
}

// ValidOrdering reports whether key is an accepted listing sort key.
func ValidOrdering(key string) bool {
	_, ok := orderings[key]
	return ok
}

func orderConditions(f models.OrderFilter) *conditions {
	c := &conditions{}
	if f.CustomerID > 0 {
		c.add("customer_id = ?", f.CustomerID)
	}
	if f.Status != "" {
		c.add("status = ?", string(f.Status))
	}
	if f.PaymentStatus != "" {
		c.add("payment_status = ?", string(f.PaymentStatus))
	}
	c.createdBetween(f.From, f.To)
	if f.MinAmount != nil {
		c.add("total_amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		c.add("total_amount <= ?", *f.MaxAmount)
	}
	return c
}

// List returns order headers matching f, without items. Limit 0 means no limit.
func (r *OrderRepository) List(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	sortBy, ok := orderings[f.Ordering]
	if !ok {
		sortBy = orderings["-created_at"]
	}
	c := orderConditions(f)
	query := `SELECT ` + orderColumns + ` FROM orders` + c.where() + ` ORDER BY ` + sortBy
	if f.Limit > 0 {
		query += ` LIMIT ` + c.next(f.Limit)
	}
	if f.Offset > 0 {
		query += ` OFFSET ` + c.next(f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_orders", err)
	}
	defer rows.Close()

	out := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_order", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

const topCustomerLimit = 10

// Analytics aggregates orders created in [from, to). Either bound may be nil.
func (r *OrderRepository) Analytics(ctx context.Context, from, to *time.Time) (*models.OrderAnalytics, error) {
	c := &conditions{}
	c.createdBetween(from, to)

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, payment_status, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM orders`+c.where()+`
		GROUP BY status, payment_status`, c.args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("order_analytics", err)
	}
	defer rows.Close()

	a := &models.OrderAnalytics{
		From:                  from,
		To:                    to,
		TotalRevenue:          decimal.Zero,
		AverageOrderValue:     decimal.Zero,
		OrdersByStatus:        make(map[models.OrderStatus]int, len(models.AllOrderStatuses)),
		OrdersByPaymentStatus: make(map[models.PaymentStatus]int),
		TopCustomers:          []models.CustomerSpend{},
	}
	for _, s := range models.AllOrderStatuses {
		a.OrdersByStatus[s] = 0
	}
	for rows.Next() {
		var (
			status  models.OrderStatus
			payment models.PaymentStatus
			count   int
			sum     decimal.Decimal
		)
		if err := rows.Scan(&status, &payment, &count, &sum); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_order_analytics", err)
		}
		a.OrdersByStatus[status] += count
		a.OrdersByPaymentStatus[payment] += count
		a.TotalOrders += count
		a.TotalRevenue = a.TotalRevenue.Add(sum)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("order_analytics", err)
	}
	if a.TotalOrders > 0 {
		a.AverageOrderValue = a.TotalRevenue.Div(decimal.NewFromInt(int64(a.TotalOrders))).Round(2)
	}

	top, err := r.topCustomers(ctx, c)
	if err != nil {
		return nil, err
	}
	a.TopCustomers = top
	return a, nil
}

func (r *OrderRepository) topCustomers(ctx context.Context, c *conditions) ([]models.CustomerSpend, error) {
	limit := c.next(topCustomerLimit)
	rows, err := r.db.QueryContext(ctx, `
		SELECT cu.id, cu.username, cu.email, t.order_count, t.total_spent
		FROM (
			SELECT customer_id, COUNT(*) AS order_count, SUM(total_amount) AS total_spent
			FROM orders`+c.where()+`
			GROUP BY customer_id
			ORDER BY total_spent DESC, customer_id
			LIMIT `+limit+`
		) t
		JOIN customers cu ON cu.id = t.customer_id
		ORDER BY t.total_spent DESC, cu.id`, c.args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("top_customers", err)
	}
	defer rows.Close()

	out := []models.CustomerSpend{}
	for rows.Next() {
		var s models.CustomerSpend
		if err := rows.Scan(&s.CustomerID, &s.Username, &s.Email, &s.OrderCount, &s.TotalSpent); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_top_customer", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
