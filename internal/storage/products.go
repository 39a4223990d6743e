package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/common/database"
	"storefront-workers/internal/models"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, name, sku, price, stock_quantity, low_stock_threshold, is_active`

func scanProduct(s rowScanner) (*models.Product, error) {
	var p models.Product
	if err := s.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.StockQuantity, &p.LowStockThreshold, &p.IsActive); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, apperrors.NewProductNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_product", err)
	}
	return p, nil
}

// ListLowStock returns active products at or below their threshold.
func (r *ProductRepository) ListLowStock(ctx context.Context) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_active = TRUE AND stock_quantity <= low_stock_threshold
		ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_low_stock", err)
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_product", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// LockForUpdate row-locks the given products inside tx, in ascending id
// order, and returns them keyed by id. Missing ids are absent from the map.
func (r *ProductRepository) LockForUpdate(ctx context.Context, tx database.Querier, ids []int64) (map[int64]*models.Product, error) {
	if len(ids) == 0 {
		return map[int64]*models.Product{}, nil
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	placeholders := make([]string, len(sorted))
	args := make([]interface{}, len(sorted))
	for i, id := range sorted {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY id
		FOR UPDATE`, args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("lock_products", err)
	}
	defer rows.Close()

	out := make(map[int64]*models.Product, len(sorted))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_product", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// AdjustStock adds delta (negative to decrement) to a product's stock.
func (r *ProductRepository) AdjustStock(ctx context.Context, q database.Querier, id int64, delta int) error {
	res, err := q.ExecContext(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2
		WHERE id = $1 AND stock_quantity + $2 >= 0`,
		id, delta,
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("adjust_stock", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewInsufficientStockError(id, 0)
	}
	return nil
}

// SetStock overwrites the stock level under a row lock.
func (r *ProductRepository) SetStock(ctx context.Context, id int64, quantity int) error {
	if quantity < 0 {
		return apperrors.NewValidationError("stock quantity cannot be negative")
	}
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		locked, err := r.LockForUpdate(ctx, tx, []int64{id})
		if err != nil {
			return err
		}
		if _, ok := locked[id]; !ok {
			return apperrors.NewProductNotFoundError(id)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE products SET stock_quantity = $2 WHERE id = $1`, id, quantity); err != nil {
			return apperrors.NewQueryExecutionFailedError("set_stock", err)
		}
		return nil
	})
}
