package storage

import (
	"context"
	"database/sql"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/models"
)

type CustomerRepository struct {
	db *sql.DB
}

func NewCustomerRepository(db *sql.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `id, username, full_name, email, phone, sms_notifications, email_notifications, role, is_active`

func scanCustomer(s rowScanner) (*models.Principal, error) {
	var p models.Principal
	if err := s.Scan(&p.ID, &p.Username, &p.FullName, &p.Email, &p.Phone, &p.SMSEnabled, &p.EmailEnabled, &p.Role, &p.IsActive); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*models.Principal, error) {
	p, err := scanCustomer(r.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, apperrors.NewAuthenticationError("unknown account")
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_customer", err)
	}
	return p, nil
}

// ListAlertRecipients returns active staff accounts with email alerts enabled.
func (r *CustomerRepository) ListAlertRecipients(ctx context.Context) ([]models.Principal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE role = 'staff' AND is_active = TRUE AND email_notifications = TRUE AND email <> ''
		ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_alert_recipients", err)
	}
	defer rows.Close()

	var out []models.Principal
	for rows.Next() {
		p, err := scanCustomer(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_customer", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdatePreferences sets the channel opt-ins that are non-nil and returns the
// stored result.
func (r *CustomerRepository) UpdatePreferences(ctx context.Context, id int64, sms, email *bool) (*models.Principal, error) {
	p, err := scanCustomer(r.db.QueryRowContext(ctx, `
		UPDATE customers
		SET sms_notifications = COALESCE($2, sms_notifications),
		    email_notifications = COALESCE($3, email_notifications)
		WHERE id = $1
		RETURNING `+customerColumns,
		id, toNullBool(sms), toNullBool(email),
	))
	if isNoRows(err) {
		return nil, apperrors.NewAuthenticationError("unknown account")
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("update_notification_preferences", err)
	}
	return p, nil
}
