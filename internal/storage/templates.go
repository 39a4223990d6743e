package storage

import (
	"context"
	"database/sql"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/models"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `id, name, notification_type, channel, subject, message, is_active, created_at, updated_at`

// GetActive returns the active template for (type, channel) or a
// TEMPLATE_NOT_FOUND error.
func (r *TemplateRepository) GetActive(ctx context.Context, notificationType models.NotificationType, channel models.Channel) (*models.NotificationTemplate, error) {
	var t models.NotificationTemplate
	err := r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM notification_templates
		WHERE notification_type = $1 AND channel = $2 AND is_active = TRUE`,
		string(notificationType), string(channel),
	).Scan(&t.ID, &t.Name, &t.NotificationType, &t.Channel, &t.Subject, &t.Message, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if isNoRows(err) {
		return nil, apperrors.NewTemplateNotFoundError(string(notificationType), string(channel))
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_template", err)
	}
	return &t, nil
}

// Upsert creates or replaces the template for its (type, channel) pair.
func (r *TemplateRepository) Upsert(ctx context.Context, t *models.NotificationTemplate) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notification_templates (name, notification_type, channel, subject, message, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (notification_type, channel) DO UPDATE
		SET name = EXCLUDED.name, subject = EXCLUDED.subject, message = EXCLUDED.message,
		    is_active = EXCLUDED.is_active, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		t.Name, string(t.NotificationType), string(t.Channel), t.Subject, t.Message, t.IsActive,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("upsert_template", err)
	}
	return nil
}

// List returns every template, active or not, ordered by type then channel.
func (r *TemplateRepository) List(ctx context.Context) ([]models.NotificationTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM notification_templates
		ORDER BY notification_type, channel`)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_templates", err)
	}
	defer rows.Close()

	var out []models.NotificationTemplate
	for rows.Next() {
		var t models.NotificationTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.NotificationType, &t.Channel, &t.Subject, &t.Message, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_template", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
