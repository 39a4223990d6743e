package storage

import (
	"context"
	"database/sql"
	"math"
	"time"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/models"
)

// NotificationRepository is the notification ledger.
type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, recipient_id, channel, notification_type, subject, message,
	recipient_address, status, order_id, external_id, error_message, created_at, sent_at, delivered_at`

// Create inserts n as pending and fills in ID and CreatedAt.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	n.Status = models.NotificationPending
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (
			recipient_id, channel, notification_type, subject, message,
			recipient_address, status, order_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		n.RecipientID, string(n.Channel), string(n.NotificationType), n.Subject, n.Message,
		n.RecipientAddress, string(n.Status), toNullInt64(n.OrderID),
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("create_notification", err)
	}
	return nil
}

// MarkSent records provider acceptance. A failed row may be re-driven to sent.
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, externalID string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'sent', external_id = $2, sent_at = $3, error_message = ''
		WHERE id = $1 AND status IN ('pending', 'failed')`,
		id, externalID, sentAt,
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("mark_notification_sent", err)
	}
	return nil
}

// MarkFailed records a failed attempt with its reason.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'failed', error_message = $2
		WHERE id = $1 AND status IN ('pending', 'failed')`,
		id, reason,
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("mark_notification_failed", err)
	}
	return nil
}

// MarkDelivered applies a provider delivery report to a sent row.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, externalID string, deliveredAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'delivered', delivered_at = $2
		WHERE external_id = $1 AND status = 'sent'`,
		externalID, deliveredAt,
	)
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("mark_notification_delivered", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListFailedSince returns failed rows created at or after since, oldest first.
func (r *NotificationRepository) ListFailedSince(ctx context.Context, since time.Time) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE status = 'failed' AND created_at >= $1
		ORDER BY created_at`,
		since,
	)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_failed_notifications", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_notification", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_failed_notifications", err)
	}
	return out, nil
}

// ListForRecipient returns the most recent rows for one recipient.
func (r *NotificationRepository) ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		recipientID, limit,
	)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_recipient_notifications", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_notification", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// Stats counts rows created in [from, to), optionally for one recipient.
func (r *NotificationRepository) Stats(ctx context.Context, recipientID int64, from, to *time.Time) (*models.NotificationStats, error) {
	c := &conditions{}
	if recipientID > 0 {
		c.add("recipient_id = ?", recipientID)
	}
	c.createdBetween(from, to)

	rows, err := r.db.QueryContext(ctx, `
		SELECT channel, notification_type, status, COUNT(*)
		FROM notifications`+c.where()+`
		GROUP BY channel, notification_type, status`, c.args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("notification_stats", err)
	}
	defer rows.Close()

	st := &models.NotificationStats{ByType: map[models.NotificationType]int{}}
	for rows.Next() {
		var (
			ch     models.Channel
			nt     models.NotificationType
			status models.NotificationStatus
			count  int
		)
		if err := rows.Scan(&ch, &nt, &status, &count); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan_notification_stats", err)
		}
		st.Total += count
		st.ByType[nt] += count
		switch status {
		case models.NotificationSent, models.NotificationDelivered:
			st.Sent += count
			if ch == models.ChannelSMS {
				st.SMSSent += count
			} else {
				st.EmailSent += count
			}
		case models.NotificationFailed:
			st.Failed += count
		default:
			st.Pending += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("notification_stats", err)
	}
	if st.Total > 0 {
		st.SuccessRate = math.Round(float64(st.Sent)/float64(st.Total)*10000) / 100
	}
	return st, nil
}

// DeleteOlderThan hard-deletes rows created before cutoff regardless of status.
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.NewQueryExecutionFailedError("cleanup_notifications", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(s rowScanner) (*models.Notification, error) {
	var (
		n           models.Notification
		orderID     sql.NullInt64
		sentAt      sql.NullTime
		deliveredAt sql.NullTime
	)
	err := s.Scan(
		&n.ID, &n.RecipientID, &n.Channel, &n.NotificationType, &n.Subject, &n.Message,
		&n.RecipientAddress, &n.Status, &orderID, &n.ExternalID, &n.ErrorMessage,
		&n.CreatedAt, &sentAt, &deliveredAt,
	)
	if err != nil {
		return nil, err
	}
	n.OrderID = nullInt64(orderID)
	n.SentAt = nullTime(sentAt)
	n.DeliveredAt = nullTime(deliveredAt)
	return &n, nil
}
