package scheduler

import (
	"context"
	"time"

	"storefront-workers/internal/common/config"
	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/models"
	"storefront-workers/internal/notification"
)

// NotificationLedger is the notification store as seen by the maintenance jobs.
type NotificationLedger interface {
	ListFailedSince(ctx context.Context, since time.Time) ([]models.Notification, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Dispatcher interface {
	Sender(channel models.Channel) (notification.Sender, bool)
	SendLowStockAlert(ctx context.Context, p *models.Product, admins []models.Principal) []notification.DispatchResult
}

type LowStockSource interface {
	ListLowStock(ctx context.Context) ([]models.Product, error)
}

type AlertRecipients interface {
	ListAlertRecipients(ctx context.Context) ([]models.Principal, error)
}

type PendingOrderConfirmer interface {
	AutoConfirmPending(ctx context.Context, cutoff time.Time) (int, error)
}

type OrderSummarizer interface {
	Summarize(ctx context.Context, from, to time.Time) (*models.OrderReport, error)
}

// ReportIndexer stores a document under a fixed id, replacing any previous one.
type ReportIndexer interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
}

type Windows struct {
	Retry        time.Duration
	Retention    time.Duration
	PendingOrder time.Duration
}

// Deps groups the job dependencies. Nil members disable the jobs that need them.
type Deps struct {
	Notifications NotificationLedger
	Dispatcher    Dispatcher
	Products      LowStockSource
	Staff         AlertRecipients
	Orders        PendingOrderConfirmer
	Reports       OrderSummarizer
	Index         ReportIndexer
	ReportsIndex  string
}

type Jobs struct {
	deps    Deps
	windows Windows
	logger  logger.Logger
	now     func() time.Time
}

func NewJobs(deps Deps, windows Windows, log logger.Logger) *Jobs {
	return &Jobs{deps: deps, windows: windows, logger: log.Named("jobs"), now: time.Now}
}

type RetryStats struct {
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
}

// RetryFailedNotifications resends failed notifications created inside the
// retry window, using the stored rendered text. Channels without a
// configured sender are skipped.
func (j *Jobs) RetryFailedNotifications(ctx context.Context) (RetryStats, error) {
	var stats RetryStats
	rows, err := j.deps.Notifications.ListFailedSince(ctx, j.now().Add(-j.windows.Retry))
	if err != nil {
		return stats, err
	}

	for _, n := range rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		sender, ok := j.deps.Dispatcher.Sender(n.Channel)
		if !ok || !sender.Configured() {
			stats.Skipped++
			continue
		}

		stats.Retried++
		res := sender.Send(ctx, notification.Message{
			NotificationID: n.ID,
			Type:           n.NotificationType,
			To:             n.RecipientAddress,
			Subject:        n.Subject,
			Body:           n.Message,
		})
		if res.Success {
			stats.Succeeded++
		} else {
			j.logger.Debug("retry failed", map[string]interface{}{"notificationId": n.ID, "error": res.Error})
		}
	}
	return stats, nil
}

// CheckLowStockProducts emails every alert recipient about each low-stock
// product and returns the number of emails accepted.
func (j *Jobs) CheckLowStockProducts(ctx context.Context) (int, error) {
	products, err := j.deps.Products.ListLowStock(ctx)
	if err != nil {
		return 0, err
	}
	if len(products) == 0 {
		return 0, nil
	}
	admins, err := j.deps.Staff.ListAlertRecipients(ctx)
	if err != nil {
		return 0, err
	}
	if len(admins) == 0 {
		j.logger.Warn("low stock products found but no alert recipients", map[string]interface{}{"products": len(products)})
		return 0, nil
	}

	sent := 0
	for i := range products {
		for _, r := range j.deps.Dispatcher.SendLowStockAlert(ctx, &products[i], admins) {
			if r.Email != nil && r.Email.Success {
				sent++
			}
		}
	}
	return sent, nil
}

// CleanupOldNotifications deletes notifications past the retention window.
func (j *Jobs) CleanupOldNotifications(ctx context.Context) (int64, error) {
	return j.deps.Notifications.DeleteOlderThan(ctx, j.now().Add(-j.windows.Retention))
}

// ProcessPendingOrders confirms paid orders that have been pending longer
// than the pending-order window.
func (j *Jobs) ProcessPendingOrders(ctx context.Context) (int, error) {
	return j.deps.Orders.AutoConfirmPending(ctx, j.now().Add(-j.windows.PendingOrder))
}

// GenerateOrderReport summarises today's orders and indexes the report with
// the date as document id, so reruns overwrite.
func (j *Jobs) GenerateOrderReport(ctx context.Context) (*models.OrderReport, error) {
	now := j.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	report, err := j.deps.Reports.Summarize(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	report.GeneratedAt = now

	if j.deps.Index != nil {
		if err := j.deps.Index.IndexDocument(ctx, j.deps.ReportsIndex, report.Date, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// RegisterAll wires every job whose dependencies are present into s using
// the configured cron specs.
func (j *Jobs) RegisterAll(s *Scheduler, specs map[string]string) error {
	type entry struct {
		name  string
		ready bool
		fn    JobFunc
	}
	entries := []entry{
		{config.JobRetryFailedNotifications, j.deps.Notifications != nil && j.deps.Dispatcher != nil,
			func(ctx context.Context) (map[string]interface{}, error) {
				st, err := j.RetryFailedNotifications(ctx)
				return map[string]interface{}{"retried": st.Retried, "succeeded": st.Succeeded, "skipped": st.Skipped}, err
			}},
		{config.JobCheckLowStock, j.deps.Products != nil && j.deps.Staff != nil && j.deps.Dispatcher != nil,
			func(ctx context.Context) (map[string]interface{}, error) {
				n, err := j.CheckLowStockProducts(ctx)
				return map[string]interface{}{"alertsSent": n}, err
			}},
		{config.JobCleanupNotifications, j.deps.Notifications != nil,
			func(ctx context.Context) (map[string]interface{}, error) {
				n, err := j.CleanupOldNotifications(ctx)
				return map[string]interface{}{"deleted": n}, err
			}},
		{config.JobProcessPendingOrders, j.deps.Orders != nil,
			func(ctx context.Context) (map[string]interface{}, error) {
				n, err := j.ProcessPendingOrders(ctx)
				return map[string]interface{}{"confirmed": n}, err
			}},
		{config.JobGenerateOrderReports, j.deps.Reports != nil,
			func(ctx context.Context) (map[string]interface{}, error) {
				r, err := j.GenerateOrderReport(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"date": r.Date, "orders": r.TotalOrders, "revenue": r.TotalRevenue.StringFixed(2)}, nil
			}},
	}

	for _, e := range entries {
		if !e.ready {
			j.logger.Warn("job disabled, dependencies missing", map[string]interface{}{"job": e.name})
			continue
		}
		if err := s.Register(e.name, specs[e.name], e.fn); err != nil {
			return err
		}
	}
	return nil
}
