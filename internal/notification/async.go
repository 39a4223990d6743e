package notification

import (
	"context"

	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/common/metrics"
	"storefront-workers/internal/models"
)

// Job kinds carried by a queued notification.
const (
	KindOrderConfirmation = "order_confirmation"
	KindOrderStatus       = "order_status"
	KindWelcome           = "welcome"
)

// JobVariables is the payload of a queued notification process instance.
type JobVariables struct {
	Kind       string `json:"kind"`
	OrderID    int64  `json:"orderId,omitempty"`
	Status     string `json:"status,omitempty"`
	CustomerID int64  `json:"customerId"`
}

// Enqueuer starts a workflow instance that performs the dispatch later.
type Enqueuer interface {
	StartProcess(ctx context.Context, processID string, variables interface{}) (int64, error)
}

// AsyncNotifier queues notifications and falls back to dispatching inline
// when the queue is unavailable. It never returns an error to the caller.
type AsyncNotifier struct {
	queue      Enqueuer
	processID  string
	dispatcher *Dispatcher
	logger     logger.Logger
}

// NewAsyncNotifier builds a notifier. A nil queue always dispatches inline.
func NewAsyncNotifier(queue Enqueuer, processID string, dispatcher *Dispatcher, log logger.Logger) *AsyncNotifier {
	return &AsyncNotifier{
		queue:      queue,
		processID:  processID,
		dispatcher: dispatcher,
		logger:     log.Named("async-notifier"),
	}
}

func (n *AsyncNotifier) NotifyOrderConfirmation(ctx context.Context, o *models.Order, customer *models.Principal) {
	n.enqueue(ctx, JobVariables{Kind: KindOrderConfirmation, OrderID: o.ID, CustomerID: customer.ID}, func(ctx context.Context) {
		n.dispatcher.SendOrderConfirmation(ctx, o, customer)
	})
}

// NotifyOrderStatus is a no-op for statuses without a customer notification.
func (n *AsyncNotifier) NotifyOrderStatus(ctx context.Context, o *models.Order, customer *models.Principal, status models.OrderStatus) {
	switch status {
	case models.OrderShipped, models.OrderDelivered, models.OrderCancelled:
	default:
		return
	}
	vars := JobVariables{Kind: KindOrderStatus, OrderID: o.ID, Status: string(status), CustomerID: customer.ID}
	n.enqueue(ctx, vars, func(ctx context.Context) {
		n.dispatcher.SendForOrderStatus(ctx, o, customer, status)
	})
}

func (n *AsyncNotifier) NotifyWelcome(ctx context.Context, customer *models.Principal) {
	n.enqueue(ctx, JobVariables{Kind: KindWelcome, CustomerID: customer.ID}, func(ctx context.Context) {
		n.dispatcher.SendWelcome(ctx, customer)
	})
}

func (n *AsyncNotifier) enqueue(ctx context.Context, vars JobVariables, inline func(context.Context)) {
	fields := map[string]interface{}{
		"kind":       vars.Kind,
		"orderId":    vars.OrderID,
		"customerId": vars.CustomerID,
	}

	if n.queue != nil {
		key, err := n.queue.StartProcess(ctx, n.processID, vars)
		if err == nil {
			metrics.NotificationsEnqueued.WithLabelValues("queued").Inc()
			fields["processInstanceKey"] = key
			n.logger.Debug("notification queued", fields)
			return
		}
		n.logger.WithError(err).Warn("failed to queue notification, sending inline", fields)
	}

	metrics.NotificationsEnqueued.WithLabelValues("inline").Inc()
	inline(ctx)
}
