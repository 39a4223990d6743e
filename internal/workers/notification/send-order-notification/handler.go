// Package sendordernotification delivers notifications queued by the order
// service as "send-order-notification" jobs.
package sendordernotification

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/common/metrics"
	"storefront-workers/internal/common/validation"
	"storefront-workers/internal/models"
	"storefront-workers/internal/notification"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

var schema = validation.MustCompile(TaskType, inputSchema)

type OrderLoader interface {
	GetByID(ctx context.Context, id int64) (*models.Order, error)
}

type CustomerLoader interface {
	GetByID(ctx context.Context, id int64) (*models.Principal, error)
}

// Dispatcher is the subset of notification.Dispatcher this worker calls.
type Dispatcher interface {
	SendOrderConfirmation(ctx context.Context, o *models.Order, customer *models.Principal) notification.DispatchResult
	SendForOrderStatus(ctx context.Context, o *models.Order, customer *models.Principal, status models.OrderStatus) (notification.DispatchResult, bool)
	SendWelcome(ctx context.Context, customer *models.Principal) notification.DispatchResult
}

type Handler struct {
	config       *Config
	orders       OrderLoader
	customers    CustomerLoader
	dispatcher   Dispatcher
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, orders OrderLoader, customers CustomerLoader, dispatcher Dispatcher, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		orders:       orders,
		customers:    customers,
		dispatcher:   dispatcher,
		errorHandler: apperrors.NewErrorHandler(l),
		logger:       l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.Key,
		"processInstanceKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput(job.Variables)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

// fail and completeJob use a fresh context so an expired job timeout still
// reports back to the broker.
func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.AsStandard(err).Code)).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, err)
}

func parseInput(variables string) (*Input, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &raw); err != nil {
		return nil, apperrors.NewValidationError("job variables are not a JSON object")
	}
	if res := schema.Validate(raw); !res.Valid {
		e := apperrors.NewValidationError("invalid job variables")
		e.Details = res.Summary()
		return nil, e
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("decode job variables: %v", err))
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	customer, err := h.customers.GetByID(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}

	out := &Output{Kind: input.Kind}
	var result notification.DispatchResult

	switch input.Kind {
	case notification.KindWelcome:
		result = h.dispatcher.SendWelcome(ctx, customer)

	case notification.KindOrderConfirmation:
		o, err := h.loadOrder(ctx, input, customer)
		if err != nil {
			return nil, err
		}
		out.OrderNumber = o.OrderNumber
		result = h.dispatcher.SendOrderConfirmation(ctx, o, customer)

	case notification.KindOrderStatus:
		status := models.OrderStatus(input.Status)
		if !status.Valid() {
			return nil, apperrors.NewValidationError(fmt.Sprintf("unknown order status %q", input.Status))
		}
		o, err := h.loadOrder(ctx, input, customer)
		if err != nil {
			return nil, err
		}
		out.OrderNumber = o.OrderNumber
		var ok bool
		result, ok = h.dispatcher.SendForOrderStatus(ctx, o, customer, status)
		if !ok {
			out.Status = StatusSkipped
			return out, nil
		}

	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown notification kind %q", input.Kind))
	}

	out.SMS, out.Email = result.SMS, result.Email
	out.Status = StatusFailed
	if result.AnySuccess() {
		out.Status = StatusSent
	}

	h.logger.Info("notification dispatched", map[string]interface{}{
		"kind":        out.Kind,
		"customerId":  customer.ID,
		"orderNumber": out.OrderNumber,
		"status":      out.Status,
	})
	return out, nil
}

// loadOrder fetches the referenced order and checks it belongs to customer.
func (h *Handler) loadOrder(ctx context.Context, input *Input, customer *models.Principal) (*models.Order, error) {
	if input.OrderID == 0 {
		return nil, apperrors.NewValidationError("orderId is required for " + input.Kind)
	}
	o, err := h.orders.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customer.ID {
		return nil, apperrors.NewValidationError(fmt.Sprintf("order %s does not belong to customer %d", o.OrderNumber, customer.ID))
	}
	return o, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.WithError(err).Error("failed to create complete job command", nil)
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.WithError(err).Error("failed to send complete job command", nil)
	}
}
