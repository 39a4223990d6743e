package notification

import (
	"context"
	"sync"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/common/observability"
	"storefront-workers/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Context keys filled in by the dispatcher and its wrappers.
const (
	KeyCustomerName      = "customer_name"
	KeyCustomerEmail     = "customer_email"
	KeyCustomerPhone     = "customer_phone"
	KeyOrderID           = "order_id"
	KeyOrderNumber       = "order_number"
	KeyOrderTotal        = "order_total"
	KeyOrderItems        = "order_items"
	KeyOrderDate         = "order_date"
	KeyShippingAddress   = "shipping_address"
	KeyProductName       = "product_name"
	KeyProductSKU        = "product_sku"
	KeyStockQuantity     = "stock_quantity"
	KeyLowStockThreshold = "low_stock_threshold"
)

const orderDateLayout = "2006-01-02 15:04"

// ResultTemplateNotFound is the error text reported for a channel whose
// template is missing or inactive.
const ResultTemplateNotFound = "Template not found"

// TemplateLookup resolves the active template for a (type, channel) pair.
type TemplateLookup interface {
	Get(ctx context.Context, notificationType models.NotificationType, channel models.Channel) (*models.NotificationTemplate, error)
}

// NotificationStore records the pending ledger row before a send.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// DispatchResult holds one entry per attempted channel; nil means the
// channel was not selected.
type DispatchResult struct {
	SMS   *Result `json:"sms"`
	Email *Result `json:"email"`
}

// Get returns the result for channel.
func (r DispatchResult) Get(channel models.Channel) *Result {
	switch channel {
	case models.ChannelSMS:
		return r.SMS
	case models.ChannelEmail:
		return r.Email
	}
	return nil
}

// AnySuccess reports whether at least one channel was accepted.
func (r DispatchResult) AnySuccess() bool {
	return (r.SMS != nil && r.SMS.Success) || (r.Email != nil && r.Email.Success)
}

type DispatcherOption func(*Dispatcher)

// WithStrictTemplates makes rendering fail when a placeholder has no value.
func WithStrictTemplates(strict bool) DispatcherOption {
	return func(d *Dispatcher) { d.strict = strict }
}

func WithObservability(obs *observability.Observability) DispatcherOption {
	return func(d *Dispatcher) { d.obs = obs }
}

// Dispatcher renders a template per channel, records a ledger row and hands
// the message to the channel's sender.
type Dispatcher struct {
	templates TemplateLookup
	store     NotificationStore
	senders   map[models.Channel]Sender
	strict    bool
	obs       *observability.Observability
	logger    logger.Logger
}

func NewDispatcher(templates TemplateLookup, store NotificationStore, senders []Sender, log logger.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		templates: templates,
		store:     store,
		senders:   make(map[models.Channel]Sender, len(senders)),
		logger:    log.Named("dispatcher"),
	}
	for _, s := range senders {
		d.senders[s.Channel()] = s
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Sender returns the sender registered for channel.
func (d *Dispatcher) Sender(channel models.Channel) (Sender, bool) {
	s, ok := d.senders[channel]
	return s, ok
}

// Send delivers notificationType to recipient. When channel is nil every
// channel the recipient has enabled and has an address for is used. vars is
// not modified; recipient fields override caller values for the customer_*
// keys.
func (d *Dispatcher) Send(ctx context.Context, recipient *models.Principal, notificationType models.NotificationType, vars map[string]interface{}, channel *models.Channel) DispatchResult {
	ctx, span := observability.Tracer().Start(ctx, "notification.dispatch", trace.WithAttributes(
		attribute.String("notification.type", string(notificationType)),
		attribute.Int64("recipient.id", recipient.ID),
	))
	defer span.End()

	data := make(map[string]interface{}, len(vars)+3)
	for k, v := range vars {
		data[k] = v
	}
	data[KeyCustomerName] = recipient.DisplayName()
	data[KeyCustomerEmail] = recipient.Email
	data[KeyCustomerPhone] = recipient.Phone

	channels := selectChannels(recipient, channel)

	var (
		result DispatchResult
		mu     sync.Mutex
		wg     sync.WaitGroup
	)
	for _, ch := range channels {
		wg.Add(1)
		go func(ch models.Channel) {
			defer wg.Done()
			res := d.sendChannel(ctx, recipient, notificationType, data, ch)
			d.obs.RecordDispatch(ctx, string(ch), res.Success)

			mu.Lock()
			defer mu.Unlock()
			switch ch {
			case models.ChannelSMS:
				result.SMS = &res
			case models.ChannelEmail:
				result.Email = &res
			}
		}(ch)
	}
	wg.Wait()

	return result
}

func selectChannels(recipient *models.Principal, channel *models.Channel) []models.Channel {
	if channel != nil {
		return []models.Channel{*channel}
	}
	var channels []models.Channel
	if recipient.SMSEnabled && recipient.Phone != "" {
		channels = append(channels, models.ChannelSMS)
	}
	if recipient.EmailEnabled && recipient.Email != "" {
		channels = append(channels, models.ChannelEmail)
	}
	return channels
}

func (d *Dispatcher) sendChannel(ctx context.Context, recipient *models.Principal, notificationType models.NotificationType, data map[string]interface{}, ch models.Channel) Result {
	fields := map[string]interface{}{
		"type":        notificationType,
		"channel":     ch,
		"recipientId": recipient.ID,
	}

	tmpl, err := d.templates.Get(ctx, notificationType, ch)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeTemplateNotFound) {
			d.logger.Warn("no template for notification", fields)
			return Result{Success: false, Error: ResultTemplateNotFound}
		}
		d.logger.WithError(err).Error("template lookup failed", fields)
		return Result{Success: false, Error: err.Error()}
	}

	var rendered Rendered
	if d.strict {
		rendered, err = RenderStrict(tmpl, data)
		if err != nil {
			d.logger.WithError(err).Warn("template render failed", fields)
			return Result{Success: false, Error: err.Error()}
		}
	} else {
		rendered = Render(tmpl, data)
	}

	sender, ok := d.senders[ch]
	if !ok {
		return Result{Success: false, Error: apperrors.NewProviderNotConfiguredError(string(ch)).Message}
	}

	address := recipient.Email
	if ch == models.ChannelSMS {
		address = recipient.Phone
	}

	record := &models.Notification{
		RecipientID:      recipient.ID,
		Channel:          ch,
		NotificationType: notificationType,
		Subject:          rendered.Subject,
		Message:          rendered.Body,
		RecipientAddress: address,
		OrderID:          orderRef(data),
	}
	if err := d.store.Create(ctx, record); err != nil {
		d.logger.WithError(err).Error("failed to create notification record", fields)
		return Result{Success: false, Error: err.Error()}
	}

	res := sender.Send(ctx, Message{
		NotificationID: record.ID,
		Type:           notificationType,
		To:             address,
		Subject:        rendered.Subject,
		Body:           rendered.Body,
	})
	if !res.Success {
		fields["notificationId"] = record.ID
		fields["error"] = res.Error
		d.logger.Warn("notification send failed", fields)
	}
	return res
}

func orderRef(data map[string]interface{}) *int64 {
	switch v := data[KeyOrderID].(type) {
	case int64:
		if v > 0 {
			return &v
		}
	case int:
		if v > 0 {
			id := int64(v)
			return &id
		}
	}
	return nil
}

// ==========================
// Convenience wrappers
// ==========================

func orderVars(o *models.Order) map[string]interface{} {
	return map[string]interface{}{
		KeyOrderID:         o.ID,
		KeyOrderNumber:     o.OrderNumber,
		KeyOrderTotal:      o.TotalAmount.StringFixed(2),
		KeyOrderItems:      o.ItemCount(),
		KeyOrderDate:       o.CreatedAt.Format(orderDateLayout),
		KeyShippingAddress: o.ShippingAddress,
	}
}

func (d *Dispatcher) SendOrderConfirmation(ctx context.Context, o *models.Order, customer *models.Principal) DispatchResult {
	return d.Send(ctx, customer, models.TypeOrderConfirmation, orderVars(o), nil)
}

func (d *Dispatcher) SendOrderShipped(ctx context.Context, o *models.Order, customer *models.Principal) DispatchResult {
	return d.Send(ctx, customer, models.TypeOrderShipped, orderVars(o), nil)
}

func (d *Dispatcher) SendOrderDelivered(ctx context.Context, o *models.Order, customer *models.Principal) DispatchResult {
	return d.Send(ctx, customer, models.TypeOrderDelivered, orderVars(o), nil)
}

func (d *Dispatcher) SendOrderCancelled(ctx context.Context, o *models.Order, customer *models.Principal) DispatchResult {
	return d.Send(ctx, customer, models.TypeOrderCancelled, orderVars(o), nil)
}

func (d *Dispatcher) SendWelcome(ctx context.Context, customer *models.Principal) DispatchResult {
	return d.Send(ctx, customer, models.TypeWelcome, nil, nil)
}

// SendLowStockAlert emails every admin about product, one dispatch each.
func (d *Dispatcher) SendLowStockAlert(ctx context.Context, p *models.Product, admins []models.Principal) []DispatchResult {
	vars := map[string]interface{}{
		KeyProductName:       p.Name,
		KeyProductSKU:        p.SKU,
		KeyStockQuantity:     p.StockQuantity,
		KeyLowStockThreshold: p.LowStockThreshold,
	}
	email := models.ChannelEmail

	results := make([]DispatchResult, 0, len(admins))
	for i := range admins {
		results = append(results, d.Send(ctx, &admins[i], models.TypeLowStockAlert, vars, &email))
	}
	return results
}

// SendForOrderStatus picks the wrapper matching status. It reports false
// when the status has no customer notification.
func (d *Dispatcher) SendForOrderStatus(ctx context.Context, o *models.Order, customer *models.Principal, status models.OrderStatus) (DispatchResult, bool) {
	switch status {
	case models.OrderShipped:
		return d.SendOrderShipped(ctx, o, customer), true
	case models.OrderDelivered:
		return d.SendOrderDelivered(ctx, o, customer), true
	case models.OrderCancelled:
		return d.SendOrderCancelled(ctx, o, customer), true
	}
	return DispatchResult{}, false
}

