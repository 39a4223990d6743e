package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

// recordingSender captures messages and marks the ledger like a real sender.
type recordingSender struct {
	channel    models.Channel
	configured bool
	ledger     *memoryLedger
	fail       string

	mu   sync.Mutex
	sent []Message
}

func (s *recordingSender) Channel() models.Channel { return s.channel }
func (s *recordingSender) Configured() bool        { return s.configured }

func (s *recordingSender) Send(ctx context.Context, msg Message) Result {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	if s.fail != "" {
		_ = s.ledger.MarkFailed(ctx, msg.NotificationID, s.fail)
		return Result{Success: false, Error: s.fail}
	}
	_ = s.ledger.MarkSent(ctx, msg.NotificationID, "ext-"+string(s.channel), time.Now())
	return Result{Success: true, ExternalID: "ext-" + string(s.channel)}
}

func (s *recordingSender) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	ledger     *memoryLedger
	sms        *recordingSender
	email      *recordingSender
	templates  staticTemplates
}

func newDispatcherFixture(t *testing.T, opts ...DispatcherOption) *dispatcherFixture {
	ledger := newMemoryLedger()
	templates := staticTemplates{}.
		add(&models.NotificationTemplate{NotificationType: models.TypeOrderConfirmation, Channel: models.ChannelSMS,
			Message: "Order {order_number} confirmed, total {order_total}", IsActive: true}).
		add(&models.NotificationTemplate{NotificationType: models.TypeOrderConfirmation, Channel: models.ChannelEmail,
			Subject: "Order {order_number}", Message: "Hi {customer_name}, {order_items} items on {order_date}", IsActive: true}).
		add(&models.NotificationTemplate{NotificationType: models.TypeLowStockAlert, Channel: models.ChannelEmail,
			Subject: "Low stock: {product_name}", Message: "{product_sku} has {stock_quantity} (threshold {low_stock_threshold})", IsActive: true}).
		add(&models.NotificationTemplate{NotificationType: models.TypeWelcome, Channel: models.ChannelSMS,
			Message: "Welcome {customer_name}, we'll text {customer_phone}", IsActive: true})

	sms := &recordingSender{channel: models.ChannelSMS, configured: true, ledger: ledger}
	email := &recordingSender{channel: models.ChannelEmail, configured: true, ledger: ledger}

	return &dispatcherFixture{
		dispatcher: NewDispatcher(templates, ledger, []Sender{sms, email}, logger.NewTestLogger(t), opts...),
		ledger:     ledger,
		sms:        sms,
		email:      email,
		templates:  templates,
	}
}

func bothChannelsCustomer() *models.Principal {
	return &models.Principal{
		ID: 42, Username: "jane", FullName: "Jane Doe",
		Email: "jane@example.com", Phone: "+254712345678",
		SMSEnabled: true, EmailEnabled: true, Role: models.RoleCustomer, IsActive: true,
	}
}

func testOrder() *models.Order {
	return &models.Order{
		ID:              9,
		OrderNumber:     "ORD-AB12CD34",
		TotalAmount:     decimal.RequireFromString("150"),
		ShippingAddress: "1 Moi Avenue",
		CreatedAt:       time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC),
		Items: []models.OrderItem{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
	}
}

// ==========================
// Channel selection
// ==========================

func TestDispatcher_Send_BothChannels(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	res := f.dispatcher.SendOrderConfirmation(ctx, testOrder(), bothChannelsCustomer())

	require.NotNil(t, res.SMS)
	require.NotNil(t, res.Email)
	assert.True(t, res.SMS.Success)
	assert.True(t, res.Email.Success)

	rows := f.ledger.all()
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, models.NotificationSent, r.Status)
		require.NotNil(t, r.OrderID)
		assert.Equal(t, int64(9), *r.OrderID)
		assert.Equal(t, int64(42), r.RecipientID)
	}

	smsRow := f.ledger.byChannel(models.ChannelSMS)
	assert.Equal(t, "Order ORD-AB12CD34 confirmed, total 150.00", smsRow.Message)
	assert.Equal(t, "+254712345678", smsRow.RecipientAddress)

	emailRow := f.ledger.byChannel(models.ChannelEmail)
	assert.Equal(t, "Order ORD-AB12CD34", emailRow.Subject)
	assert.Equal(t, "Hi Jane Doe, 3 items on 2024-03-05 14:07", emailRow.Message)
	assert.Equal(t, "jane@example.com", emailRow.RecipientAddress)
}

func TestDispatcher_Send_ChannelSelection(t *testing.T) {
	sms := models.ChannelSMS
	tests := []struct {
		name      string
		recipient *models.Principal
		channel   *models.Channel
		wantSMS   bool
		wantEmail bool
	}{
		{
			name:      "sms disabled",
			recipient: &models.Principal{ID: 1, Phone: "+254700000000", Email: "a@b.c", EmailEnabled: true},
			wantEmail: true,
		},
		{
			name:      "email enabled but address missing",
			recipient: &models.Principal{ID: 1, Phone: "+254700000000", SMSEnabled: true, EmailEnabled: true},
			wantSMS:   true,
		},
		{
			name:      "nothing enabled",
			recipient: &models.Principal{ID: 1, Phone: "+254700000000", Email: "a@b.c"},
		},
		{
			name:      "explicit channel ignores preferences",
			recipient: &models.Principal{ID: 1, Phone: "+254700000000", Email: "a@b.c"},
			channel:   &sms,
			wantSMS:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t)
			res := f.dispatcher.Send(context.Background(), tt.recipient, models.TypeOrderConfirmation,
				map[string]interface{}{"order_number": "ORD-1", "order_total": "1.00"}, tt.channel)

			assert.Equal(t, tt.wantSMS, res.SMS != nil)
			assert.Equal(t, tt.wantEmail, res.Email != nil)
			want := 0
			if tt.wantSMS {
				want++
			}
			if tt.wantEmail {
				want++
			}
			assert.Len(t, f.ledger.all(), want)
		})
	}
}

// ==========================
// Template handling
// ==========================

func TestDispatcher_Send_TemplateNotFoundCreatesNoRecord(t *testing.T) {
	f := newDispatcherFixture(t)

	// welcome has an sms template but no email template
	res := f.dispatcher.SendWelcome(context.Background(), bothChannelsCustomer())

	require.NotNil(t, res.Email)
	assert.Equal(t, Result{Success: false, Error: ResultTemplateNotFound}, *res.Email)
	assert.Empty(t, f.email.messages())

	require.NotNil(t, res.SMS)
	assert.True(t, res.SMS.Success)

	rows := f.ledger.all()
	require.Len(t, rows, 1)
	assert.Equal(t, models.ChannelSMS, rows[0].Channel)
}

func TestDispatcher_Send_RecipientFieldsOverrideContext(t *testing.T) {
	f := newDispatcherFixture(t)
	sms := models.ChannelSMS
	vars := map[string]interface{}{"customer_name": "Impostor", "customer_phone": "000"}

	f.dispatcher.Send(context.Background(), bothChannelsCustomer(), models.TypeWelcome, vars, &sms)

	row := f.ledger.byChannel(models.ChannelSMS)
	require.NotNil(t, row)
	assert.Equal(t, "Welcome Jane Doe, we'll text +254712345678", row.Message)
	assert.Equal(t, "Impostor", vars["customer_name"])
}

func TestDispatcher_Send_CustomerNameFallsBackToUsername(t *testing.T) {
	f := newDispatcherFixture(t)
	sms := models.ChannelSMS
	p := &models.Principal{ID: 3, Username: "jdoe", Phone: "+254700000001"}

	f.dispatcher.Send(context.Background(), p, models.TypeWelcome, nil, &sms)

	assert.Equal(t, "Welcome jdoe, we'll text +254700000001", f.ledger.byChannel(models.ChannelSMS).Message)
}

func TestDispatcher_Send_StrictMode(t *testing.T) {
	f := newDispatcherFixture(t, WithStrictTemplates(true))
	sms := models.ChannelSMS

	res := f.dispatcher.Send(context.Background(), bothChannelsCustomer(), models.TypeOrderConfirmation,
		map[string]interface{}{"order_number": "ORD-1"}, &sms)

	require.NotNil(t, res.SMS)
	assert.False(t, res.SMS.Success)
	assert.Contains(t, res.SMS.Error, "order_total")
	assert.Empty(t, f.ledger.all())
	assert.Empty(t, f.sms.messages())
}

func TestDispatcher_Send_BestEffortLeavesPlaceholder(t *testing.T) {
	f := newDispatcherFixture(t)
	sms := models.ChannelSMS

	res := f.dispatcher.Send(context.Background(), bothChannelsCustomer(), models.TypeOrderConfirmation,
		map[string]interface{}{"order_number": "ORD-1"}, &sms)

	require.NotNil(t, res.SMS)
	assert.True(t, res.SMS.Success)
	assert.Equal(t, "Order ORD-1 confirmed, total {order_total}", f.ledger.byChannel(models.ChannelSMS).Message)
}

// ==========================
// Partial failure
// ==========================

func TestDispatcher_Send_PartialFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	f.sms.fail = "InsufficientBalance"

	res := f.dispatcher.SendOrderConfirmation(context.Background(), testOrder(), bothChannelsCustomer())

	assert.False(t, res.SMS.Success)
	assert.True(t, res.Email.Success)
	assert.True(t, res.AnySuccess())
	assert.Equal(t, models.NotificationFailed, f.ledger.byChannel(models.ChannelSMS).Status)
	assert.Equal(t, "InsufficientBalance", f.ledger.byChannel(models.ChannelSMS).ErrorMessage)
	assert.Equal(t, models.NotificationSent, f.ledger.byChannel(models.ChannelEmail).Status)
}

type failingStore struct{}

func (failingStore) Create(context.Context, *models.Notification) error {
	return errors.New("db down")
}

func TestDispatcher_Send_LedgerFailureSkipsSend(t *testing.T) {
	f := newDispatcherFixture(t)
	d := NewDispatcher(f.templates, failingStore{}, []Sender{f.sms, f.email}, logger.NewTestLogger(t))

	res := d.SendOrderConfirmation(context.Background(), testOrder(), bothChannelsCustomer())

	assert.False(t, res.SMS.Success)
	assert.False(t, res.Email.Success)
	assert.Empty(t, f.sms.messages())
	assert.Empty(t, f.email.messages())
}

// ==========================
// Wrappers
// ==========================

func TestDispatcher_SendLowStockAlert(t *testing.T) {
	f := newDispatcherFixture(t)
	product := &models.Product{ID: 5, Name: "Kettle", SKU: "KT-1", StockQuantity: 2, LowStockThreshold: 5}
	admins := []models.Principal{
		{ID: 100, Username: "ops", Email: "ops@example.com", Phone: "+254700000002", SMSEnabled: true, EmailEnabled: true, Role: models.RoleStaff},
		{ID: 101, Username: "mgr", Email: "mgr@example.com", EmailEnabled: true, Role: models.RoleStaff},
	}

	results := f.dispatcher.SendLowStockAlert(context.Background(), product, admins)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Nil(t, r.SMS)
		require.NotNil(t, r.Email)
		assert.True(t, r.Email.Success)
	}
	assert.Empty(t, f.sms.messages())

	msgs := f.email.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Low stock: Kettle", msgs[0].Subject)
	assert.Equal(t, "KT-1 has 2 (threshold 5)", msgs[0].Body)
}

func TestDispatcher_SendForOrderStatus(t *testing.T) {
	f := newDispatcherFixture(t)

	_, ok := f.dispatcher.SendForOrderStatus(context.Background(), testOrder(), bothChannelsCustomer(), models.OrderProcessing)
	assert.False(t, ok)

	res, ok := f.dispatcher.SendForOrderStatus(context.Background(), testOrder(), bothChannelsCustomer(), models.OrderShipped)
	assert.True(t, ok)
	// no shipped templates are seeded
	assert.Equal(t, ResultTemplateNotFound, res.SMS.Error)
	assert.Equal(t, ResultTemplateNotFound, res.Email.Error)
	assert.Empty(t, f.ledger.all())
}
