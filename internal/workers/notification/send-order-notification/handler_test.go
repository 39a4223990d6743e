package sendordernotification

import (
	"context"
	"testing"
	"time"

	"storefront-workers/internal/common/config"
	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/models"
	"storefront-workers/internal/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type fakeOrders map[int64]*models.Order

func (f fakeOrders) GetByID(_ context.Context, id int64) (*models.Order, error) {
	if o, ok := f[id]; ok {
		return o, nil
	}
	return nil, apperrors.NewOrderNotFoundError("")
}

type fakeCustomers map[int64]*models.Principal

func (f fakeCustomers) GetByID(_ context.Context, id int64) (*models.Principal, error) {
	if p, ok := f[id]; ok {
		return p, nil
	}
	return nil, apperrors.NewAuthenticationError("unknown account")
}

type MockDispatcher struct {
	calls  []string
	status models.OrderStatus
	result notification.DispatchResult
}

func (m *MockDispatcher) SendOrderConfirmation(_ context.Context, o *models.Order, _ *models.Principal) notification.DispatchResult {
	m.calls = append(m.calls, "confirmation:"+o.OrderNumber)
	return m.result
}

func (m *MockDispatcher) SendForOrderStatus(_ context.Context, o *models.Order, _ *models.Principal, status models.OrderStatus) (notification.DispatchResult, bool) {
	m.calls = append(m.calls, "status:"+o.OrderNumber)
	m.status = status
	switch status {
	case models.OrderShipped, models.OrderDelivered, models.OrderCancelled:
		return m.result, true
	}
	return notification.DispatchResult{}, false
}

func (m *MockDispatcher) SendWelcome(_ context.Context, c *models.Principal) notification.DispatchResult {
	m.calls = append(m.calls, "welcome:"+c.Username)
	return m.result
}

// ==========================
// Test Helper Functions
// ==========================

func newTestHandler(t *testing.T, d *MockDispatcher) *Handler {
	orders := fakeOrders{
		10: {ID: 10, OrderNumber: "ORD-AB12CD34", CustomerID: 7},
		11: {ID: 11, OrderNumber: "ORD-FFFF0000", CustomerID: 8},
	}
	customers := fakeCustomers{
		7: {ID: 7, Username: "wanjiru", Email: "w@example.com", EmailEnabled: true},
	}
	return NewHandler(&Config{Timeout: 5 * time.Second}, orders, customers, d, logger.NewTestLogger(t))
}

func sentEmail() notification.DispatchResult {
	return notification.DispatchResult{Email: &notification.Result{Success: true, ExternalID: "msg-1"}}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name       string
		input      *Input
		result     notification.DispatchResult
		wantStatus string
		wantCall   string
		wantOrder  string
	}{
		{
			name:       "order confirmation",
			input:      &Input{Kind: notification.KindOrderConfirmation, OrderID: 10, CustomerID: 7},
			result:     sentEmail(),
			wantStatus: StatusSent,
			wantCall:   "confirmation:ORD-AB12CD34",
			wantOrder:  "ORD-AB12CD34",
		},
		{
			name:       "shipped status",
			input:      &Input{Kind: notification.KindOrderStatus, OrderID: 10, Status: "shipped", CustomerID: 7},
			result:     sentEmail(),
			wantStatus: StatusSent,
			wantCall:   "status:ORD-AB12CD34",
			wantOrder:  "ORD-AB12CD34",
		},
		{
			name:       "status without template is skipped",
			input:      &Input{Kind: notification.KindOrderStatus, OrderID: 10, Status: "processing", CustomerID: 7},
			result:     sentEmail(),
			wantStatus: StatusSkipped,
			wantCall:   "status:ORD-AB12CD34",
			wantOrder:  "ORD-AB12CD34",
		},
		{
			name:       "welcome",
			input:      &Input{Kind: notification.KindWelcome, CustomerID: 7},
			result:     sentEmail(),
			wantStatus: StatusSent,
			wantCall:   "welcome:wanjiru",
		},
		{
			name:       "every channel failed",
			input:      &Input{Kind: notification.KindWelcome, CustomerID: 7},
			result:     notification.DispatchResult{Email: &notification.Result{Error: "Email service not configured"}},
			wantStatus: StatusFailed,
			wantCall:   "welcome:wanjiru",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &MockDispatcher{result: tt.result}
			h := newTestHandler(t, d)

			out, err := h.Execute(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.input.Kind, out.Kind)
			assert.Equal(t, tt.wantOrder, out.OrderNumber)
			assert.Equal(t, []string{tt.wantCall}, d.calls)
		})
	}
}

func TestHandler_Execute_CopiesChannelResults(t *testing.T) {
	d := &MockDispatcher{result: notification.DispatchResult{
		SMS:   &notification.Result{Error: "SMS service not configured"},
		Email: &notification.Result{Success: true, ExternalID: "msg-9"},
	}}
	h := newTestHandler(t, d)

	out, err := h.Execute(context.Background(), &Input{Kind: notification.KindOrderStatus, OrderID: 10, Status: "delivered", CustomerID: 7})
	require.NoError(t, err)
	assert.Equal(t, models.OrderDelivered, d.status)
	assert.Equal(t, "msg-9", out.Email.ExternalID)
	assert.False(t, out.SMS.Success)
	assert.Equal(t, StatusSent, out.Status)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   *Input
		wantErr error
	}{
		{"unknown kind", &Input{Kind: "sms_blast", CustomerID: 7}, apperrors.ErrValidation},
		{"unknown status", &Input{Kind: notification.KindOrderStatus, OrderID: 10, Status: "lost", CustomerID: 7}, apperrors.ErrValidation},
		{"missing order id", &Input{Kind: notification.KindOrderConfirmation, CustomerID: 7}, apperrors.ErrValidation},
		{"order of another customer", &Input{Kind: notification.KindOrderConfirmation, OrderID: 11, CustomerID: 7}, apperrors.ErrValidation},
		{"order not found", &Input{Kind: notification.KindOrderConfirmation, OrderID: 99, CustomerID: 7}, apperrors.ErrOrderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &MockDispatcher{}
			h := newTestHandler(t, d)

			_, err := h.Execute(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, d.calls)
		})
	}
}

func TestHandler_Execute_UnknownCustomer(t *testing.T) {
	h := newTestHandler(t, &MockDispatcher{})

	_, err := h.Execute(context.Background(), &Input{Kind: notification.KindWelcome, CustomerID: 404})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthenticated))
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name      string
		variables string
		wantErr   bool
		want      *Input
	}{
		{
			name:      "valid status job",
			variables: `{"kind":"order_status","orderId":10,"status":"shipped","customerId":7}`,
			want:      &Input{Kind: "order_status", OrderID: 10, Status: "shipped", CustomerID: 7},
		},
		{
			name:      "extra process variables are ignored",
			variables: `{"kind":"welcome","customerId":7,"correlationId":"abc"}`,
			want:      &Input{Kind: "welcome", CustomerID: 7},
		},
		{name: "not json", variables: `kind=welcome`, wantErr: true},
		{name: "missing customer", variables: `{"kind":"welcome"}`, wantErr: true},
		{name: "kind outside enum", variables: `{"kind":"fax","customerId":7}`, wantErr: true},
		{name: "fractional order id", variables: `{"kind":"order_status","orderId":1.5,"customerId":7}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInput(tt.variables)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 45*time.Second, LoadConfig(config.WorkerConfig{Timeout: 45000}).Timeout)
	assert.Equal(t, 30*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
}

func TestValidationErrorsAreNotRetried(t *testing.T) {
	_, err := parseInput(`{"kind":"fax","customerId":7}`)
	bpmn := apperrors.ConvertToBPMNError(apperrors.AsStandard(err))
	assert.Zero(t, bpmn.Retries)
	assert.Equal(t, string(apperrors.ErrCodeValidationFailed), bpmn.Code)
}
