package sendordernotification

import "storefront-workers/internal/notification"

const TaskType = "send-order-notification"

// Input mirrors notification.JobVariables as written by the async notifier.
type Input struct {
	Kind       string `json:"kind"`
	OrderID    int64  `json:"orderId,omitempty"`
	Status     string `json:"status,omitempty"`
	CustomerID int64  `json:"customerId"`
}

type Output struct {
	Kind        string               `json:"kind"`
	OrderNumber string               `json:"orderNumber,omitempty"`
	Status      string               `json:"status"`
	SMS         *notification.Result `json:"sms,omitempty"`
	Email       *notification.Result `json:"email,omitempty"`
}

// Output statuses
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

const inputSchema = `{
	"type": "object",
	"required": ["kind", "customerId"],
	"properties": {
		"kind": {"type": "string", "enum": ["order_confirmation", "order_status", "welcome"]},
		"customerId": {"type": "integer", "minimum": 1},
		"orderId": {"type": "integer", "minimum": 1},
		"status": {"type": "string", "minLength": 1}
	}
}`
