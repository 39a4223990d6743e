// internal/models/notification.go
package models

import "time"

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationFailed    NotificationStatus = "failed"
	NotificationDelivered NotificationStatus = "delivered"
)

// NotificationType is the business event a notification is about. It is a
// free-form tag; the constants are the types the services send themselves.
type NotificationType string

const (
	TypeOrderConfirmation NotificationType = "order_confirmation"
	TypeOrderShipped      NotificationType = "order_shipped"
	TypeOrderDelivered    NotificationType = "order_delivered"
	TypeOrderCancelled    NotificationType = "order_cancelled"
	TypePaymentReceived   NotificationType = "payment_received"
	TypeLowStockAlert     NotificationType = "low_stock_alert"
	TypeWelcome           NotificationType = "welcome"
	TypePasswordReset     NotificationType = "password_reset"
)

// NotificationTemplate is unique per (NotificationType, Channel).
type NotificationTemplate struct {
	ID               int64            `json:"id"`
	Name             string           `json:"name"`
	NotificationType NotificationType `json:"notificationType"`
	Channel          Channel          `json:"channel"`
	Subject          string           `json:"subject"`
	Message          string           `json:"message"`
	IsActive         bool             `json:"isActive"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Notification is one ledger row: a single attempt to reach one recipient on
// one channel. Subject and Message hold the rendered text.
type Notification struct {
	ID               int64              `json:"id"`
	RecipientID      int64              `json:"recipientId"`
	Channel          Channel            `json:"channel"`
	NotificationType NotificationType   `json:"notificationType"`
	Subject          string             `json:"subject,omitempty"`
	Message          string             `json:"message"`
	RecipientAddress string             `json:"recipientAddress"`
	Status           NotificationStatus `json:"status"`
	OrderID          *int64             `json:"orderId,omitempty"`
	ExternalID       string             `json:"externalId,omitempty"`
	ErrorMessage     string             `json:"errorMessage,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	SentAt           *time.Time         `json:"sentAt,omitempty"`
	DeliveredAt      *time.Time         `json:"deliveredAt,omitempty"`
}

// NotificationStats counts ledger rows over a created_at range. Delivered
// rows count as sent.
type NotificationStats struct {
	Total       int                      `json:"total"`
	Sent        int                      `json:"sent"`
	Failed      int                      `json:"failed"`
	Pending     int                      `json:"pending"`
	SMSSent     int                      `json:"smsSent"`
	EmailSent   int                      `json:"emailSent"`
	SuccessRate float64                  `json:"successRate"`
	ByType      map[NotificationType]int `json:"byType"`
}

// NotificationPreferences are the per-account channel opt-ins.
type NotificationPreferences struct {
	SMSEnabled   bool   `json:"smsEnabled"`
	EmailEnabled bool   `json:"emailEnabled"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
}
