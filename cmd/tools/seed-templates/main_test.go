package main

import (
	"regexp"
	"testing"

	"storefront-workers/internal/models"
	"storefront-workers/internal/notification"

	"github.com/stretchr/testify/assert"
)

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

func TestDefaultTemplates(t *testing.T) {
	known := map[string]bool{
		notification.KeyCustomerName:      true,
		notification.KeyCustomerEmail:     true,
		notification.KeyCustomerPhone:     true,
		notification.KeyOrderID:           true,
		notification.KeyOrderNumber:       true,
		notification.KeyOrderTotal:        true,
		notification.KeyOrderItems:        true,
		notification.KeyOrderDate:         true,
		notification.KeyShippingAddress:   true,
		notification.KeyProductName:       true,
		notification.KeyProductSKU:        true,
		notification.KeyStockQuantity:     true,
		notification.KeyLowStockThreshold: true,
	}

	sent := map[models.NotificationType]bool{
		models.TypeOrderConfirmation: true,
		models.TypeOrderShipped:      true,
		models.TypeOrderDelivered:    true,
		models.TypeOrderCancelled:    true,
		models.TypeLowStockAlert:     true,
		models.TypeWelcome:           true,
	}

	seen := map[string]bool{}
	for _, tm := range defaultTemplates() {
		assert.True(t, sent[tm.NotificationType], tm.Name)
		assert.True(t, tm.Channel.Valid(), tm.Name)
		assert.False(t, seen[tm.Name], "duplicate %s", tm.Name)
		seen[tm.Name] = true

		for _, m := range placeholder.FindAllStringSubmatch(tm.Subject+tm.Message, -1) {
			assert.True(t, known[m[1]], "%s uses unknown placeholder %s", tm.Name, m[1])
		}
	}
}
