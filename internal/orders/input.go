package orders

import (
	"fmt"
	"strings"

	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/models"

	"github.com/shopspring/decimal"
)

type LineInput struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type CreateOrderInput struct {
	Items           []LineInput     `json:"items"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	ShippingAmount  decimal.Decimal `json:"shippingAmount"`
	ShippingAddress string          `json:"shippingAddress"`
	ShippingPhone   string          `json:"shippingPhone"`
	CustomerNotes   string          `json:"customerNotes"`
}

func (in CreateOrderInput) Validate() error {
	if len(in.Items) == 0 {
		return apperrors.NewValidationError("order must contain at least one item")
	}
	seen := make(map[int64]struct{}, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity < 1 {
			return apperrors.NewValidationError(fmt.Sprintf("quantity for product %d must be at least 1", it.ProductID))
		}
		if _, dup := seen[it.ProductID]; dup {
			return apperrors.NewValidationError(fmt.Sprintf("product %d appears more than once", it.ProductID))
		}
		seen[it.ProductID] = struct{}{}
	}
	if in.TaxAmount.IsNegative() || in.ShippingAmount.IsNegative() {
		return apperrors.NewValidationError("tax and shipping amounts cannot be negative")
	}
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return apperrors.NewValidationError("shipping address is required")
	}
	return nil
}

func (in CreateOrderInput) productIDs() []int64 {
	ids := make([]int64, 0, len(in.Items))
	for _, it := range in.Items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

// UpdateOrderInput is a partial staff edit; nil fields are left unchanged.
type UpdateOrderInput struct {
	Status          *models.OrderStatus   `json:"status,omitempty"`
	PaymentStatus   *models.PaymentStatus `json:"paymentStatus,omitempty"`
	TaxAmount       *decimal.Decimal      `json:"taxAmount,omitempty"`
	ShippingAmount  *decimal.Decimal      `json:"shippingAmount,omitempty"`
	ShippingAddress *string               `json:"shippingAddress,omitempty"`
	ShippingPhone   *string               `json:"shippingPhone,omitempty"`
	AdminNotes      *string               `json:"adminNotes,omitempty"`
	// Notes is appended to the history entry of a status change.
	Notes string `json:"notes,omitempty"`
}

func (in UpdateOrderInput) Validate() error {
	if in.Status != nil && !in.Status.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown order status: %s", *in.Status))
	}
	if in.PaymentStatus != nil && !in.PaymentStatus.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown payment status: %s", *in.PaymentStatus))
	}
	if (in.TaxAmount != nil && in.TaxAmount.IsNegative()) || (in.ShippingAmount != nil && in.ShippingAmount.IsNegative()) {
		return apperrors.NewValidationError("tax and shipping amounts cannot be negative")
	}
	return nil
}

func (in UpdateOrderInput) touchesMoreThanNotes() bool {
	return in.Status != nil || in.PaymentStatus != nil || in.TaxAmount != nil ||
		in.ShippingAmount != nil || in.ShippingAddress != nil || in.ShippingPhone != nil
}

// apply copies every non-status field onto o.
func (in UpdateOrderInput) apply(o *models.Order) {
	if in.PaymentStatus != nil {
		o.PaymentStatus = *in.PaymentStatus
	}
	if in.TaxAmount != nil {
		o.TaxAmount = *in.TaxAmount
	}
	if in.ShippingAmount != nil {
		o.ShippingAmount = *in.ShippingAmount
	}
	if in.ShippingAddress != nil {
		o.ShippingAddress = *in.ShippingAddress
	}
	if in.ShippingPhone != nil {
		o.ShippingPhone = *in.ShippingPhone
	}
	if in.AdminNotes != nil {
		o.AdminNotes = *in.AdminNotes
	}
}
