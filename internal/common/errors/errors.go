// Package errors provides the structured error taxonomy shared by services,
// HTTP handlers and Zeebe job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode is a stable, machine readable error identifier.
type ErrorCode string

// Notification errors
const (
	ErrCodeTemplateNotFound       ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateRenderFailed   ErrorCode = "TEMPLATE_RENDER_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeProviderNotConfigured  ErrorCode = "PROVIDER_NOT_CONFIGURED"
	ErrCodeNotificationEnqueue    ErrorCode = "NOTIFICATION_ENQUEUE_FAILED"
)

// Order and inventory errors
const (
	ErrCodeOrderNotFound           ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeProductNotFound         ErrorCode = "PRODUCT_NOT_FOUND"
	ErrCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodeInsufficientStock       ErrorCode = "INSUFFICIENT_STOCK"
	ErrCodeItemNotInCart           ErrorCode = "ITEM_NOT_IN_CART"
)

// Request errors
const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeUnauthenticated  ErrorCode = "AUTHENTICATION_ERROR"
)

// Infrastructure errors
const (
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"
	ErrCodeCacheFailed              ErrorCode = "CACHE_OPERATION_FAILED"
	ErrCodeSearchIndexFailed        ErrorCode = "SEARCH_INDEX_FAILED"
	ErrCodeExternalService          ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                  ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

// Is matches on code so callers can compare against the sentinel values below.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrTemplateNotFound  = &StandardError{Code: ErrCodeTemplateNotFound}
	ErrOrderNotFound     = &StandardError{Code: ErrCodeOrderNotFound}
	ErrProductNotFound   = &StandardError{Code: ErrCodeProductNotFound}
	ErrInvalidTransition = &StandardError{Code: ErrCodeInvalidStatusTransition}
	ErrInsufficientStock = &StandardError{Code: ErrCodeInsufficientStock}
	ErrValidation        = &StandardError{Code: ErrCodeValidationFailed}
	ErrForbidden         = &StandardError{Code: ErrCodeForbidden}
	ErrItemNotInCart     = &StandardError{Code: ErrCodeItemNotInCart}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template lookup error.
func NewTemplateNotFoundError(notificationType, channel string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "Template not found",
		fmt.Sprintf("type: %s, channel: %s", notificationType, channel), false)
}

// NewTemplateRenderFailedError reports placeholders left unresolved in strict mode.
func NewTemplateRenderFailedError(missing []string) *StandardError {
	return newError(ErrCodeTemplateRenderFailed, "Template has unresolved placeholders",
		strings.Join(missing, ", "), false)
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	e := newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true)
	e.cause = err
	return e
}

// NewProviderNotConfiguredError is returned when a channel has no usable credentials.
func NewProviderNotConfiguredError(channel string) *StandardError {
	return newError(ErrCodeProviderNotConfigured, fmt.Sprintf("%s service not configured", strings.ToUpper(channel)), "", false)
}

// NewEnqueueFailedError wraps a failure to hand a notification to the job queue.
func NewEnqueueFailedError(err error) *StandardError {
	e := newError(ErrCodeNotificationEnqueue, "Failed to enqueue notification", err.Error(), true)
	e.cause = err
	return e
}

// NewOrderNotFoundError creates a non-retryable lookup error.
func NewOrderNotFoundError(orderNumber string) *StandardError {
	return newError(ErrCodeOrderNotFound, "Order not found", fmt.Sprintf("orderNumber: %s", orderNumber), false)
}

// NewProductNotFoundError creates a non-retryable lookup error.
func NewProductNotFoundError(productID int64) *StandardError {
	return newError(ErrCodeProductNotFound, "Product not found", fmt.Sprintf("productId: %d", productID), false)
}

// NewInvalidTransitionError carries the user-facing reason as Message.
func NewInvalidTransitionError(reason string) *StandardError {
	return newError(ErrCodeInvalidStatusTransition, reason, "", false)
}

// NewInsufficientStockError reports the units still available for a product.
func NewInsufficientStockError(productID int64, available int) *StandardError {
	e := newError(ErrCodeInsufficientStock,
		fmt.Sprintf("Insufficient stock. Only %d units available.", available),
		fmt.Sprintf("productId: %d", productID), false)
	return e.WithMetadata("productId", productID).WithMetadata("available", available)
}

// NewValidationError creates a non-retryable input validation error.
func NewValidationError(message string) *StandardError {
	return newError(ErrCodeValidationFailed, message, "", false)
}

// NewForbiddenError is returned when the acting principal may not perform an action.
func NewForbiddenError(details string) *StandardError {
	return newError(ErrCodeForbidden, "You do not have permission to perform this action", details, false)
}

// NewAuthenticationError creates a non-retryable authentication error.
func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeUnauthenticated, "Authentication failed", details, false)
}

// NewItemNotInCartError is returned when updating a product absent from the cart.
func NewItemNotInCartError(productID int64) *StandardError {
	return newError(ErrCodeItemNotInCart, "Item not found in cart", fmt.Sprintf("productId: %d", productID), false)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	e := newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true)
	e.cause = err
	return e
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	e := newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
	e.cause = err
	return e
}

// NewQueryTimeoutError creates a retryable query timeout error.
func NewQueryTimeoutError(operation string) *StandardError {
	return newError(ErrCodeQueryTimeout, "Database query timeout", fmt.Sprintf("operation: %s", operation), true)
}

// NewCacheError wraps a Redis failure.
func NewCacheError(operation string, err error) *StandardError {
	e := newError(ErrCodeCacheFailed, "Cache operation failed",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
	e.cause = err
	return e
}

// NewSearchIndexError wraps an Elasticsearch indexing failure.
func NewSearchIndexError(index string, err error) *StandardError {
	e := newError(ErrCodeSearchIndexFailed, "Search index write failed",
		fmt.Sprintf("index: %s, error: %s", index, err.Error()), true)
	e.cause = err
	return e
}

// NewExternalServiceError wraps a transient failure of a downstream service.
func NewExternalServiceError(service string, err error) *StandardError {
	e := newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err.Error(), true)
	e.cause = err
	return e
}

// NewTimeoutError wraps a downstream call that ran out of time.
func NewTimeoutError(service string, err error) *StandardError {
	e := newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true)
	e.cause = err
	return e
}

// NewInternalError wraps anything that does not fit another code.
func NewInternalError(err error) *StandardError {
	e := newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
	e.cause = err
	return e
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeNotificationEnqueue,
		ErrCodeCacheFailed,
		ErrCodeSearchIndexFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeQueryTimeout, ErrCodeTimeout:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard returns the StandardError in err's chain, or wraps err as internal.
func AsStandard(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TEMPLATE"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "NOTIFICATION") || strings.Contains(codeStr, "PROVIDER"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "ORDER") || strings.Contains(codeStr, "STOCK") ||
		strings.Contains(codeStr, "PRODUCT") || strings.Contains(codeStr, "CART") ||
		strings.Contains(codeStr, "TRANSITION"):
		return "ORDER"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "CACHE") || strings.Contains(codeStr, "SEARCH"):
		return "INFRASTRUCTURE"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "FORBIDDEN") ||
		strings.Contains(codeStr, "AUTHENTICATION"):
		return "REQUEST"
	default:
		return "OTHER"
	}
}
