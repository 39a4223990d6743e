package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_IsMatchesOnCode(t *testing.T) {
	err := fmt.Errorf("load order: %w", NewOrderNotFoundError("ORD-1"))

	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NotErrorIs(t, err, ErrProductNotFound)
	assert.True(t, HasCode(err, ErrCodeOrderNotFound))
	assert.False(t, HasCode(stderrors.New("plain"), ErrCodeOrderNotFound))
}

func TestStandardError_UnwrapsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewCacheError("cart_add", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "CACHE_OPERATION_FAILED")
	assert.Contains(t, err.Error(), "cart_add")
}

func TestAsStandard(t *testing.T) {
	orig := NewValidationError("bad")
	assert.Same(t, orig, AsStandard(fmt.Errorf("wrapped: %w", orig)))

	wrapped := AsStandard(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, wrapped.Code)
	assert.False(t, wrapped.Retryable)
	assert.Equal(t, "boom", wrapped.Details)
}

func TestInsufficientStockMetadata(t *testing.T) {
	err := NewInsufficientStockError(42, 3)
	assert.Equal(t, "Insufficient stock. Only 3 units available.", err.Message)
	assert.Equal(t, int64(42), err.Metadata["productId"])
	assert.Equal(t, 3, err.Metadata["available"])
}

func TestProviderNotConfiguredMessage(t *testing.T) {
	assert.Equal(t, "SMS service not configured", NewProviderNotConfiguredError("sms").Message)
	assert.Equal(t, "EMAIL service not configured", NewProviderNotConfiguredError("email").Message)
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantRetries int
	}{
		{"send failure retried", NewNotificationSendFailedError("sms", stderrors.New("503")), 3},
		{"timeout retried less", NewTimeoutError("ses", stderrors.New("deadline")), 2},
		{"validation not retried", NewValidationError("bad"), 0},
		{"template missing not retried", NewTemplateNotFoundError("welcome", "sms"), 0},
		{"non-retryable overrides code", &StandardError{Code: ErrCodeQueryExecutionFailed, Retryable: false}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)
			assert.Equal(t, string(tt.err.Code), bpmn.Code)

			vars := bpmn.ToErrorVariables()
			assert.Equal(t, string(tt.err.Code), vars["errorCode"])
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeTemplateNotFound:         "TEMPLATE",
		ErrCodeProviderNotConfigured:    "NOTIFICATION",
		ErrCodeNotificationSendFailed:   "NOTIFICATION",
		ErrCodeInsufficientStock:        "ORDER",
		ErrCodeItemNotInCart:            "ORDER",
		ErrCodeInvalidStatusTransition:  "ORDER",
		ErrCodeQueryTimeout:             "DATABASE",
		ErrCodeSearchIndexFailed:        "INFRASTRUCTURE",
		ErrCodeUnauthenticated:          "REQUEST",
		ErrCodeInternal:                 "OTHER",
		ErrCodeDatabaseConnectionFailed: "DATABASE",
	}
	for code, want := range tests {
		require.Equal(t, want, GetErrorCategory(code), code)
	}
}
