package api

import (
	"encoding/json"
	"net/http"

	apperrors "storefront-workers/internal/common/errors"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// statusFor maps an error code onto the HTTP status returned to clients.
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeOrderNotFound, apperrors.ErrCodeProductNotFound, apperrors.ErrCodeItemNotInCart:
		return http.StatusNotFound
	case apperrors.ErrCodeInvalidStatusTransition, apperrors.ErrCodeInsufficientStock:
		return http.StatusConflict
	case apperrors.ErrCodeTimeout, apperrors.ErrCodeQueryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := apperrors.AsStandard(err)
	status := statusFor(stdErr.Code)

	body := errorBody{Code: string(stdErr.Code), Message: stdErr.Message, Details: stdErr.Details}
	fields := map[string]interface{}{
		"path":   r.URL.Path,
		"status": status,
		"code":   body.Code,
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed", fields)
		// internal details stay in the log
		body.Details = ""
	} else {
		s.logger.Debug("request rejected", fields)
	}
	writeJSON(w, status, map[string]interface{}{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}
