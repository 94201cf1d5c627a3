package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/satgate/satgate/internal/apikey/domain"
	"github.com/satgate/satgate/internal/authz"
	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
	gatewaydomain "github.com/satgate/satgate/internal/gateway/domain"
	payoutdomain "github.com/satgate/satgate/internal/payout/domain"
	proxydomain "github.com/satgate/satgate/internal/proxy/domain"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
	topupdomain "github.com/satgate/satgate/internal/topup/domain"
	voucherdomain "github.com/satgate/satgate/internal/voucher/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	// A payment error that reaches here bypassed the challenge negotiation
	// in the proxy handler, so answer with the machine-readable form.
	var payErr *proxydomain.PaymentRequiredError
	if errors.As(err, &payErr) {
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_required",
			Message: payErr.Error(),
		}
	}

	switch {
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authz.ErrForbidden),
		errors.Is(err, gatewaydomain.ErrNotOwner),
		errors.Is(err, earnerdomain.ErrRegistrationClosed):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, gatewaydomain.ErrAlreadyExists),
		errors.Is(err, payoutdomain.ErrInsufficientBalance):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, proxydomain.ErrUpstreamFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_failed",
			Message: "upstream request failed",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case errors.Is(err, gatewaydomain.ErrInvalidName),
		errors.Is(err, gatewaydomain.ErrInvalidTarget),
		errors.Is(err, gatewaydomain.ErrInvalidPrice),
		errors.Is(err, gatewaydomain.ErrInvalidRules),
		errors.Is(err, gatewaydomain.ErrInvalidEarner):
		return true
	case errors.Is(err, earnerdomain.ErrInvalidName),
		errors.Is(err, earnerdomain.ErrInvalidPayoutAddress):
		return true
	case errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidKeyID),
		errors.Is(err, apikeydomain.ErrInvalidScope):
		return true
	case errors.Is(err, payoutdomain.ErrInvalidAmount),
		errors.Is(err, payoutdomain.ErrNoPayoutAddress):
		return true
	case errors.Is(err, topupdomain.ErrAmountTooSmall):
		return true
	default:
		return false
	}
}

// isUnauthorizedError covers every bad-credential shape: opaque session
// tokens, API keys, and signed vouchers all answer 401 without hinting
// which check failed.
func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, sessiondomain.ErrInvalidToken),
		errors.Is(err, apikeydomain.ErrInvalidKey):
		return true
	case errors.Is(err, voucherdomain.ErrMalformed),
		errors.Is(err, voucherdomain.ErrBadSignature),
		errors.Is(err, voucherdomain.ErrExpired),
		errors.Is(err, voucherdomain.ErrWrongGateway),
		errors.Is(err, voucherdomain.ErrWrongPath),
		errors.Is(err, voucherdomain.ErrBadPreimage):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, gatewaydomain.ErrNotFound),
		errors.Is(err, gatewaydomain.ErrInactive),
		errors.Is(err, sessiondomain.ErrNotFound),
		errors.Is(err, earnerdomain.ErrNotFound),
		errors.Is(err, topupdomain.ErrNotFound),
		errors.Is(err, payoutdomain.ErrNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	if errors.Is(err, payoutdomain.ErrInsufficientBalance) {
		return "insufficient balance"
	}
	if errors.Is(err, gatewaydomain.ErrAlreadyExists) {
		return "gateway id already taken"
	}
	return "conflict"
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
