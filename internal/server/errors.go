package server

import (
	"errors"
	"net/http"

	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	authdomain "github.com/carebridge/revcycle/internal/authorization/domain"
	claimdomain "github.com/carebridge/revcycle/internal/claim/domain"
	payerdomain "github.com/carebridge/revcycle/internal/payer/domain"
	paymentdomain "github.com/carebridge/revcycle/internal/payment/domain"
	recondomain "github.com/carebridge/revcycle/internal/reconciliation/domain"
	remitdomain "github.com/carebridge/revcycle/internal/remittance/domain"
	svcdomain "github.com/carebridge/revcycle/internal/servicedelivery/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrConflict       = errors.New("conflict")
)

// ErrorHandlingMiddleware renders the last handler error as a structured
// JSON body with the status the error taxonomy maps to.
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

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    err.Error(),
			Message: "validation error",
		}
	case errors.Is(err, paymentdomain.ErrOverAllocation):
		return http.StatusBadRequest, errorPayload{
			Type:    "over_allocation",
			Code:    err.Error(),
			Message: "requested allocation exceeds the payment amount",
		}
	case errors.Is(err, authdomain.ErrInsufficientUnits):
		return http.StatusConflict, errorPayload{
			Type:    "invariant_violation",
			Code:    err.Error(),
			Message: "authorization units would be exceeded",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    err.Error(),
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    err.Error(),
			Message: "not found",
		}
	default:
		var invalid *claimdomain.InvalidTransitionError
		if errors.As(err, &invalid) {
			return http.StatusConflict, errorPayload{
				Type:    "invalid_transition",
				Code:    "invalid_claim_transition",
				Message: invalid.Error(),
			}
		}
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, svcdomain.ErrValidationFailed),
		errors.Is(err, svcdomain.ErrInvalidDocStatus),
		errors.Is(err, svcdomain.ErrInvalidUnits),
		errors.Is(err, svcdomain.ErrDuplicateServiceID),
		errors.Is(err, payerdomain.ErrInvalidPayerType),
		errors.Is(err, authdomain.ErrInvalidDateRange),
		errors.Is(err, authdomain.ErrInvalidUnits),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, claimdomain.ErrNoServices),
		errors.Is(err, claimdomain.ErrMixedClients),
		errors.Is(err, claimdomain.ErrSubmissionIncomplete),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrNothingToApply),
		errors.Is(err, paymentdomain.ErrDuplicateClaimInput),
		errors.Is(err, remitdomain.ErrEmptyRemittance),
		errors.Is(err, recondomain.ErrNoCandidates):
		return true
	}
	return false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, payerdomain.ErrPayerCodeConflict),
		errors.Is(err, authdomain.ErrAuthNumberConflict),
		errors.Is(err, authdomain.ErrInvalidStatusChange),
		errors.Is(err, svcdomain.ErrServiceBilled),
		errors.Is(err, claimdomain.ErrNotAdjudicable),
		errors.Is(err, claimdomain.ErrNotResubmittable),
		errors.Is(err, recondomain.ErrAlreadyReconciling),
		errors.Is(err, recondomain.ErrDuplicateRequest),
		errors.Is(err, recondomain.ErrUndoConflict),
		errors.Is(err, remitdomain.ErrRemittanceConflict):
		return true
	}
	return false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, payerdomain.ErrPayerNotFound),
		errors.Is(err, authdomain.ErrAuthorizationNotFound),
		errors.Is(err, svcdomain.ErrServiceNotFound),
		errors.Is(err, claimdomain.ErrClaimNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, remitdomain.ErrRemittanceNotFound),
		errors.Is(err, recondomain.ErrNothingToUndo),
		errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	}
	return false
}

// classifyErrorForLog buckets handler errors for the request log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "server_error", payload.Type
	case status == http.StatusConflict:
		return "conflict", payload.Type
	default:
		return "client_error", payload.Type
	}
}
