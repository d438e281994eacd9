package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Validation error codes. Blocking errors carry one of these codes so the
// API layer can render a precise reason per service.
const (
	CodeDocIncomplete        = "DOCUMENTATION_INCOMPLETE"
	CodeDocRejected          = "DOCUMENTATION_REJECTED"
	CodeDocPendingReview     = "DOCUMENTATION_PENDING_REVIEW"
	CodeAuthMissing          = "AUTHORIZATION_MISSING"
	CodeAuthNotActive        = "AUTHORIZATION_NOT_ACTIVE"
	CodeAuthDateOutOfRange   = "SERVICE_DATE_OUTSIDE_AUTHORIZATION"
	CodeAuthUnitsExceeded    = "UNITS_EXCEED_AUTHORIZATION"
	CodeAuthServiceType      = "SERVICE_TYPE_NOT_AUTHORIZED"
	CodeAlreadyBilled        = "SERVICE_ALREADY_BILLED"
	CodeServiceVoided        = "SERVICE_VOIDED"
	WarnAuthExpiringSoon     = "AUTHORIZATION_EXPIRING_SOON"
	WarnAuthLowRemainingUnit = "AUTHORIZATION_LOW_REMAINING_UNITS"
)

type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DocumentationResult struct {
	IsComplete   bool     `json:"is_complete"`
	Status       string   `json:"status"`
	MissingItems []string `json:"missing_items,omitempty"`
}

type AuthorizationResult struct {
	IsAuthorized    bool          `json:"is_authorized"`
	AuthorizationID *snowflake.ID `json:"authorization_id,omitempty"`
	AuthorizedUnits float64       `json:"authorized_units"`
	UsedUnits       float64       `json:"used_units"`
	RemainingUnits  float64       `json:"remaining_units"`
	ExpirationDate  *time.Time    `json:"expiration_date,omitempty"`
}

type ValidationResult struct {
	ServiceID     snowflake.ID        `json:"service_id"`
	IsValid       bool                `json:"is_valid"`
	Errors        []ValidationIssue   `json:"errors"`
	Warnings      []ValidationIssue   `json:"warnings"`
	Documentation DocumentationResult `json:"documentation"`
	Authorization AuthorizationResult `json:"authorization"`
}

// AddError records a blocking issue and clears IsValid.
func (r *ValidationResult) AddError(code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Code: code, Message: message})
	r.IsValid = false
}

// AddWarning records a non-blocking advisory issue.
func (r *ValidationResult) AddWarning(code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Code: code, Message: message})
}
