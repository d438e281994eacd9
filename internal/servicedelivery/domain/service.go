package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateServiceRequest struct {
	ClientID        int64     `json:"client_id,string" binding:"required"`
	ProgramID       int64     `json:"program_id,string" binding:"required"`
	AuthorizationID *int64    `json:"authorization_id,string"`
	ServiceType     string    `json:"service_type" binding:"required"`
	ServiceDate     time.Time `json:"service_date" binding:"required"`
	UnitsDelivered  float64   `json:"units_delivered" binding:"required"`
	RateCents       int64     `json:"rate_cents" binding:"required"`
}

type UpdateDocumentationRequest struct {
	Status      DocumentationStatus `json:"status" binding:"required"`
	MissingDocs []string            `json:"missing_docs"`
}

type ListServicesRequest struct {
	ClientID      int64         `form:"client_id"`
	BillingStatus BillingStatus `form:"billing_status"`
	ClaimID       int64         `form:"claim_id"`
	Limit         int           `form:"limit"`
}

type Service interface {
	Create(ctx context.Context, req CreateServiceRequest) (*DeliveredService, error)
	Get(ctx context.Context, id snowflake.ID) (*DeliveredService, error)
	List(ctx context.Context, req ListServicesRequest) ([]DeliveredService, error)
	UpdateDocumentation(ctx context.Context, id snowflake.ID, req UpdateDocumentationRequest) (*DeliveredService, error)
}

// Validator gates the service to claim conversion. Both methods are
// read-only; callers apply mutations only after every result is valid.
type Validator interface {
	Validate(ctx context.Context, serviceIDs []snowflake.ID) ([]ValidationResult, error)
	ValidateForConversion(ctx context.Context, serviceIDs []snowflake.ID, payerID snowflake.ID) ([]ValidationResult, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, svc *DeliveredService) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*DeliveredService, error)
	FindByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]DeliveredService, error)
	FindByIDsForUpdate(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]DeliveredService, error)
	FindByClaim(ctx context.Context, db *gorm.DB, orgID, claimID snowflake.ID) ([]DeliveredService, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, req ListServicesRequest) ([]DeliveredService, error)
	Update(ctx context.Context, db *gorm.DB, svc *DeliveredService) error
	ProgramAmountsByClaims(ctx context.Context, db *gorm.DB, orgID snowflake.ID, claimIDs []snowflake.ID) (ProgramAmounts, error)
}

var (
	ErrServiceNotFound    = errors.New("service_not_found")
	ErrInvalidDocStatus   = errors.New("invalid_documentation_status")
	ErrInvalidUnits       = errors.New("invalid_units")
	ErrServiceBilled      = errors.New("service_already_billed")
	ErrValidationFailed   = errors.New("service_validation_failed")
	ErrDuplicateServiceID = errors.New("duplicate_service_id")
)

// ProgramAmounts reports, per claim, how much of its service amount belongs
// to each program.
type ProgramAmounts = map[snowflake.ID]map[snowflake.ID]int64
