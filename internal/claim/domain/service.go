package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	svcdomain "github.com/carebridge/revcycle/internal/servicedelivery/domain"
	"gorm.io/gorm"
)

type CreateClaimRequest struct {
	PayerID    int64   `json:"payer_id,string" binding:"required"`
	ServiceIDs []int64 `json:"service_ids" binding:"required,min=1"`
}

type CreateClaimResponse struct {
	Claim             *Claim                       `json:"claim,omitempty"`
	ValidationResults []svcdomain.ValidationResult `json:"validation_results"`
}

type SubmitClaimRequest struct {
	Method SubmissionMethod `json:"method" binding:"required"`
}

type ListClaimsRequest struct {
	PayerID  int64       `form:"payer_id"`
	ClientID int64       `form:"client_id"`
	Status   ClaimStatus `form:"status"`
	Limit    int         `form:"limit"`
}

// Adjudication is applied by the reconciliation flow only. It carries the
// lifecycle target computed from cumulative paid amounts plus the
// adjudication metadata the transition guards require.
type Adjudication struct {
	ToStatus         ClaimStatus
	AdjudicationDate time.Time
	DenialReason     string
}

type Service interface {
	// CreateFromServices validates the whole batch and converts it into a
	// DRAFT claim atomically. Any invalid service aborts the conversion and
	// the response carries the per-service results instead of a claim.
	CreateFromServices(ctx context.Context, req CreateClaimRequest) (*CreateClaimResponse, error)
	Get(ctx context.Context, id snowflake.ID) (*Claim, error)
	List(ctx context.Context, req ListClaimsRequest) ([]Claim, error)
	Revalidate(ctx context.Context, id snowflake.ID) (*Claim, []svcdomain.ValidationResult, error)
	Submit(ctx context.Context, id snowflake.ID, req SubmitClaimRequest) (*Claim, error)
	Acknowledge(ctx context.Context, id snowflake.ID) (*Claim, error)
	MarkPending(ctx context.Context, id snowflake.ID) (*Claim, error)
	Appeal(ctx context.Context, id snowflake.ID) (*Claim, error)
	FinalizeDenial(ctx context.Context, id snowflake.ID) (*Claim, error)
	// Void releases consumed authorization units and resets constituent
	// services to UNBILLED.
	Void(ctx context.Context, id snowflake.ID) (*Claim, error)
	// Resubmit clones a denied claim into a fresh DRAFT replacement that
	// re-bills the same services under a new claim number.
	Resubmit(ctx context.Context, id snowflake.ID) (*Claim, error)

	// ApplyAdjudication runs inside the caller's transaction; it is the
	// only path to PAID, PARTIAL_PAID, and DENIED.
	ApplyAdjudication(ctx context.Context, tx *gorm.DB, claimID snowflake.ID, adj Adjudication) (*Claim, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, claim *Claim) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Claim, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Claim, error)
	FindByNumber(ctx context.Context, db *gorm.DB, orgID snowflake.ID, number string) (*Claim, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, req ListClaimsRequest) ([]Claim, error)
	ListOutstandingByPayer(ctx context.Context, db *gorm.DB, orgID, payerID snowflake.ID) ([]Claim, error)
	ListOutstanding(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Claim, error)
	Update(ctx context.Context, db *gorm.DB, claim *Claim) error
	NextClaimNumber(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, year int) (string, error)
}

var (
	ErrClaimNotFound        = errors.New("claim_not_found")
	ErrNoServices           = errors.New("claim_requires_services")
	ErrMixedClients         = errors.New("services_span_multiple_clients")
	ErrSubmissionIncomplete = errors.New("submission_requires_method")
	ErrNotAdjudicable       = errors.New("claim_not_open_for_payment")
	ErrNotResubmittable     = errors.New("claim_not_resubmittable")
)
