package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/carebridge/revcycle/internal/claim/domain"
	"gorm.io/gorm"
)

type CreatePaymentRequest struct {
	PayerID         int64         `json:"payer_id,string" binding:"required"`
	PaymentDate     time.Time     `json:"payment_date" binding:"required"`
	AmountCents     int64         `json:"amount_cents" binding:"required"`
	Method          PaymentMethod `json:"method" binding:"required"`
	ReferenceNumber string        `json:"reference_number"`
}

type ListPaymentsRequest struct {
	PayerID              int64                `form:"payer_id"`
	ReconciliationStatus ReconciliationStatus `form:"reconciliation_status"`
	Limit                int                  `form:"limit"`
}

// MatchSuggestion is one candidate claim for a payment with the composite
// confidence score and the dominant signal spelled out for the operator.
type MatchSuggestion struct {
	Claim            claimdomain.Claim `json:"claim"`
	OutstandingCents int64             `json:"outstanding_cents"`
	MatchScore       float64           `json:"match_score"`
	MatchReason      string            `json:"match_reason"`
}

type AdjustmentInput struct {
	Type        AdjustmentType `json:"type" binding:"required"`
	Code        string         `json:"code"`
	AmountCents int64          `json:"amount_cents"`
	Description string         `json:"description"`
}

type MatchInput struct {
	ClaimID     int64             `json:"claim_id,string" binding:"required"`
	AmountCents int64             `json:"amount_cents"`
	Adjustments []AdjustmentInput `json:"adjustments"`
}

// MatchOutcome is the per-claim result of an applyMatch batch. A failed
// claim carries ErrorCode/ErrorMessage and never aborts its siblings.
type MatchOutcome struct {
	ClaimID      snowflake.ID  `json:"claim_id"`
	ClaimPayment *ClaimPayment `json:"claim_payment,omitempty"`
	NewStatus    string        `json:"new_status,omitempty"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreatePaymentRequest) (*Payment, error)
	Get(ctx context.Context, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, req ListPaymentsRequest) ([]Payment, error)

	// SuggestMatches scores every outstanding claim of the payment's payer
	// against the payment and returns candidates above the configured
	// minimum score, best first.
	SuggestMatches(ctx context.Context, paymentID snowflake.ID) ([]MatchSuggestion, error)

	// ApplyMatch runs inside the caller's transaction under the payment
	// row lock. Over-allocation across the batch rejects the whole call;
	// per-claim state problems fail only that claim.
	ApplyMatch(ctx context.Context, tx *gorm.DB, payment *Payment, batchID snowflake.ID, inputs []MatchInput) ([]MatchOutcome, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, req ListPaymentsRequest) ([]Payment, error)
	Update(ctx context.Context, db *gorm.DB, payment *Payment) error

	InsertClaimPayment(ctx context.Context, db *gorm.DB, cp *ClaimPayment) error
	DeleteClaimPayment(ctx context.Context, db *gorm.DB, cp *ClaimPayment) error
	ClaimPaymentsByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]ClaimPayment, error)
	ClaimPaymentsByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]ClaimPayment, error)
	ClaimPaymentsByClaim(ctx context.Context, db *gorm.DB, claimID snowflake.ID) ([]ClaimPayment, error)
	// PaidTotalsByClaims sums paid amounts per claim in one query.
	PaidTotalsByClaims(ctx context.Context, db *gorm.DB, claimIDs []snowflake.ID) (map[snowflake.ID]int64, error)
}

var (
	ErrPaymentNotFound     = errors.New("payment_not_found")
	ErrInvalidAmount       = errors.New("invalid_payment_amount")
	ErrOverAllocation      = errors.New("allocation_exceeds_payment_amount")
	ErrNothingToApply      = errors.New("no_match_inputs")
	ErrDuplicateClaimInput = errors.New("duplicate_claim_in_match_inputs")
)

// RemitLine is a remittance detail slice used as a high-confidence match
// hint. The lookup is implemented by the remittance package.
type RemitLine struct {
	ClaimNumber     string
	PaidAmountCents int64
}

type RemittanceLookup interface {
	LinesForRemittance(ctx context.Context, db *gorm.DB, remittanceID snowflake.ID) ([]RemitLine, error)
}
