package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/carebridge/revcycle/internal/payment/domain"
	"gorm.io/gorm"
)

type ReconcileRequest struct {
	IdempotencyKey string                     `json:"idempotency_key"`
	Matches        []paymentdomain.MatchInput `json:"matches" binding:"required,min=1"`
}

type ReconcileResult struct {
	Payment            *paymentdomain.Payment       `json:"payment"`
	Batch              *ReconciliationBatch         `json:"batch"`
	Outcomes           []paymentdomain.MatchOutcome `json:"outcomes"`
	MatchedAmountCents int64                        `json:"matched_amount_cents"`
	ErrorCount         int                          `json:"error_count"`
}

type AutoReconcileRequest struct {
	MatchThreshold float64 `json:"match_threshold"`
}

type UndoResult struct {
	Payment             *paymentdomain.Payment `json:"payment"`
	Batch               *ReconciliationBatch   `json:"batch"`
	ReversedCount       int                    `json:"reversed_count"`
	ReversedAmountCents int64                  `json:"reversed_amount_cents"`
}

type RemittanceLineInput struct {
	ClaimNumber       string `json:"claim_number"`
	BilledAmountCents int64  `json:"billed_amount_cents"`
	PaidAmountCents   int64  `json:"paid_amount_cents"`
	AdjustmentCode    string `json:"adjustment_code"`
	AdjustmentCents   int64  `json:"adjustment_cents"`
}

type ImportRemittanceRequest struct {
	PayerID          int64                 `json:"payer_id,string" binding:"required"`
	RemittanceNumber string                `json:"remittance_number" binding:"required"`
	RemittanceDate   time.Time             `json:"remittance_date" binding:"required"`
	TotalAmountCents int64                 `json:"total_amount_cents" binding:"required"`
	PaymentMethod    string                `json:"payment_method"`
	Lines            []RemittanceLineInput `json:"lines" binding:"required,min=1"`
}

type ImportRemittanceResult struct {
	Payment              *paymentdomain.Payment       `json:"payment"`
	RemittanceID         snowflake.ID                 `json:"remittance_id"`
	MatchedCount         int                          `json:"matched_count"`
	UnmatchedCount       int                          `json:"unmatched_count"`
	MatchedAmountCents   int64                        `json:"matched_amount_cents"`
	UnmatchedAmountCents int64                        `json:"unmatched_amount_cents"`
	Outcomes             []paymentdomain.MatchOutcome `json:"outcomes"`
}

type BatchReconcileItem struct {
	PaymentID int64            `json:"payment_id,string" binding:"required"`
	Request   ReconcileRequest `json:"request"`
}

type BatchReconcileOutcome struct {
	PaymentID snowflake.ID     `json:"payment_id"`
	Result    *ReconcileResult `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Engine orchestrates payment application, claim adjudication, and the
// payment's aggregate reconciliation status.
type Engine interface {
	Reconcile(ctx context.Context, paymentID snowflake.ID, req ReconcileRequest) (*ReconcileResult, error)
	AutoReconcile(ctx context.Context, paymentID snowflake.ID, req AutoReconcileRequest) (*ReconcileResult, error)
	// Undo reverses the most recent not-yet-undone batch on the payment and
	// restores the prior claim statuses. It refuses when any affected claim
	// has since received an independent payment.
	Undo(ctx context.Context, paymentID snowflake.ID) (*UndoResult, error)
	ImportRemittance(ctx context.Context, req ImportRemittanceRequest) (*ImportRemittanceResult, error)
	// BatchReconcile processes items in isolated transactions; one failing
	// item never rolls back its siblings.
	BatchReconcile(ctx context.Context, items []BatchReconcileItem) ([]BatchReconcileOutcome, error)
}

type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, batch *ReconciliationBatch) error
	LatestActiveBatch(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*ReconciliationBatch, error)
	MarkUndone(ctx context.Context, db *gorm.DB, batchID snowflake.ID, at time.Time) error
}

var (
	ErrAlreadyReconciling = errors.New("payment_already_being_reconciled")
	ErrDuplicateRequest   = errors.New("duplicate_reconciliation_request")
	ErrNothingToUndo      = errors.New("no_reconciliation_to_undo")
	ErrUndoConflict       = errors.New("claim_received_later_payment")
	ErrNoCandidates       = errors.New("no_candidates_above_threshold")
)
