package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type BatchSource string

const (
	SourceManual     BatchSource = "MANUAL"
	SourceAuto       BatchSource = "AUTO"
	SourceRemittance BatchSource = "REMITTANCE"
)

// ReconciliationBatch records one reconciliation action against a payment.
// The batch groups the ClaimPayments it created so the whole action can be
// undone; IdempotencyKey rejects replayed requests.
type ReconciliationBatch struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID              snowflake.ID `json:"org_id" gorm:"not null;index:idx_recon_org_idem,unique"`
	PaymentID          snowflake.ID `json:"payment_id" gorm:"not null;index"`
	IdempotencyKey     string       `json:"idempotency_key" gorm:"type:text;index:idx_recon_org_idem,unique"`
	Source             BatchSource  `json:"source" gorm:"type:text;not null"`
	MatchedAmountCents int64        `json:"matched_amount_cents" gorm:"not null"`
	ErrorCount         int          `json:"error_count" gorm:"not null;default:0"`
	UndoneAt           *time.Time   `json:"undone_at"`
	CreatedAt          time.Time    `json:"created_at" gorm:"index"`
}

func (ReconciliationBatch) TableName() string { return "reconciliation_batches" }
