package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/carebridge/revcycle/internal/claim/domain"
	"gorm.io/datatypes"
)

type PaymentMethod string

const (
	MethodCheck      PaymentMethod = "CHECK"
	MethodEFT        PaymentMethod = "EFT"
	MethodCreditCard PaymentMethod = "CREDIT_CARD"
	MethodCash       PaymentMethod = "CASH"
	MethodOther      PaymentMethod = "OTHER"
)

type ReconciliationStatus string

const (
	ReconStatusUnreconciled ReconciliationStatus = "UNRECONCILED"
	ReconStatusPartial      ReconciliationStatus = "PARTIALLY_RECONCILED"
	ReconStatusReconciled   ReconciliationStatus = "RECONCILED"
	ReconStatusException    ReconciliationStatus = "EXCEPTION"
)

type AdjustmentType string

const (
	AdjContractual AdjustmentType = "CONTRACTUAL"
	AdjDeductible  AdjustmentType = "DEDUCTIBLE"
	AdjCoinsurance AdjustmentType = "COINSURANCE"
	AdjCopay       AdjustmentType = "COPAY"
	AdjNoncovered  AdjustmentType = "NONCOVERED"
	AdjTransfer    AdjustmentType = "TRANSFER"
	AdjOther       AdjustmentType = "OTHER"
)

// Payment is money received from a payer. Its reconciliation status is
// written only by the reconciliation engine.
type Payment struct {
	ID                   snowflake.ID         `json:"id" gorm:"primaryKey"`
	OrgID                snowflake.ID         `json:"org_id" gorm:"not null;index"`
	PayerID              snowflake.ID         `json:"payer_id" gorm:"not null;index"`
	PaymentDate          time.Time            `json:"payment_date" gorm:"not null"`
	AmountCents          int64                `json:"amount_cents" gorm:"not null"`
	Method               PaymentMethod        `json:"method" gorm:"type:text;not null"`
	ReconciliationStatus ReconciliationStatus `json:"reconciliation_status" gorm:"type:text;not null;default:'UNRECONCILED';index"`
	ReferenceNumber      string               `json:"reference_number" gorm:"type:text"`
	RemittanceID         *snowflake.ID        `json:"remittance_id" gorm:"index"`
	Metadata             datatypes.JSONMap    `json:"metadata" gorm:"type:jsonb"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// ClaimPayment associates a slice of a payment with one claim. BatchID
// groups rows created by a single reconciliation action so that action can
// be undone as a unit; PrevClaimStatus is the claim status captured just
// before the adjudication so undo can restore it.
type ClaimPayment struct {
	ID              snowflake.ID            `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID            `json:"org_id" gorm:"not null;index"`
	PaymentID       snowflake.ID            `json:"payment_id" gorm:"not null;index"`
	ClaimID         snowflake.ID            `json:"claim_id" gorm:"not null;index"`
	BatchID         snowflake.ID            `json:"batch_id" gorm:"not null;index"`
	PaidAmountCents int64                   `json:"paid_amount_cents" gorm:"not null"`
	PrevClaimStatus claimdomain.ClaimStatus `json:"prev_claim_status" gorm:"type:text;not null"`
	Adjustments     []PaymentAdjustment     `json:"adjustments" gorm:"foreignKey:ClaimPaymentID"`
	CreatedAt       time.Time               `json:"created_at"`
}

func (ClaimPayment) TableName() string { return "claim_payments" }

// PaymentAdjustment is a payer-reported reduction or transfer inside a
// ClaimPayment line.
type PaymentAdjustment struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	ClaimPaymentID snowflake.ID   `json:"claim_payment_id" gorm:"not null;index"`
	Type           AdjustmentType `json:"type" gorm:"type:text;not null"`
	Code           string         `json:"code" gorm:"type:text"`
	AmountCents    int64          `json:"amount_cents" gorm:"not null"`
	Description    string         `json:"description" gorm:"type:text"`
}

func (PaymentAdjustment) TableName() string { return "payment_adjustments" }
