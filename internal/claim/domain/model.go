package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type SubmissionMethod string

const (
	SubmissionElectronic SubmissionMethod = "ELECTRONIC"
	SubmissionPaper      SubmissionMethod = "PAPER"
	SubmissionPortal     SubmissionMethod = "PORTAL"
)

// Claim is a bundled billing request to a payer. TotalAmountCents always
// equals the sum of its constituent services' amounts.
type Claim struct {
	ID               snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID            snowflake.ID      `json:"org_id" gorm:"not null;index"`
	ClaimNumber      string            `json:"claim_number" gorm:"type:text;not null;index:idx_claims_org_number,unique"`
	ClientID         snowflake.ID      `json:"client_id" gorm:"not null;index"`
	PayerID          snowflake.ID      `json:"payer_id" gorm:"not null;index"`
	Status           ClaimStatus       `json:"status" gorm:"type:text;not null;default:'DRAFT';index"`
	TotalAmountCents int64             `json:"total_amount_cents" gorm:"not null"`
	ServiceStartDate time.Time         `json:"service_start_date" gorm:"not null"`
	ServiceEndDate   time.Time         `json:"service_end_date" gorm:"not null;index"`
	SubmissionDate   *time.Time        `json:"submission_date"`
	SubmissionMethod SubmissionMethod  `json:"submission_method" gorm:"type:text"`
	AdjudicationDate *time.Time        `json:"adjudication_date"`
	DenialReason     string            `json:"denial_reason" gorm:"type:text"`
	OriginalClaimID  *snowflake.ID     `json:"original_claim_id" gorm:"index"`
	Metadata         datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (Claim) TableName() string { return "claims" }

// ClaimCounter backs sequential claim number assignment per org and year.
type ClaimCounter struct {
	OrgID   snowflake.ID `gorm:"primaryKey"`
	Year    int          `gorm:"primaryKey"`
	LastSeq int64        `gorm:"not null;default:0"`
}

func (ClaimCounter) TableName() string { return "claim_counters" }
