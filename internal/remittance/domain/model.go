package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RemittanceInfo is the parsed header of a payer remittance advice. File
// parsing happens upstream; the engine receives already-structured data.
type RemittanceInfo struct {
	ID               snowflake.ID       `json:"id" gorm:"primaryKey"`
	OrgID            snowflake.ID       `json:"org_id" gorm:"not null;index"`
	PayerID          snowflake.ID       `json:"payer_id" gorm:"not null;index"`
	RemittanceNumber string             `json:"remittance_number" gorm:"type:text;not null;index:idx_remit_org_number,unique"`
	RemittanceDate   time.Time          `json:"remittance_date" gorm:"not null"`
	TotalAmountCents int64              `json:"total_amount_cents" gorm:"not null"`
	PaymentMethod    string             `json:"payment_method" gorm:"type:text"`
	Details          []RemittanceDetail `json:"details" gorm:"foreignKey:RemittanceID"`
	Metadata         datatypes.JSONMap  `json:"metadata" gorm:"type:jsonb"`
	CreatedAt        time.Time          `json:"created_at"`
}

func (RemittanceInfo) TableName() string { return "remittance_infos" }

// RemittanceDetail is one claim-level line of the advice. ClaimNumber is
// the payer-reported reference used as a high-confidence matching signal.
type RemittanceDetail struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	RemittanceID      snowflake.ID `json:"remittance_id" gorm:"not null;index"`
	ClaimNumber       string       `json:"claim_number" gorm:"type:text;index"`
	BilledAmountCents int64        `json:"billed_amount_cents" gorm:"not null"`
	PaidAmountCents   int64        `json:"paid_amount_cents" gorm:"not null"`
	AdjustmentCode    string       `json:"adjustment_code" gorm:"type:text"`
	AdjustmentCents   int64        `json:"adjustment_cents"`
	Matched           bool         `json:"matched" gorm:"not null;default:false"`
}

func (RemittanceDetail) TableName() string { return "remittance_details" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, info *RemittanceInfo) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*RemittanceInfo, error)
	MarkDetailMatched(ctx context.Context, db *gorm.DB, detailID snowflake.ID) error
}

var (
	ErrRemittanceNotFound = errors.New("remittance_not_found")
	ErrRemittanceConflict = errors.New("remittance_number_conflict")
	ErrEmptyRemittance    = errors.New("remittance_has_no_details")
)
