package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PayerType string

const (
	PayerTypeMedicaid   PayerType = "MEDICAID"
	PayerTypeMedicare   PayerType = "MEDICARE"
	PayerTypeMCO        PayerType = "MCO"
	PayerTypeCommercial PayerType = "COMMERCIAL"
	PayerTypePrivate    PayerType = "PRIVATE_PAY"
)

// Payer is a funding source that adjudicates claims. Turnaround and appeal
// window settings feed payment matching and denial deadlines.
type Payer struct {
	ID                    snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID                 snowflake.ID      `json:"org_id" gorm:"not null;index:idx_payers_org_code,unique"`
	Code                  string            `json:"code" gorm:"type:text;not null;index:idx_payers_org_code,unique"`
	Name                  string            `json:"name" gorm:"type:text;not null"`
	PayerType             PayerType         `json:"payer_type" gorm:"type:text;not null"`
	RequiresAuthorization bool              `json:"requires_authorization" gorm:"not null"`
	AvgTurnaroundDays     int               `json:"avg_turnaround_days" gorm:"not null"`
	AppealWindowDays      int               `json:"appeal_window_days" gorm:"not null"`
	RemittanceFormats     datatypes.JSON    `json:"remittance_formats" gorm:"type:jsonb"`
	Active                bool              `json:"active" gorm:"not null"`
	Metadata              datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

func (Payer) TableName() string { return "payers" }
