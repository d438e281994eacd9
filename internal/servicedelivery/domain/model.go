package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type DocumentationStatus string

const (
	DocStatusIncomplete    DocumentationStatus = "INCOMPLETE"
	DocStatusComplete      DocumentationStatus = "COMPLETE"
	DocStatusRejected      DocumentationStatus = "REJECTED"
	DocStatusPendingReview DocumentationStatus = "PENDING_REVIEW"
)

type BillingStatus string

const (
	BillingStatusUnbilled        BillingStatus = "UNBILLED"
	BillingStatusReadyForBilling BillingStatus = "READY_FOR_BILLING"
	BillingStatusInClaim         BillingStatus = "IN_CLAIM"
	BillingStatusBilled          BillingStatus = "BILLED"
	BillingStatusPaid            BillingStatus = "PAID"
	BillingStatusDenied          BillingStatus = "DENIED"
	BillingStatusVoid            BillingStatus = "VOID"
)

// DeliveredService is one billable unit of delivered care. AmountCents is
// always UnitsDelivered times RateCents rounded to the nearest cent.
type DeliveredService struct {
	ID                  snowflake.ID        `json:"id" gorm:"primaryKey"`
	OrgID               snowflake.ID        `json:"org_id" gorm:"not null;index"`
	ClientID            snowflake.ID        `json:"client_id" gorm:"not null;index"`
	ProgramID           snowflake.ID        `json:"program_id" gorm:"not null;index"`
	AuthorizationID     *snowflake.ID       `json:"authorization_id" gorm:"index"`
	ClaimID             *snowflake.ID       `json:"claim_id" gorm:"index"`
	ServiceType         string              `json:"service_type" gorm:"type:text;not null"`
	ServiceDate         time.Time           `json:"service_date" gorm:"not null;index"`
	UnitsDelivered      float64             `json:"units_delivered" gorm:"not null"`
	RateCents           int64               `json:"rate_cents" gorm:"not null"`
	AmountCents         int64               `json:"amount_cents" gorm:"not null"`
	DocumentationStatus DocumentationStatus `json:"documentation_status" gorm:"type:text;not null;default:'INCOMPLETE'"`
	BillingStatus       BillingStatus       `json:"billing_status" gorm:"type:text;not null;default:'UNBILLED'"`
	MissingDocs         datatypes.JSON      `json:"missing_docs" gorm:"type:jsonb"`
	Metadata            datatypes.JSONMap   `json:"metadata" gorm:"type:jsonb"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

func (DeliveredService) TableName() string { return "delivered_services" }

// ComputeAmountCents rounds units times rate to the nearest cent.
func ComputeAmountCents(units float64, rateCents int64) int64 {
	v := units * float64(rateCents)
	if v >= 0 {
		return int64(v + 0.5)
	}
	return int64(v - 0.5)
}

// Billed reports whether the service is already attached to a claim or
// further along; such a service must not be billed again.
func (s *DeliveredService) Billed() bool {
	switch s.BillingStatus {
	case BillingStatusInClaim, BillingStatusBilled, BillingStatusPaid:
		return true
	}
	return false
}
