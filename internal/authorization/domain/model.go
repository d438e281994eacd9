package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AuthorizationStatus string

const (
	AuthStatusDraft     AuthorizationStatus = "DRAFT"
	AuthStatusActive    AuthorizationStatus = "ACTIVE"
	AuthStatusExpired   AuthorizationStatus = "EXPIRED"
	AuthStatusExhausted AuthorizationStatus = "EXHAUSTED"
	AuthStatusCancelled AuthorizationStatus = "CANCELLED"
)

// Authorization is a payer-approved allotment of service units for one
// client over a date range. UsedUnits never exceeds AuthorizedUnits and
// never goes negative; unit consumption is tracked to nine decimal places.
type Authorization struct {
	ID              snowflake.ID        `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID        `json:"org_id" gorm:"not null;index:idx_auth_org_number,unique"`
	AuthNumber      string              `json:"auth_number" gorm:"type:text;not null;index:idx_auth_org_number,unique"`
	ClientID        snowflake.ID        `json:"client_id" gorm:"not null;index"`
	PayerID         snowflake.ID        `json:"payer_id" gorm:"not null;index"`
	ServiceTypes    datatypes.JSON      `json:"service_types" gorm:"type:jsonb"`
	Status          AuthorizationStatus `json:"status" gorm:"type:text;not null;default:'DRAFT'"`
	AuthorizedUnits float64             `json:"authorized_units" gorm:"not null"`
	UsedUnits       float64             `json:"used_units" gorm:"not null;default:0"`
	StartDate       time.Time           `json:"start_date" gorm:"not null"`
	EndDate         time.Time           `json:"end_date" gorm:"not null"`
	Metadata        datatypes.JSONMap   `json:"metadata" gorm:"type:jsonb"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (Authorization) TableName() string { return "authorizations" }

// UnitEpsilon absorbs float drift when comparing unit balances.
const UnitEpsilon = 1e-9

// RemainingUnits is the balance still available for consumption.
func (a *Authorization) RemainingUnits() float64 {
	rem := a.AuthorizedUnits - a.UsedUnits
	if rem < 0 {
		return 0
	}
	return rem
}

// Exhausted reports whether the balance has been fully consumed.
func (a *Authorization) Exhausted() bool {
	return a.AuthorizedUnits-a.UsedUnits <= UnitEpsilon
}

// CoversDate reports whether t falls inside the authorization window,
// inclusive on both ends. Comparison is by calendar date in UTC.
func (a *Authorization) CoversDate(t time.Time) bool {
	day := t.UTC().Truncate(24 * time.Hour)
	start := a.StartDate.UTC().Truncate(24 * time.Hour)
	end := a.EndDate.UTC().Truncate(24 * time.Hour)
	return !day.Before(start) && !day.After(end)
}

// CoversServiceType reports whether the given service type is covered.
// An empty coverage list means all service types are covered.
func (a *Authorization) CoversServiceType(serviceType string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == serviceType {
			return true
		}
	}
	return false
}
