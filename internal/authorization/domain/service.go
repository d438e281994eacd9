package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateAuthorizationRequest struct {
	AuthNumber      string    `json:"auth_number" binding:"required"`
	ClientID        int64     `json:"client_id,string" binding:"required"`
	PayerID         int64     `json:"payer_id,string" binding:"required"`
	ServiceTypes    []string  `json:"service_types"`
	AuthorizedUnits float64   `json:"authorized_units" binding:"required"`
	StartDate       time.Time `json:"start_date" binding:"required"`
	EndDate         time.Time `json:"end_date" binding:"required"`
	Activate        bool      `json:"activate"`
}

type Service interface {
	Create(ctx context.Context, req CreateAuthorizationRequest) (*Authorization, error)
	Get(ctx context.Context, id snowflake.ID) (*Authorization, error)
	ListByClient(ctx context.Context, clientID snowflake.ID) ([]Authorization, error)
	Activate(ctx context.Context, id snowflake.ID) (*Authorization, error)
	Cancel(ctx context.Context, id snowflake.ID) (*Authorization, error)

	// ConsumeUnits and ReleaseUnits run inside the caller's transaction and
	// take a row lock on the authorization. ConsumeUnits fails when the
	// balance would go negative; ReleaseUnits clamps at zero used units and
	// reverts EXHAUSTED back to ACTIVE when headroom reappears.
	ConsumeUnits(ctx context.Context, tx *gorm.DB, authID snowflake.ID, units float64) error
	ReleaseUnits(ctx context.Context, tx *gorm.DB, authID snowflake.ID, units float64) error

	// ExpireDue flips ACTIVE authorizations whose end date has passed to
	// EXPIRED and returns how many rows changed.
	ExpireDue(ctx context.Context) (int64, error)

	// ExpireAllDue is the system-wide variant used by the background sweep.
	// It covers every organization and needs no actor context.
	ExpireAllDue(ctx context.Context) (int64, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, auth *Authorization) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Authorization, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Authorization, error)
	FindByClient(ctx context.Context, db *gorm.DB, orgID, clientID snowflake.ID) ([]Authorization, error)
	Update(ctx context.Context, db *gorm.DB, auth *Authorization) error
	ExpireDue(ctx context.Context, db *gorm.DB, orgID snowflake.ID, asOf time.Time) (int64, error)
	ExpireAllDue(ctx context.Context, db *gorm.DB, asOf time.Time) (int64, error)
}

var (
	ErrAuthorizationNotFound = errors.New("authorization_not_found")
	ErrAuthNumberConflict    = errors.New("auth_number_conflict")
	ErrInvalidDateRange      = errors.New("invalid_date_range")
	ErrInvalidUnits          = errors.New("invalid_units")
	ErrInsufficientUnits     = errors.New("insufficient_authorized_units")
	ErrInvalidStatusChange   = errors.New("invalid_authorization_status_change")
)
