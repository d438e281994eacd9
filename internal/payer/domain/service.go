package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreatePayerRequest struct {
	Code                  string    `json:"code" binding:"required"`
	Name                  string    `json:"name" binding:"required"`
	PayerType             PayerType `json:"payer_type" binding:"required"`
	RequiresAuthorization *bool     `json:"requires_authorization"`
	AvgTurnaroundDays     int       `json:"avg_turnaround_days"`
	AppealWindowDays      int       `json:"appeal_window_days"`
}

type UpdatePayerRequest struct {
	Name                  *string `json:"name"`
	RequiresAuthorization *bool   `json:"requires_authorization"`
	AvgTurnaroundDays     *int    `json:"avg_turnaround_days"`
	AppealWindowDays      *int    `json:"appeal_window_days"`
	Active                *bool   `json:"active"`
}

type Service interface {
	Create(ctx context.Context, req CreatePayerRequest) (*Payer, error)
	Get(ctx context.Context, id snowflake.ID) (*Payer, error)
	List(ctx context.Context) ([]Payer, error)
	Update(ctx context.Context, id snowflake.ID, req UpdatePayerRequest) (*Payer, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payer *Payer) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payer, error)
	FindByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Payer, error)
	Update(ctx context.Context, db *gorm.DB, payer *Payer) error
}

var (
	ErrPayerNotFound     = errors.New("payer_not_found")
	ErrPayerCodeConflict = errors.New("payer_code_conflict")
	ErrInvalidPayerType  = errors.New("invalid_payer_type")
)

func (t PayerType) Valid() bool {
	switch t {
	case PayerTypeMedicaid, PayerTypeMedicare, PayerTypeMCO, PayerTypeCommercial, PayerTypePrivate:
		return true
	}
	return false
}
