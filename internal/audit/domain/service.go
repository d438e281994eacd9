package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	Action     string     `form:"action"`
	TargetType string     `form:"target_type"`
	TargetID   string     `form:"target_id"`
	StartAt    *time.Time `form:"start_at"`
	EndAt      *time.Time `form:"end_at"`
	Limit      int        `form:"limit"`
}

type ListAuditLogResponse struct {
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Service records and queries the audit trail. Record resolves the acting
// org and principal from the request context; core operations never carry
// ambient actor state.
type Service interface {
	Record(ctx context.Context, action, targetType, targetID string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

type ListFilter struct {
	OrgID      int64
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Limit      int
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
)
