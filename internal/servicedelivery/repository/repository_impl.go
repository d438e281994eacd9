package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/servicedelivery/domain"
	"github.com/carebridge/revcycle/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, svc *domain.DeliveredService) error {
	return tx.WithContext(ctx).Create(svc).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.DeliveredService, error) {
	var svc domain.DeliveredService
	err := tx.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&svc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (r *repo) FindByIDs(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]domain.DeliveredService, error) {
	var svcs []domain.DeliveredService
	err := tx.WithContext(ctx).
		Where("org_id = ? AND id IN ?", orgID, ids).
		Find(&svcs).Error
	return svcs, err
}

func (r *repo) FindByIDsForUpdate(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]domain.DeliveredService, error) {
	var svcs []domain.DeliveredService
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND id IN ?", orgID, ids).
		Order("id ASC").
		Find(&svcs).Error
	return svcs, err
}

func (r *repo) FindByClaim(ctx context.Context, tx *gorm.DB, orgID, claimID snowflake.ID) ([]domain.DeliveredService, error) {
	var svcs []domain.DeliveredService
	err := tx.WithContext(ctx).
		Where("org_id = ? AND claim_id = ?", orgID, claimID).
		Order("service_date ASC").
		Find(&svcs).Error
	return svcs, err
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, req domain.ListServicesRequest) ([]domain.DeliveredService, error) {
	q := tx.WithContext(ctx).Where("org_id = ?", orgID)
	if req.ClientID != 0 {
		q = q.Where("client_id = ?", req.ClientID)
	}
	if req.BillingStatus != "" {
		q = q.Where("billing_status = ?", req.BillingStatus)
	}
	if req.ClaimID != 0 {
		q = q.Where("claim_id = ?", req.ClaimID)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	var svcs []domain.DeliveredService
	err := q.Order("service_date DESC, id DESC").Limit(limit).Find(&svcs).Error
	return svcs, err
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, svc *domain.DeliveredService) error {
	return tx.WithContext(ctx).Save(svc).Error
}

// ProgramAmountsByClaims sums service amounts per (claim, program), used to
// attribute claim balances to programs in aging reports.
func (r *repo) ProgramAmountsByClaims(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, claimIDs []snowflake.ID) (map[snowflake.ID]map[snowflake.ID]int64, error) {
	out := make(map[snowflake.ID]map[snowflake.ID]int64, len(claimIDs))
	if len(claimIDs) == 0 {
		return out, nil
	}

	type row struct {
		ClaimID   snowflake.ID
		ProgramID snowflake.ID
		Total     int64
	}
	var rows []row
	err := tx.WithContext(ctx).
		Model(&domain.DeliveredService{}).
		Select("claim_id, program_id, COALESCE(SUM(amount_cents), 0) AS total").
		Where("org_id = ? AND claim_id IN ?", orgID, claimIDs).
		Group("claim_id, program_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if out[r.ClaimID] == nil {
			out[r.ClaimID] = make(map[snowflake.ID]int64)
		}
		out[r.ClaimID][r.ProgramID] = r.Total
	}
	return out, nil
}
