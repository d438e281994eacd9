package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/claim/domain"
	"github.com/carebridge/revcycle/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// openStatuses are the non-terminal states carrying outstanding balance.
var openStatuses = []domain.ClaimStatus{
	domain.StatusDraft, domain.StatusValidated, domain.StatusSubmitted,
	domain.StatusAcknowledged, domain.StatusPending, domain.StatusPartialPaid,
	domain.StatusDenied, domain.StatusAppealed,
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, claim *domain.Claim) error {
	return tx.WithContext(ctx).Create(claim).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.Claim, error) {
	var claim domain.Claim
	err := tx.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrClaimNotFound
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Claim, error) {
	var claim domain.Claim
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("id = ?", id).
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrClaimNotFound
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *repo) FindByNumber(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, number string) (*domain.Claim, error) {
	var claim domain.Claim
	err := tx.WithContext(ctx).
		Where("org_id = ? AND claim_number = ?", orgID, number).
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrClaimNotFound
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, req domain.ListClaimsRequest) ([]domain.Claim, error) {
	q := tx.WithContext(ctx).Where("org_id = ?", orgID)
	if req.PayerID != 0 {
		q = q.Where("payer_id = ?", req.PayerID)
	}
	if req.ClientID != 0 {
		q = q.Where("client_id = ?", req.ClientID)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	var claims []domain.Claim
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&claims).Error
	return claims, err
}

func (r *repo) ListOutstandingByPayer(ctx context.Context, tx *gorm.DB, orgID, payerID snowflake.ID) ([]domain.Claim, error) {
	var claims []domain.Claim
	err := tx.WithContext(ctx).
		Where("org_id = ? AND payer_id = ? AND status IN ?", orgID, payerID, openStatuses).
		Order("service_end_date ASC, id ASC").
		Find(&claims).Error
	return claims, err
}

func (r *repo) ListOutstanding(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) ([]domain.Claim, error) {
	var claims []domain.Claim
	err := tx.WithContext(ctx).
		Where("org_id = ? AND status IN ?", orgID, openStatuses).
		Order("service_end_date ASC, id ASC").
		Find(&claims).Error
	return claims, err
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, claim *domain.Claim) error {
	return tx.WithContext(ctx).Save(claim).Error
}

// NextClaimNumber bumps the per-org yearly counter under a row lock so two
// concurrent conversions never mint the same number.
func (r *repo) NextClaimNumber(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, year int) (string, error) {
	var counter domain.ClaimCounter
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND year = ?", orgID, year).
		First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		counter = domain.ClaimCounter{OrgID: orgID, Year: year}
		if err := tx.WithContext(ctx).Create(&counter).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	counter.LastSeq++
	if err := tx.WithContext(ctx).
		Model(&domain.ClaimCounter{}).
		Where("org_id = ? AND year = ?", orgID, year).
		Update("last_seq", counter.LastSeq).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("CLM-%d-%06d", year, counter.LastSeq), nil
}
