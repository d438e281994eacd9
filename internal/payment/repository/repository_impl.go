package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/payment/domain"
	"github.com/carebridge/revcycle/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, payment *domain.Payment) error {
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := tx.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("id = ?", id).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, req domain.ListPaymentsRequest) ([]domain.Payment, error) {
	q := tx.WithContext(ctx).Where("org_id = ?", orgID)
	if req.PayerID != 0 {
		q = q.Where("payer_id = ?", req.PayerID)
	}
	if req.ReconciliationStatus != "" {
		q = q.Where("reconciliation_status = ?", req.ReconciliationStatus)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	var payments []domain.Payment
	err := q.Order("payment_date DESC, id DESC").Limit(limit).Find(&payments).Error
	return payments, err
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, payment *domain.Payment) error {
	return tx.WithContext(ctx).Save(payment).Error
}

func (r *repo) InsertClaimPayment(ctx context.Context, tx *gorm.DB, cp *domain.ClaimPayment) error {
	return tx.WithContext(ctx).Create(cp).Error
}

func (r *repo) DeleteClaimPayment(ctx context.Context, tx *gorm.DB, cp *domain.ClaimPayment) error {
	if err := tx.WithContext(ctx).
		Where("claim_payment_id = ?", cp.ID).
		Delete(&domain.PaymentAdjustment{}).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Delete(cp).Error
}

func (r *repo) ClaimPaymentsByPayment(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) ([]domain.ClaimPayment, error) {
	var cps []domain.ClaimPayment
	err := tx.WithContext(ctx).
		Preload("Adjustments").
		Where("payment_id = ?", paymentID).
		Order("created_at ASC, id ASC").
		Find(&cps).Error
	return cps, err
}

func (r *repo) ClaimPaymentsByBatch(ctx context.Context, tx *gorm.DB, batchID snowflake.ID) ([]domain.ClaimPayment, error) {
	var cps []domain.ClaimPayment
	err := tx.WithContext(ctx).
		Preload("Adjustments").
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Find(&cps).Error
	return cps, err
}

func (r *repo) ClaimPaymentsByClaim(ctx context.Context, tx *gorm.DB, claimID snowflake.ID) ([]domain.ClaimPayment, error) {
	var cps []domain.ClaimPayment
	err := tx.WithContext(ctx).
		Preload("Adjustments").
		Where("claim_id = ?", claimID).
		Order("created_at ASC, id ASC").
		Find(&cps).Error
	return cps, err
}

func (r *repo) PaidTotalsByClaims(ctx context.Context, tx *gorm.DB, claimIDs []snowflake.ID) (map[snowflake.ID]int64, error) {
	totals := make(map[snowflake.ID]int64, len(claimIDs))
	if len(claimIDs) == 0 {
		return totals, nil
	}

	type row struct {
		ClaimID snowflake.ID
		Total   int64
	}
	var rows []row
	err := tx.WithContext(ctx).
		Model(&domain.ClaimPayment{}).
		Select("claim_id, COALESCE(SUM(paid_amount_cents), 0) AS total").
		Where("claim_id IN ?", claimIDs).
		Group("claim_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		totals[r.ClaimID] = r.Total
	}
	return totals, nil
}
