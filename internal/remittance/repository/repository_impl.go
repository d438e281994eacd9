package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/carebridge/revcycle/internal/payment/domain"
	"github.com/carebridge/revcycle/internal/remittance/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// ProvideLookup exposes remittance lines to the payment matcher.
func ProvideLookup() paymentdomain.RemittanceLookup {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, info *domain.RemittanceInfo) error {
	return tx.WithContext(ctx).Create(info).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.RemittanceInfo, error) {
	var info domain.RemittanceInfo
	err := tx.WithContext(ctx).
		Preload("Details").
		Where("org_id = ? AND id = ?", orgID, id).
		First(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRemittanceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *repo) MarkDetailMatched(ctx context.Context, tx *gorm.DB, detailID snowflake.ID) error {
	return tx.WithContext(ctx).
		Model(&domain.RemittanceDetail{}).
		Where("id = ?", detailID).
		Update("matched", true).Error
}

func (r *repo) LinesForRemittance(ctx context.Context, tx *gorm.DB, remittanceID snowflake.ID) ([]paymentdomain.RemitLine, error) {
	var details []domain.RemittanceDetail
	err := tx.WithContext(ctx).
		Where("remittance_id = ?", remittanceID).
		Order("id ASC").
		Find(&details).Error
	if err != nil {
		return nil, err
	}
	lines := make([]paymentdomain.RemitLine, 0, len(details))
	for _, d := range details {
		lines = append(lines, paymentdomain.RemitLine{
			ClaimNumber:     d.ClaimNumber,
			PaidAmountCents: d.PaidAmountCents,
		})
	}
	return lines, nil
}
