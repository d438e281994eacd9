package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/payer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payer *domain.Payer) error {
	return db.WithContext(ctx).Create(payer).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Payer, error) {
	var payer domain.Payer
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&payer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPayerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payer, nil
}

func (r *repo) FindByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.Payer, error) {
	var payers []domain.Payer
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("code ASC").
		Find(&payers).Error
	return payers, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, payer *domain.Payer) error {
	return db.WithContext(ctx).Save(payer).Error
}
