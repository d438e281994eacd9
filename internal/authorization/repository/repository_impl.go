package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/authorization/domain"
	"github.com/carebridge/revcycle/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, auth *domain.Authorization) error {
	return tx.WithContext(ctx).Create(auth).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.Authorization, error) {
	var auth domain.Authorization
	err := tx.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&auth).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAuthorizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &auth, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Authorization, error) {
	var auth domain.Authorization
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("id = ?", id).
		First(&auth).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAuthorizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &auth, nil
}

func (r *repo) FindByClient(ctx context.Context, tx *gorm.DB, orgID, clientID snowflake.ID) ([]domain.Authorization, error) {
	var auths []domain.Authorization
	err := tx.WithContext(ctx).
		Where("org_id = ? AND client_id = ?", orgID, clientID).
		Order("start_date DESC").
		Find(&auths).Error
	return auths, err
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, auth *domain.Authorization) error {
	return tx.WithContext(ctx).Save(auth).Error
}

func (r *repo) ExpireDue(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, asOf time.Time) (int64, error) {
	res := tx.WithContext(ctx).
		Model(&domain.Authorization{}).
		Where("org_id = ? AND status = ? AND end_date < ?", orgID, domain.AuthStatusActive, asOf).
		Updates(map[string]any{"status": domain.AuthStatusExpired, "updated_at": asOf})
	return res.RowsAffected, res.Error
}

func (r *repo) ExpireAllDue(ctx context.Context, tx *gorm.DB, asOf time.Time) (int64, error) {
	res := tx.WithContext(ctx).
		Model(&domain.Authorization{}).
		Where("status = ? AND end_date < ?", domain.AuthStatusActive, asOf).
		Updates(map[string]any{"status": domain.AuthStatusExpired, "updated_at": asOf})
	return res.RowsAffected, res.Error
}
