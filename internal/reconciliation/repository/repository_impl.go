package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/reconciliation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, tx *gorm.DB, batch *domain.ReconciliationBatch) error {
	return tx.WithContext(ctx).Create(batch).Error
}

func (r *repo) LatestActiveBatch(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) (*domain.ReconciliationBatch, error) {
	var batch domain.ReconciliationBatch
	err := tx.WithContext(ctx).
		Where("payment_id = ? AND undone_at IS NULL", paymentID).
		Order("created_at DESC, id DESC").
		First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNothingToUndo
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repo) MarkUndone(ctx context.Context, tx *gorm.DB, batchID snowflake.ID, at time.Time) error {
	return tx.WithContext(ctx).
		Model(&domain.ReconciliationBatch{}).
		Where("id = ?", batchID).
		Update("undone_at", at).Error
}
