package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/xxz807/fieldledger/internal/audit/domain"
)

type PostgresRecordRepo struct {
	db *gorm.DB
}

func NewRecordRepo(db *gorm.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

func (r *PostgresRecordRepo) Create(ctx context.Context, tx *gorm.DB, rec *domain.Record) error {
	// 注意：必须使用传入的 tx (事务会话)，而不是 r.db
	return tx.WithContext(ctx).Create(rec).Error
}

func (r *PostgresRecordRepo) ListByTarget(ctx context.Context, targetType domain.TargetType, targetID string) ([]domain.Record, error) {
	var out []domain.Record
	err := r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
