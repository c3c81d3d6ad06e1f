package domain

import (
	"context"

	"gorm.io/gorm"
)

// RecordRepository 审计仓储，只有新增和查询
type RecordRepository interface {
	// Create 必须使用调用方的事务，保证 "审计与变更同生共死"
	Create(ctx context.Context, tx *gorm.DB, r *Record) error

	// ListByTarget 按时间顺序返回某对象的审计历史
	ListByTarget(ctx context.Context, targetType TargetType, targetID string) ([]Record, error)
}
