package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// LockMode 读期间时对行加锁的强度
type LockMode int

const (
	LockNone   LockMode = iota
	LockShare           // 过账：阻止并发关账，但不互相阻塞
	LockUpdate          // 关账/重开：独占
)

// PeriodRepository 期间仓储接口，所有方法都在调用方事务中执行
type PeriodRepository interface {
	FindByID(ctx context.Context, tx *gorm.DB, id int64, lock LockMode) (*AccountingPeriod, error)

	// FindByDate 返回包含该日期的期间，找不到返回 ErrPeriodNotFound
	FindByDate(ctx context.Context, tx *gorm.DB, date time.Time, lock LockMode) (*AccountingPeriod, error)

	// CountOverlapping 与 [start, end] 有交集的期间数量
	CountOverlapping(ctx context.Context, tx *gorm.DB, start, end time.Time) (int64, error)

	// Bounds 现有期间的最早开始日和最晚结束日
	Bounds(ctx context.Context, tx *gorm.DB) (first, last time.Time, ok bool, err error)

	Create(ctx context.Context, tx *gorm.DB, p *AccountingPeriod) error

	// Transition 条件更新状态 (WHERE status IN from)，返回影响行数
	Transition(ctx context.Context, tx *gorm.DB, id int64, from []Status, to Status, fields map[string]any) (int64, error)

	List(ctx context.Context) ([]AccountingPeriod, error)
}
