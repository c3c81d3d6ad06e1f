package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AccountRepository 定义科目仓储接口
// 这是一个 Port (端口)，Adapter (适配器) 在基础设施层实现
type AccountRepository interface {
	// FindByCodes 批量按代码查询 (记账时查找)，不存在的代码不出现在结果中
	FindByCodes(ctx context.Context, tx *gorm.DB, codes []string) (map[string]*Account, error)

	List(ctx context.Context) ([]Account, error)

	// Upsert 种子数据使用
	Upsert(ctx context.Context, tx *gorm.DB, a *Account) error
}

// EntryRepository 定义凭证仓储接口
// 没有 Delete：凭证只能作废
type EntryRepository interface {
	// Create 保存凭证主表和分录行 (在调用方事务中)
	Create(ctx context.Context, tx *gorm.DB, e *JournalEntry) error

	// FindByID forUpdate 为 true 时加排他行锁
	FindByID(ctx context.Context, tx *gorm.DB, id int64, forUpdate bool) (*JournalEntry, error)

	// ExistsBySource 幂等性检查
	ExistsBySource(ctx context.Context, tx *gorm.DB, st SourceType, sourceID string) (bool, error)

	// MarkVoided 条件更新 voided=false -> true，返回受影响行数
	MarkVoided(ctx context.Context, tx *gorm.DB, id int64, reversalID int64, by string, reason string, at time.Time) (int64, error)

	UpdateMemo(ctx context.Context, tx *gorm.DB, id int64, memo string) error

	// ListLines 日期区间 (含两端) 内的全部分录行
	ListLines(ctx context.Context, from, to time.Time) ([]LineRow, error)
}
