package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ReferenceRepository 税务参考数据 (机关、税区、税率矩阵)
type ReferenceRepository interface {
	FindAuthority(ctx context.Context, tx *gorm.DB, id string) (*TaxAuthority, error)
	ListAuthorities(ctx context.Context) ([]TaxAuthority, error)
	UpsertAuthority(ctx context.Context, tx *gorm.DB, a *TaxAuthority) error

	// ZoneAuthorities 返回税区下的机关，未按层级排序
	ZoneAuthorities(ctx context.Context, tx *gorm.DB, key string) ([]TaxAuthority, error)
	ReplaceZone(ctx context.Context, tx *gorm.DB, key string, authorityIDs []string) error

	// RulesFor 返回 (机关, 类型) 的全部规则，调用方按日期挑选
	RulesFor(ctx context.Context, authorityIDs []string, itemTypes []ItemType) ([]TaxRule, error)
	ListRules(ctx context.Context, tx *gorm.DB, authorityID string, itemType ItemType) ([]TaxRule, error)
	CreateRule(ctx context.Context, tx *gorm.DB, r *TaxRule) error
}

// LedgerRepository 税务台账
type LedgerRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, records []TaxLedgerRecord) error
	ListByEntry(ctx context.Context, tx *gorm.DB, entryID int64) ([]TaxLedgerRecord, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]TaxLedgerRecord, error)
}

// ZoneCache 税区 -> 已排序机关列表的缓存
type ZoneCache interface {
	Get(ctx context.Context, key string) ([]TaxAuthority, bool, error)
	Set(ctx context.Context, key string, authorities []TaxAuthority) error
	Invalidate(ctx context.Context) error
}
