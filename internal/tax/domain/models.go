package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Level 税务机关层级；同一税区内按层级排序
type Level string

const (
	LevelState   Level = "state"
	LevelCounty  Level = "county"
	LevelCity    Level = "city"
	LevelSpecial Level = "special"
)

// Rank 层级排序值 (州 -> 县 -> 市 -> 特别区)
func (l Level) Rank() int {
	switch l {
	case LevelState:
		return 0
	case LevelCounty:
		return 1
	case LevelCity:
		return 2
	case LevelSpecial:
		return 3
	default:
		return 99
	}
}

func (l Level) Valid() bool { return l.Rank() < 99 }

// ItemType 计税明细类型
type ItemType string

const (
	ItemLabor        ItemType = "labor"
	ItemParts        ItemType = "parts"
	ItemFreight      ItemType = "freight"
	ItemSubscription ItemType = "subscription"
	ItemOther        ItemType = "other"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemLabor, ItemParts, ItemFreight, ItemSubscription, ItemOther:
		return true
	}
	return false
}

// TaxAuthority 税务机关
// 对应数据库表: gl_tax_authorities
type TaxAuthority struct {
	ID        string `gorm:"primaryKey;type:varchar(32)"` // 例如 "CA", "CA-LA", "CA-LA-PAS"
	Name      string `gorm:"type:varchar(128);not null"`
	Level     Level  `gorm:"type:varchar(16);not null"`
	ParentID  string `gorm:"type:varchar(32);index"` // 市级税率叠加在县、州之上
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TaxAuthority) TableName() string {
	return "gl_tax_authorities"
}

// ZoneAuthority 税区与税务机关的映射
// 对应数据库表: gl_tax_zone_authorities
type ZoneAuthority struct {
	ZoneKey     string `gorm:"primaryKey;type:varchar(32)"`
	AuthorityID string `gorm:"primaryKey;type:varchar(32);index"`
	Position    int    `gorm:"not null;default:0"`
}

func (ZoneAuthority) TableName() string {
	return "gl_tax_zone_authorities"
}

// TaxRule 税率矩阵中的一条规则 (authority, item_type, 生效区间)
// 对应数据库表: gl_tax_rules
type TaxRule struct {
	ID            int64               `gorm:"primaryKey;autoIncrement"`
	AuthorityID   string              `gorm:"type:varchar(32);not null;index:idx_tax_rule_lookup,priority:1"`
	ItemType      ItemType            `gorm:"type:varchar(16);not null;index:idx_tax_rule_lookup,priority:2"`
	IsTaxable     bool                `gorm:"not null"` // 不设默认值：false 必须写入
	Rate          decimal.Decimal     `gorm:"type:decimal(9,6);not null"`
	CapAmount     decimal.NullDecimal `gorm:"type:decimal(20,2)"`
	EffectiveFrom time.Time           `gorm:"not null"`
	EffectiveTo   *time.Time          // 含当天；nil 表示长期有效
	CreatedAt     time.Time
}

func (TaxRule) TableName() string {
	return "gl_tax_rules"
}

// ActiveOn 规则在给定日期是否生效
func (r *TaxRule) ActiveOn(date time.Time) bool {
	if date.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || !date.After(*r.EffectiveTo)
}

// Overlaps 两条规则的生效区间是否相交
func (r *TaxRule) Overlaps(o *TaxRule) bool {
	if r.EffectiveTo != nil && r.EffectiveTo.Before(o.EffectiveFrom) {
		return false
	}
	if o.EffectiveTo != nil && o.EffectiveTo.Before(r.EffectiveFrom) {
		return false
	}
	return true
}

// TaxLedgerRecord 税务台账：每个 (明细行, 税务机关) 一行
// 与其支撑的分录在同一个事务中写入
// 对应数据库表: gl_tax_ledger
type TaxLedgerRecord struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	EntryID       int64           `gorm:"not null;index"`
	SourceType    string          `gorm:"type:varchar(32);not null"`
	SourceID      string          `gorm:"type:varchar(64);not null"`
	LineRef       string          `gorm:"type:varchar(64)"`
	AuthorityID   string          `gorm:"type:varchar(32);not null;index"`
	ItemType      ItemType        `gorm:"type:varchar(16);not null"`
	TaxableAmount decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null"` // 冲销行为负数
	TxnDate       time.Time       `gorm:"not null;index"`
	CreatedAt     time.Time
}

func (TaxLedgerRecord) TableName() string {
	return "gl_tax_ledger"
}

// Negate 冲销分录使用的镜像记录
func (r TaxLedgerRecord) Negate(entryID int64, date time.Time) TaxLedgerRecord {
	return TaxLedgerRecord{
		EntryID:       entryID,
		SourceType:    r.SourceType,
		SourceID:      r.SourceID,
		LineRef:       r.LineRef,
		AuthorityID:   r.AuthorityID,
		ItemType:      r.ItemType,
		TaxableAmount: r.TaxableAmount.Neg(),
		TaxAmount:     r.TaxAmount.Neg(),
		TxnDate:       date,
	}
}

// LineItem 计税输入
type LineItem struct {
	Ref           string
	ItemType      ItemType
	TaxableAmount decimal.Decimal
}

// TaxResult 计税结果
type TaxResult struct {
	Records     []TaxLedgerRecord
	ByAuthority map[string]decimal.Decimal
	Authorities []TaxAuthority // 税区内按层级排序的机关
	Total       decimal.Decimal
}

// LiabilityLine 按机关汇总的应缴税额
type LiabilityLine struct {
	AuthorityID   string
	TaxableAmount decimal.Decimal
	TaxAmount     decimal.Decimal
}
