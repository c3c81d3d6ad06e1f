package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Account 会计科目实体 (科目表由外部维护，这里只读)
// 对应数据库表: gl_accounts
type Account struct {
	ID          int64         `gorm:"primaryKey;autoIncrement"`
	AccountCode string        `gorm:"uniqueIndex;type:varchar(32);not null"`
	Name        string        `gorm:"type:varchar(100);not null"`
	Type        AccountType   `gorm:"type:smallint;not null"`
	Currency    string        `gorm:"type:char(3);default:'USD';not null"`
	Status      AccountStatus `gorm:"type:smallint;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Account) TableName() string {
	return "gl_accounts"
}

func (a *Account) Archived() bool { return a.Status == AccountArchived }

// JournalEntry 凭证主表实体
// 过账后财务字段不可变，唯一的可变字段是 Memo 和作废标记
// 对应数据库表: gl_journal_entries
type JournalEntry struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	EntryNumber int64      `gorm:"uniqueIndex;not null"` // 数据库计数器分配，无重复
	SourceType  SourceType `gorm:"type:varchar(32);not null;uniqueIndex:idx_entry_source,priority:1"`
	SourceID    string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_entry_source,priority:2"`
	EntryDate   time.Time  `gorm:"not null;index"`
	PeriodID    int64      `gorm:"not null;index"`
	Memo        string     `gorm:"type:text"`
	PostedBy    string     `gorm:"type:varchar(64);not null"`
	PostedAt    time.Time  `gorm:"not null"`
	Voided      bool       `gorm:"not null;default:false"`
	VoidedAt    *time.Time
	VoidedBy    string `gorm:"type:varchar(64)"`
	VoidReason  string `gorm:"type:text"`
	ReversalOf  *int64 `gorm:"index"` // 冲销分录指向原分录
	ReversedBy  *int64 // 原分录指向冲销分录
	CreatedAt   time.Time

	// 关联关系 (一对多)
	Lines []JournalLine `gorm:"foreignKey:EntryID"`
}

func (JournalEntry) TableName() string {
	return "gl_journal_entries"
}

// IsReversal 是否为作废生成的冲销分录
func (e *JournalEntry) IsReversal() bool { return e.ReversalOf != nil }

// Snapshot 审计用的完整快照
func (e *JournalEntry) Snapshot() map[string]any {
	lines := make([]any, len(e.Lines))
	for i, l := range e.Lines {
		m := map[string]any{
			"account_id": l.AccountID,
			"direction":  string(l.Direction),
			"amount":     l.Amount.StringFixed(2),
		}
		if l.Jurisdiction != "" {
			m["jurisdiction"] = l.Jurisdiction
		}
		lines[i] = m
	}
	s := map[string]any{
		"entry_number": e.EntryNumber,
		"source":       string(e.SourceType) + ":" + e.SourceID,
		"entry_date":   e.EntryDate.Format(time.DateOnly),
		"period_id":    e.PeriodID,
		"memo":         e.Memo,
		"voided":       e.Voided,
		"lines":        lines,
	}
	if e.ReversalOf != nil {
		s["reversal_of"] = strconv.FormatInt(*e.ReversalOf, 10)
	}
	if e.ReversedBy != nil {
		s["reversed_by"] = strconv.FormatInt(*e.ReversedBy, 10)
	}
	return s
}

// JournalLine 分录行实体
// 对应数据库表: gl_journal_lines
type JournalLine struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	EntryID      int64           `gorm:"not null;index"`
	LineNo       int             `gorm:"not null"`
	AccountID    int64           `gorm:"not null;index"`
	Direction    Direction       `gorm:"type:char(1);not null"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null"` // 必须 > 0
	Jurisdiction string          `gorm:"type:varchar(32)"`            // 税额行对应的税务机关
	Memo         string          `gorm:"type:varchar(255)"`
}

func (JournalLine) TableName() string {
	return "gl_journal_lines"
}

// LineRow 试算平衡用的分录行 (带科目和凭证状态)
type LineRow struct {
	AccountID   int64
	AccountCode string
	AccountName string
	AccountType AccountType
	Direction   Direction
	Amount      decimal.Decimal
	Voided      bool
	ReversalOf  *int64
}
