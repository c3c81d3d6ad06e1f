package domain

import (
	"errors"
	"time"

	"github.com/xxz807/fieldledger/internal/platform/errkind"
)

// Action 审计动作
type Action string

const (
	ActionInsert        Action = "insert"
	ActionUpdate        Action = "update"
	ActionVoid          Action = "void"
	ActionDeleteAttempt Action = "delete_attempt"
)

// Outcome 变更尝试的结果 (被拒绝的尝试同样留痕)
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// TargetType 被审计对象的类型
type TargetType string

const (
	TargetJournalEntry TargetType = "journal_entry"
	TargetPeriod       TargetType = "accounting_period"
	TargetTaxAuthority TargetType = "tax_authority"
	TargetTaxZone      TargetType = "tax_zone"
	TargetTaxRule      TargetType = "tax_rule"
)

// ErrAuditWriteFailed 审计写入失败，外层事务必须整体回滚
var ErrAuditWriteFailed = errors.New("audit: write failed")

func init() {
	errkind.Register(ErrAuditWriteFailed, "AuditWriteFailed")
}

// Record 审计记录实体 (只追加，不修改)
// 对应数据库表: gl_audit_records
type Record struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	TargetType  TargetType     `gorm:"type:varchar(32);not null;index:idx_audit_target,priority:1"`
	TargetID    string         `gorm:"type:varchar(64);not null;index:idx_audit_target,priority:2"` // 松散引用，不加外键
	Action      Action         `gorm:"type:varchar(16);not null"`
	Outcome     Outcome        `gorm:"type:varchar(16);not null"`
	ErrorKind   string         `gorm:"type:varchar(64)"`
	Before      map[string]any `gorm:"serializer:json;type:text"`
	After       map[string]any `gorm:"serializer:json;type:text"`
	Reason      string         `gorm:"type:text"`
	ActorID     string         `gorm:"type:varchar(64);not null;index"`
	ActorRole   string         `gorm:"type:varchar(32);not null"`
	ActorOrigin string         `gorm:"type:varchar(64)"`
	RequestID   string         `gorm:"type:varchar(64)"`
	CreatedAt   time.Time      `gorm:"not null;index"`
}

func (Record) TableName() string {
	return "gl_audit_records"
}

// RequiresReason 作废和修改已过账分录必须填写原因
func (a Action) RequiresReason() bool {
	return a == ActionVoid || a == ActionUpdate
}
