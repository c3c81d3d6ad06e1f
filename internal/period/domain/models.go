package domain

import (
	"time"
)

// Status 会计期间状态
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosing Status = "closing" // 软关账：拒绝新过账，允许作废更正
	StatusClosed  Status = "closed"  // 硬关账：终态，只能通过 reopen 撤销
)

// AccountingPeriod 会计期间实体
// 对应数据库表: gl_accounting_periods
type AccountingPeriod struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	Name             string    `gorm:"uniqueIndex;type:varchar(32);not null"`
	StartDate        time.Time `gorm:"not null;index"`
	EndDate          time.Time `gorm:"not null;index"` // 含当天
	Status           Status    `gorm:"type:varchar(16);not null;default:'open'"`
	CreatedBy        string    `gorm:"type:varchar(64)"`
	ClosingStartedAt *time.Time
	ClosingStartedBy string `gorm:"type:varchar(64)"`
	ClosedAt         *time.Time
	ClosedBy         string `gorm:"type:varchar(64)"`
	ReopenedAt       *time.Time
	ReopenedBy       string `gorm:"type:varchar(64)"`
	ReopenReason     string `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (AccountingPeriod) TableName() string {
	return "gl_accounting_periods"
}

// Contains 日期是否落在期间内 (按天比较)
func (p *AccountingPeriod) Contains(date time.Time) bool {
	d := DateOf(date)
	return !d.Before(DateOf(p.StartDate)) && !d.After(DateOf(p.EndDate))
}

// Snapshot 审计用的状态字段快照
func (p *AccountingPeriod) Snapshot() map[string]any {
	return map[string]any{
		"status": string(p.Status),
	}
}

// DateOf 归一化为 UTC 零点，所有期间比较都基于这个值
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
