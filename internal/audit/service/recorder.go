package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/xxz807/fieldledger/internal/audit/domain"
	"github.com/xxz807/fieldledger/internal/platform/actor"
	"github.com/xxz807/fieldledger/internal/platform/errkind"
)

// Event 一次变更尝试的描述 (Input)
type Event struct {
	TargetType domain.TargetType
	TargetID   string
	Action     domain.Action
	Before     map[string]any
	After      map[string]any
	Reason     string
	Actor      actor.Actor
}

// Recorder 审计记录器，gl_audit_records 的唯一写入方
type Recorder struct {
	db     *gorm.DB
	repo   domain.RecordRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(db *gorm.DB, repo domain.RecordRepository, logger *zap.Logger) *Recorder {
	return &Recorder{
		db:     db,
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock 测试时替换时钟
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record 在调用方事务内写入一条 "已接受" 的审计记录
// 写入失败返回 ErrAuditWriteFailed，调用方的事务随之回滚 (audit-or-nothing)
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, ev Event) error {
	if ev.TargetType == domain.TargetJournalEntry && ev.Action.RequiresReason() && ev.Reason == "" {
		return fmt.Errorf("%w: %s on %s/%s requires a reason", domain.ErrAuditWriteFailed, ev.Action, ev.TargetType, ev.TargetID)
	}
	rec := r.build(ctx, ev, domain.OutcomeAccepted, "")
	if err := r.repo.Create(ctx, tx, rec); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAuditWriteFailed, err)
	}
	return nil
}

// RecordRejection 记录被拒绝的变更尝试
// 主事务已经回滚，所以这里单独开一个事务
func (r *Recorder) RecordRejection(ctx context.Context, ev Event, cause error) error {
	rec := r.build(ctx, ev, domain.OutcomeRejected, errkind.Of(cause))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.repo.Create(ctx, tx, rec)
	})
	if err != nil {
		r.logger.Error("failed to record rejected mutation",
			zap.String("target_type", string(ev.TargetType)),
			zap.String("target_id", ev.TargetID),
			zap.String("action", string(ev.Action)),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", domain.ErrAuditWriteFailed, err)
	}
	return nil
}

// Reject 记录拒绝并返回原始错误；审计本身失败时两个错误一起返回
func (r *Recorder) Reject(ctx context.Context, ev Event, cause error) error {
	if errors.Is(cause, domain.ErrAuditWriteFailed) {
		return cause
	}
	if err := r.RecordRejection(ctx, ev, cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// History 查询某对象的审计历史
func (r *Recorder) History(ctx context.Context, targetType domain.TargetType, targetID string) ([]domain.Record, error) {
	return r.repo.ListByTarget(ctx, targetType, targetID)
}

func (r *Recorder) build(ctx context.Context, ev Event, outcome domain.Outcome, kind string) *domain.Record {
	a := ev.Actor
	if a.ID == "" {
		if fromCtx, ok := actor.FromContext(ctx); ok {
			a = fromCtx
		}
	}
	return &domain.Record{
		TargetType:  ev.TargetType,
		TargetID:    ev.TargetID,
		Action:      ev.Action,
		Outcome:     outcome,
		ErrorKind:   kind,
		Before:      ev.Before,
		After:       ev.After,
		Reason:      ev.Reason,
		ActorID:     a.ID,
		ActorRole:   string(a.Role),
		ActorOrigin: a.Origin,
		RequestID:   a.RequestID,
		CreatedAt:   r.now(),
	}
}

// Diff 只保留发生变化的字段，控制审计记录大小
func Diff(before, after map[string]any) (map[string]any, map[string]any) {
	b := make(map[string]any)
	a := make(map[string]any)
	for k, av := range after {
		bv, ok := before[k]
		if !ok || !reflect.DeepEqual(bv, av) {
			if ok {
				b[k] = bv
			}
			a[k] = av
		}
	}
	for k, bv := range before {
		if _, ok := after[k]; !ok {
			b[k] = bv
		}
	}
	return b, a
}
