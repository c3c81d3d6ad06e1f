package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/xxz807/fieldledger/internal/audit/domain"
	auditservice "github.com/xxz807/fieldledger/internal/audit/service"
	"github.com/xxz807/fieldledger/internal/period/domain"
	"github.com/xxz807/fieldledger/internal/platform/actor"
	"github.com/xxz807/fieldledger/internal/platform/database"
)

// CreatePeriodRequest 新建期间的请求 (Input)
type CreatePeriodRequest struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// Manager 期间管理：所有账本写入的闸门
type Manager struct {
	db       *gorm.DB
	repo     domain.PeriodRepository
	recorder *auditservice.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewManager(db *gorm.DB, repo domain.PeriodRepository, recorder *auditservice.Recorder, logger *zap.Logger) *Manager {
	return &Manager{
		db:       db,
		repo:     repo,
		recorder: recorder,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock 测试时替换时钟
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// GetPeriodFor 查询日期所在期间 (只读，不加锁)
func (m *Manager) GetPeriodFor(ctx context.Context, date time.Time) (*domain.AccountingPeriod, error) {
	p, err := m.repo.FindByDate(ctx, m.db, date, domain.LockNone)
	return p, database.Classify(err)
}

// GetPeriod 按 ID 查询
func (m *Manager) GetPeriod(ctx context.Context, id int64) (*domain.AccountingPeriod, error) {
	p, err := m.repo.FindByID(ctx, m.db, id, domain.LockNone)
	return p, database.Classify(err)
}

// List 所有期间，按开始日期排序
func (m *Manager) List(ctx context.Context) ([]domain.AccountingPeriod, error) {
	out, err := m.repo.List(ctx)
	return out, database.Classify(err)
}

// ==========================================
// 闸门：必须在调用方的事务中执行
// ==========================================

// CheckPostable 新过账只允许进入 open 期间
// 共享锁阻止并发关账在本事务提交前生效
func (m *Manager) CheckPostable(ctx context.Context, tx *gorm.DB, date time.Time) (*domain.AccountingPeriod, error) {
	p, err := m.repo.FindByDate(ctx, tx, date, domain.LockShare)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case domain.StatusOpen:
		return p, nil
	case domain.StatusClosing:
		return nil, &domain.PeriodError{Kind: domain.ErrPeriodClosing, PeriodID: p.ID, Date: domain.DateOf(date)}
	default:
		return nil, &domain.PeriodError{Kind: domain.ErrPeriodClosed, PeriodID: p.ID, Date: domain.DateOf(date)}
	}
}

// CheckAmendable 作废/修改已有分录：closing 期间仍允许 (最后的更正窗口)
func (m *Manager) CheckAmendable(ctx context.Context, tx *gorm.DB, date time.Time) (*domain.AccountingPeriod, error) {
	p, err := m.repo.FindByDate(ctx, tx, date, domain.LockShare)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.StatusClosed {
		return nil, &domain.PeriodError{Kind: domain.ErrPeriodClosed, PeriodID: p.ID, Date: domain.DateOf(date)}
	}
	return p, nil
}

// ==========================================
// 期间生命周期
// ==========================================

// CreatePeriod 新建期间：不得重叠，且必须与现有期间首尾相接
func (m *Manager) CreatePeriod(ctx context.Context, req CreatePeriodRequest, a actor.Actor) (*domain.AccountingPeriod, error) {
	start, end := domain.DateOf(req.StartDate), domain.DateOf(req.EndDate)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = start.Format("2006-01")
	}
	ev := auditservice.Event{TargetType: auditdomain.TargetPeriod, TargetID: "new:" + name, Action: auditdomain.ActionInsert, Actor: a}

	if end.Before(start) {
		return nil, m.recorder.Reject(ctx, ev, domain.ErrInvalidRange)
	}

	p := &domain.AccountingPeriod{
		Name:      name,
		StartDate: start,
		EndDate:   end,
		Status:    domain.StatusOpen,
		CreatedBy: a.ID,
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 计数器行锁串行化并发的建期间请求
		if _, err := database.NextValue(ctx, tx, "accounting_period"); err != nil {
			return err
		}

		n, err := m.repo.CountOverlapping(ctx, tx, start, end)
		if err != nil {
			return err
		}
		if n > 0 {
			return &domain.PeriodError{Kind: domain.ErrOverlappingPeriod, Date: start}
		}

		first, last, ok, err := m.repo.Bounds(ctx, tx)
		if err != nil {
			return err
		}
		if ok {
			adjacentAfter := start.Equal(domain.DateOf(last).AddDate(0, 0, 1))
			adjacentBefore := end.Equal(domain.DateOf(first).AddDate(0, 0, -1))
			if !adjacentAfter && !adjacentBefore {
				return &domain.PeriodError{Kind: domain.ErrPeriodGap, Date: start}
			}
		}

		if err := m.repo.Create(ctx, tx, p); err != nil {
			return err
		}
		return m.recorder.Record(ctx, tx, auditservice.Event{
			TargetType: auditdomain.TargetPeriod,
			TargetID:   strconv.FormatInt(p.ID, 10),
			Action:     auditdomain.ActionInsert,
			After: map[string]any{
				"name":       p.Name,
				"start_date": start.Format(time.DateOnly),
				"end_date":   end.Format(time.DateOnly),
				"status":     string(p.Status),
			},
			Actor: a,
		})
	})
	if err != nil {
		return nil, m.recorder.Reject(ctx, ev, database.Classify(err))
	}

	m.logger.Info("accounting period created",
		zap.Int64("period_id", p.ID),
		zap.String("name", p.Name),
		zap.String("actor", a.ID),
	)
	return p, nil
}

// StartClose open -> closing (软关账)
func (m *Manager) StartClose(ctx context.Context, id int64, a actor.Actor) (*domain.AccountingPeriod, error) {
	return m.transition(ctx, id, a, "", func(p *domain.AccountingPeriod) ([]domain.Status, domain.Status, map[string]any, error) {
		switch p.Status {
		case domain.StatusClosing:
			// 重复请求：幂等成功
			return nil, p.Status, nil, nil
		case domain.StatusClosed:
			return nil, "", nil, domain.ErrAlreadyClosed
		}
		return []domain.Status{domain.StatusOpen}, domain.StatusClosing, map[string]any{
			"closing_started_at": m.now(),
			"closing_started_by": a.ID,
		}, nil
	})
}

// ClosePeriod open|closing -> closed
// 并发关账：第二个请求在行锁上等待，随后看到 closed 并返回 ErrAlreadyClosed
func (m *Manager) ClosePeriod(ctx context.Context, id int64, a actor.Actor) (*domain.AccountingPeriod, error) {
	return m.transition(ctx, id, a, "", func(p *domain.AccountingPeriod) ([]domain.Status, domain.Status, map[string]any, error) {
		if p.Status == domain.StatusClosed {
			return nil, "", nil, domain.ErrAlreadyClosed
		}
		now := m.now()
		fields := map[string]any{
			"closed_at": now,
			"closed_by": a.ID,
		}
		if p.ClosingStartedAt == nil {
			// 直接关账时也经过 closing，补齐软关账字段
			fields["closing_started_at"] = now
			fields["closing_started_by"] = a.ID
		}
		return []domain.Status{domain.StatusOpen, domain.StatusClosing}, domain.StatusClosed, fields, nil
	})
}

// ReopenPeriod closed -> open，仅限高权限角色，必须填写原因
// 无论结果如何都会留下审计记录
func (m *Manager) ReopenPeriod(ctx context.Context, id int64, a actor.Actor, reason string) (*domain.AccountingPeriod, error) {
	reason = strings.TrimSpace(reason)
	ev := auditservice.Event{
		TargetType: auditdomain.TargetPeriod,
		TargetID:   strconv.FormatInt(id, 10),
		Action:     auditdomain.ActionUpdate,
		After:      map[string]any{"status": string(domain.StatusOpen)},
		Reason:     reason,
		Actor:      a,
	}
	if !a.IsElevated() {
		return nil, m.recorder.Reject(ctx, ev, &domain.PeriodError{Kind: domain.ErrForbidden, PeriodID: id})
	}
	if reason == "" {
		return nil, m.recorder.Reject(ctx, ev, &domain.PeriodError{Kind: domain.ErrReasonRequired, PeriodID: id})
	}

	return m.transition(ctx, id, a, reason, func(p *domain.AccountingPeriod) ([]domain.Status, domain.Status, map[string]any, error) {
		if p.Status != domain.StatusClosed {
			return nil, "", nil, domain.ErrNotClosed
		}
		return []domain.Status{domain.StatusClosed}, domain.StatusOpen, map[string]any{
			"reopened_at":        m.now(),
			"reopened_by":        a.ID,
			"reopen_reason":      reason,
			"closed_at":          nil,
			"closed_by":          "",
			"closing_started_at": nil,
			"closing_started_by": "",
		}, nil
	})
}

// planFunc 根据当前状态决定迁移；from 为空表示无需更新 (幂等)
type planFunc func(p *domain.AccountingPeriod) (from []domain.Status, to domain.Status, fields map[string]any, err error)

func (m *Manager) transition(ctx context.Context, id int64, a actor.Actor, reason string, plan planFunc) (*domain.AccountingPeriod, error) {
	ev := auditservice.Event{
		TargetType: auditdomain.TargetPeriod,
		TargetID:   strconv.FormatInt(id, 10),
		Action:     auditdomain.ActionUpdate,
		Reason:     reason,
		Actor:      a,
	}

	var result *domain.AccountingPeriod
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := m.repo.FindByID(ctx, tx, id, domain.LockUpdate)
		if err != nil {
			return err
		}
		from, to, fields, err := plan(p)
		if err != nil {
			return &domain.PeriodError{Kind: err, PeriodID: p.ID}
		}
		if len(from) == 0 {
			result = p
			return nil
		}

		n, err := m.repo.Transition(ctx, tx, id, from, to, fields)
		if err != nil {
			return err
		}
		if n == 0 {
			return &domain.PeriodError{Kind: domain.ErrAlreadyClosed, PeriodID: p.ID}
		}

		before := p.Snapshot()
		updated, err := m.repo.FindByID(ctx, tx, id, domain.LockNone)
		if err != nil {
			return err
		}
		ev.Before, ev.After = auditservice.Diff(before, updated.Snapshot())
		if err := m.recorder.Record(ctx, tx, ev); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		err = database.Classify(err)
		if errors.Is(err, domain.ErrPeriodNotFound) || errors.Is(err, domain.ErrAlreadyClosed) ||
			errors.Is(err, domain.ErrNotClosed) {
			m.logger.Warn("period transition rejected", zap.Int64("period_id", id), zap.Error(err))
		}
		return nil, m.recorder.Reject(ctx, ev, err)
	}

	m.logger.Info("period transitioned",
		zap.Int64("period_id", result.ID),
		zap.String("status", string(result.Status)),
		zap.String("actor", a.ID),
	)
	return result, nil
}
