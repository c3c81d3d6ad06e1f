package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xxz807/fieldledger/internal/period/domain"
)

type PostgresPeriodRepo struct {
	db *gorm.DB
}

func NewPeriodRepo(db *gorm.DB) *PostgresPeriodRepo {
	return &PostgresPeriodRepo{db: db}
}

// locked 根据锁模式追加 FOR SHARE / FOR UPDATE
// SQLite 方言会忽略行锁子句 (它本身串行化写事务)
func locked(tx *gorm.DB, lock domain.LockMode) *gorm.DB {
	switch lock {
	case domain.LockShare:
		return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthShare})
	case domain.LockUpdate:
		return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	default:
		return tx
	}
}

func (r *PostgresPeriodRepo) FindByID(ctx context.Context, tx *gorm.DB, id int64, lock domain.LockMode) (*domain.AccountingPeriod, error) {
	var p domain.AccountingPeriod
	err := locked(tx.WithContext(ctx), lock).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.PeriodError{Kind: domain.ErrPeriodNotFound, PeriodID: id}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPeriodRepo) FindByDate(ctx context.Context, tx *gorm.DB, date time.Time, lock domain.LockMode) (*domain.AccountingPeriod, error) {
	d := domain.DateOf(date)
	var p domain.AccountingPeriod
	err := locked(tx.WithContext(ctx), lock).
		Where("start_date <= ? AND end_date >= ?", d, d).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.PeriodError{Kind: domain.ErrPeriodNotFound, Date: d}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPeriodRepo) CountOverlapping(ctx context.Context, tx *gorm.DB, start, end time.Time) (int64, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&domain.AccountingPeriod{}).
		Where("start_date <= ? AND end_date >= ?", end, start).
		Count(&n).Error
	return n, err
}

func (r *PostgresPeriodRepo) Bounds(ctx context.Context, tx *gorm.DB) (time.Time, time.Time, bool, error) {
	var first, last domain.AccountingPeriod
	err := tx.WithContext(ctx).Order("start_date ASC").Limit(1).Find(&first).Error
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if first.ID == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	if err := tx.WithContext(ctx).Order("end_date DESC").Limit(1).Find(&last).Error; err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return first.StartDate, last.EndDate, true, nil
}

func (r *PostgresPeriodRepo) Create(ctx context.Context, tx *gorm.DB, p *domain.AccountingPeriod) error {
	return tx.WithContext(ctx).Create(p).Error
}

func (r *PostgresPeriodRepo) Transition(ctx context.Context, tx *gorm.DB, id int64, from []domain.Status, to domain.Status, fields map[string]any) (int64, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := tx.WithContext(ctx).Model(&domain.AccountingPeriod{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	// 关键点：没有行被更新，说明状态已被别人改过
	return result.RowsAffected, nil
}

func (r *PostgresPeriodRepo) List(ctx context.Context) ([]domain.AccountingPeriod, error) {
	var out []domain.AccountingPeriod
	err := r.db.WithContext(ctx).Order("start_date ASC").Find(&out).Error
	return out, err
}
