package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xxz807/fieldledger/internal/ledger/domain"
)

type PostgresAccountRepo struct {
	db *gorm.DB
}

func NewAccountRepo(db *gorm.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

func (r *PostgresAccountRepo) FindByCodes(ctx context.Context, tx *gorm.DB, codes []string) (map[string]*domain.Account, error) {
	var accounts []domain.Account
	// 共享锁：过账期间科目不能被归档
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthShare}).
		Where("account_code IN ?", codes).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]*domain.Account, len(accounts))
	for i := range accounts {
		out[accounts[i].AccountCode] = &accounts[i]
	}
	return out, nil
}

func (r *PostgresAccountRepo) List(ctx context.Context) ([]domain.Account, error) {
	var out []domain.Account
	err := r.db.WithContext(ctx).Order("account_code ASC").Find(&out).Error
	return out, err
}

func (r *PostgresAccountRepo) Upsert(ctx context.Context, tx *gorm.DB, a *domain.Account) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "type", "currency", "status", "updated_at"}),
	}).Create(a).Error
}

// ---------------------------------------------------------

type PostgresEntryRepo struct {
	db *gorm.DB
}

func NewEntryRepo(db *gorm.DB) *PostgresEntryRepo {
	return &PostgresEntryRepo{db: db}
}

func (r *PostgresEntryRepo) Create(ctx context.Context, tx *gorm.DB, e *domain.JournalEntry) error {
	// 注意：必须使用传入的 tx (事务会话)，而不是 r.db
	// GORM 会自动处理 JournalEntry -> Lines 的关联插入
	return tx.WithContext(ctx).Create(e).Error
}

func (r *PostgresEntryRepo) FindByID(ctx context.Context, tx *gorm.DB, id int64, forUpdate bool) (*domain.JournalEntry, error) {
	q := tx.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	var e domain.JournalEntry
	err := q.Where("id = ?", id).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.EntryError{Kind: domain.ErrEntryNotFound, EntryID: id}
	}
	if err != nil {
		return nil, err
	}
	// 行单独加载，FOR UPDATE 不能和关联预加载一起用
	if err := tx.WithContext(ctx).Where("entry_id = ?", id).Order("line_no ASC").Find(&e.Lines).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PostgresEntryRepo) ExistsBySource(ctx context.Context, tx *gorm.DB, st domain.SourceType, sourceID string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&domain.JournalEntry{}).
		Where("source_type = ? AND source_id = ?", st, sourceID).
		Count(&count).Error
	return count > 0, err
}

// MarkVoided 条件更新
// SQL: UPDATE gl_journal_entries SET voided = true, ... WHERE id = ? AND voided = false
func (r *PostgresEntryRepo) MarkVoided(ctx context.Context, tx *gorm.DB, id int64, reversalID int64, by string, reason string, at time.Time) (int64, error) {
	result := tx.WithContext(ctx).Model(&domain.JournalEntry{}).
		Where("id = ? AND voided = ?", id, false).
		Updates(map[string]any{
			"voided":      true,
			"voided_at":   at,
			"voided_by":   by,
			"void_reason": reason,
			"reversed_by": reversalID,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	// 关键点：没有行被更新，说明已经被别人作废
	return result.RowsAffected, nil
}

func (r *PostgresEntryRepo) UpdateMemo(ctx context.Context, tx *gorm.DB, id int64, memo string) error {
	return tx.WithContext(ctx).Model(&domain.JournalEntry{}).
		Where("id = ?", id).
		Update("memo", memo).Error
}

func (r *PostgresEntryRepo) ListLines(ctx context.Context, from, to time.Time) ([]domain.LineRow, error) {
	var out []domain.LineRow
	err := r.db.WithContext(ctx).
		Table("gl_journal_lines AS l").
		Select(`l.account_id, a.account_code, a.name AS account_name, a.type AS account_type,
			l.direction, l.amount, e.voided, e.reversal_of`).
		Joins("JOIN gl_journal_entries e ON e.id = l.entry_id").
		Joins("JOIN gl_accounts a ON a.id = l.account_id").
		Where("e.entry_date >= ? AND e.entry_date <= ?", from, to).
		Order("a.account_code ASC, l.id ASC").
		Scan(&out).Error
	return out, err
}
