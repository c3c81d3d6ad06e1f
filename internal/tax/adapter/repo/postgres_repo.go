package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xxz807/fieldledger/internal/tax/domain"
)

type PostgresReferenceRepo struct {
	db *gorm.DB
}

func NewReferenceRepo(db *gorm.DB) *PostgresReferenceRepo {
	return &PostgresReferenceRepo{db: db}
}

func (r *PostgresReferenceRepo) FindAuthority(ctx context.Context, tx *gorm.DB, id string) (*domain.TaxAuthority, error) {
	var a domain.TaxAuthority
	err := tx.WithContext(ctx).Where("id = ?", id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUnknownAuthority
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresReferenceRepo) ListAuthorities(ctx context.Context) ([]domain.TaxAuthority, error) {
	var out []domain.TaxAuthority
	err := r.db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *PostgresReferenceRepo) UpsertAuthority(ctx context.Context, tx *gorm.DB, a *domain.TaxAuthority) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "level", "parent_id", "updated_at"}),
	}).Create(a).Error
}

func (r *PostgresReferenceRepo) ZoneAuthorities(ctx context.Context, tx *gorm.DB, key string) ([]domain.TaxAuthority, error) {
	var out []domain.TaxAuthority
	err := tx.WithContext(ctx).
		Table("gl_tax_authorities AS a").
		Select("a.*").
		Joins("JOIN gl_tax_zone_authorities z ON z.authority_id = a.id").
		Where("z.zone_key = ?", key).
		Order("z.position ASC").
		Scan(&out).Error
	return out, err
}

func (r *PostgresReferenceRepo) ReplaceZone(ctx context.Context, tx *gorm.DB, key string, authorityIDs []string) error {
	if err := tx.WithContext(ctx).Where("zone_key = ?", key).Delete(&domain.ZoneAuthority{}).Error; err != nil {
		return err
	}
	if len(authorityIDs) == 0 {
		return nil
	}
	rows := make([]domain.ZoneAuthority, len(authorityIDs))
	for i, id := range authorityIDs {
		rows[i] = domain.ZoneAuthority{ZoneKey: key, AuthorityID: id, Position: i}
	}
	return tx.WithContext(ctx).Create(&rows).Error
}

func (r *PostgresReferenceRepo) RulesFor(ctx context.Context, authorityIDs []string, itemTypes []domain.ItemType) ([]domain.TaxRule, error) {
	var out []domain.TaxRule
	if len(authorityIDs) == 0 || len(itemTypes) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).
		Where("authority_id IN ? AND item_type IN ?", authorityIDs, itemTypes).
		Order("effective_from ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *PostgresReferenceRepo) ListRules(ctx context.Context, tx *gorm.DB, authorityID string, itemType domain.ItemType) ([]domain.TaxRule, error) {
	var out []domain.TaxRule
	err := tx.WithContext(ctx).
		Where("authority_id = ? AND item_type = ?", authorityID, itemType).
		Order("effective_from ASC").
		Find(&out).Error
	return out, err
}

func (r *PostgresReferenceRepo) CreateRule(ctx context.Context, tx *gorm.DB, rule *domain.TaxRule) error {
	return tx.WithContext(ctx).Create(rule).Error
}

type PostgresLedgerRepo struct {
	db *gorm.DB
}

func NewLedgerRepo(db *gorm.DB) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{db: db}
}

func (r *PostgresLedgerRepo) CreateBatch(ctx context.Context, tx *gorm.DB, records []domain.TaxLedgerRecord) error {
	if len(records) == 0 {
		return nil
	}
	// 必须在过账事务内写入
	return tx.WithContext(ctx).Create(&records).Error
}

func (r *PostgresLedgerRepo) ListByEntry(ctx context.Context, tx *gorm.DB, entryID int64) ([]domain.TaxLedgerRecord, error) {
	var out []domain.TaxLedgerRecord
	err := tx.WithContext(ctx).Where("entry_id = ?", entryID).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *PostgresLedgerRepo) ListBetween(ctx context.Context, from, to time.Time) ([]domain.TaxLedgerRecord, error) {
	var out []domain.TaxLedgerRecord
	err := r.db.WithContext(ctx).
		Where("txn_date >= ? AND txn_date <= ?", from, to).
		Order("txn_date ASC, id ASC").
		Find(&out).Error
	return out, err
}
