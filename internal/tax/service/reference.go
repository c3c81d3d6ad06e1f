package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	auditdomain "github.com/xxz807/fieldledger/internal/audit/domain"
	auditservice "github.com/xxz807/fieldledger/internal/audit/service"
	"github.com/xxz807/fieldledger/internal/platform/actor"
	"github.com/xxz807/fieldledger/internal/platform/database"
	"github.com/xxz807/fieldledger/internal/tax/domain"
)

// ReferenceData 税务参考数据文件格式 (YAML)
type ReferenceData struct {
	Authorities []AuthoritySpec `yaml:"authorities"`
	Zones       []ZoneSpec      `yaml:"zones"`
	Rules       []RuleSpec      `yaml:"rules"`
}

type AuthoritySpec struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Level  string `yaml:"level"`
	Parent string `yaml:"parent"`
}

type ZoneSpec struct {
	Key         string   `yaml:"key"`
	Authorities []string `yaml:"authorities"`
}

type RuleSpec struct {
	Authority     string `yaml:"authority"`
	ItemType      string `yaml:"item_type"`
	Taxable       *bool  `yaml:"taxable"` // 缺省为 true
	Rate          string `yaml:"rate"`
	Cap           string `yaml:"cap"`
	EffectiveFrom string `yaml:"effective_from"`
	EffectiveTo   string `yaml:"effective_to"`
}

// LoadSummary 导入结果
type LoadSummary struct {
	Authorities int
	Zones       int
	Rules       int
}

// ParseReferenceData 解析 YAML
func ParseReferenceData(raw []byte) (*ReferenceData, error) {
	var doc ReferenceData
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidReference, err)
	}
	return &doc, nil
}

// ReferenceLoader 税务参考数据的唯一写入方
// 每一项变更都写审计，提交后让税区缓存整体失效
type ReferenceLoader struct {
	db       *gorm.DB
	refs     domain.ReferenceRepository
	cache    domain.ZoneCache
	recorder *auditservice.Recorder
	logger   *zap.Logger
}

func NewReferenceLoader(db *gorm.DB, refs domain.ReferenceRepository, cache domain.ZoneCache, recorder *auditservice.Recorder, logger *zap.Logger) *ReferenceLoader {
	return &ReferenceLoader{db: db, refs: refs, cache: cache, recorder: recorder, logger: logger}
}

// LoadFile 从文件导入
func (l *ReferenceLoader) LoadFile(ctx context.Context, path string, a actor.Actor) (*LoadSummary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference file: %w", err)
	}
	doc, err := ParseReferenceData(raw)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, doc, a)
}

// Load 在一个事务内导入；相同内容重复导入不产生变更
func (l *ReferenceLoader) Load(ctx context.Context, doc *ReferenceData, a actor.Actor) (*LoadSummary, error) {
	sum := &LoadSummary{}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, spec := range doc.Authorities {
			changed, err := l.applyAuthority(ctx, tx, spec, a)
			if err != nil {
				return err
			}
			if changed {
				sum.Authorities++
			}
		}
		for _, spec := range doc.Zones {
			changed, err := l.applyZone(ctx, tx, spec, a)
			if err != nil {
				return err
			}
			if changed {
				sum.Zones++
			}
		}
		for _, spec := range doc.Rules {
			changed, err := l.applyRule(ctx, tx, spec, a)
			if err != nil {
				return err
			}
			if changed {
				sum.Rules++
			}
		}
		return nil
	})
	if err != nil {
		return nil, l.recorder.Reject(ctx, auditservice.Event{
			TargetType: auditdomain.TargetTaxRule,
			TargetID:   "reference-data",
			Action:     auditdomain.ActionUpdate,
			Actor:      a,
		}, database.Classify(err))
	}

	if err := l.cache.Invalidate(ctx); err != nil {
		// 失效失败时旧的税区映射最多保留一个 TTL
		l.logger.Error("zone cache invalidation failed", zap.Error(err))
	}
	l.logger.Info("tax reference data loaded",
		zap.Int("authorities", sum.Authorities),
		zap.Int("zones", sum.Zones),
		zap.Int("rules", sum.Rules),
		zap.String("actor", a.ID),
	)
	return sum, nil
}

func (l *ReferenceLoader) applyAuthority(ctx context.Context, tx *gorm.DB, spec AuthoritySpec, a actor.Actor) (bool, error) {
	level := domain.Level(strings.ToLower(spec.Level))
	if spec.ID == "" || !level.Valid() {
		return false, fmt.Errorf("%w: authority %q level %q", domain.ErrInvalidReference, spec.ID, spec.Level)
	}
	if spec.Parent != "" {
		if _, err := l.refs.FindAuthority(ctx, tx, spec.Parent); err != nil {
			return false, fmt.Errorf("parent of %s: %w", spec.ID, err)
		}
	}

	next := &domain.TaxAuthority{ID: spec.ID, Name: spec.Name, Level: level, ParentID: spec.Parent}
	action := auditdomain.ActionInsert
	var before map[string]any
	existing, err := l.refs.FindAuthority(ctx, tx, spec.ID)
	switch {
	case err == nil:
		if existing.Name == next.Name && existing.Level == next.Level && existing.ParentID == next.ParentID {
			return false, nil
		}
		action = auditdomain.ActionUpdate
		before = authoritySnapshot(existing)
	case !errors.Is(err, domain.ErrUnknownAuthority):
		return false, err
	}

	if err := l.refs.UpsertAuthority(ctx, tx, next); err != nil {
		return false, err
	}
	after := authoritySnapshot(next)
	if before != nil {
		before, after = auditservice.Diff(before, after)
	}
	return true, l.recorder.Record(ctx, tx, auditservice.Event{
		TargetType: auditdomain.TargetTaxAuthority,
		TargetID:   next.ID,
		Action:     action,
		Before:     before,
		After:      after,
		Actor:      a,
	})
}

func (l *ReferenceLoader) applyZone(ctx context.Context, tx *gorm.DB, spec ZoneSpec, a actor.Actor) (bool, error) {
	key := strings.TrimSpace(spec.Key)
	if key == "" || len(spec.Authorities) == 0 {
		return false, fmt.Errorf("%w: zone %q has no authorities", domain.ErrInvalidReference, spec.Key)
	}
	for _, id := range spec.Authorities {
		if _, err := l.refs.FindAuthority(ctx, tx, id); err != nil {
			return false, fmt.Errorf("zone %s: %w (%s)", key, err, id)
		}
	}

	current, err := l.refs.ZoneAuthorities(ctx, tx, key)
	if err != nil {
		return false, err
	}
	currentIDs := make([]string, len(current))
	for i, c := range current {
		currentIDs[i] = c.ID
	}
	if strings.Join(currentIDs, ",") == strings.Join(spec.Authorities, ",") {
		return false, nil
	}

	if err := l.refs.ReplaceZone(ctx, tx, key, spec.Authorities); err != nil {
		return false, err
	}
	ev := auditservice.Event{
		TargetType: auditdomain.TargetTaxZone,
		TargetID:   key,
		Action:     auditdomain.ActionInsert,
		After:      map[string]any{"authorities": strings.Join(spec.Authorities, ",")},
		Actor:      a,
	}
	if len(currentIDs) > 0 {
		ev.Action = auditdomain.ActionUpdate
		ev.Before = map[string]any{"authorities": strings.Join(currentIDs, ",")}
	}
	return true, l.recorder.Record(ctx, tx, ev)
}

func (l *ReferenceLoader) applyRule(ctx context.Context, tx *gorm.DB, spec RuleSpec, a actor.Actor) (bool, error) {
	rule, err := spec.toRule()
	if err != nil {
		return false, err
	}
	if _, err := l.refs.FindAuthority(ctx, tx, rule.AuthorityID); err != nil {
		return false, fmt.Errorf("rule for %s: %w", rule.AuthorityID, err)
	}

	existing, err := l.refs.ListRules(ctx, tx, rule.AuthorityID, rule.ItemType)
	if err != nil {
		return false, err
	}
	for i := range existing {
		if sameRule(&existing[i], rule) {
			return false, nil
		}
		if existing[i].Overlaps(rule) {
			return false, fmt.Errorf("%w: %s/%s from %s", domain.ErrRuleConflict,
				rule.AuthorityID, rule.ItemType, rule.EffectiveFrom.Format(time.DateOnly))
		}
	}

	if err := l.refs.CreateRule(ctx, tx, rule); err != nil {
		return false, err
	}
	return true, l.recorder.Record(ctx, tx, auditservice.Event{
		TargetType: auditdomain.TargetTaxRule,
		TargetID:   strconv.FormatInt(rule.ID, 10),
		Action:     auditdomain.ActionInsert,
		After:      ruleSnapshot(rule),
		Actor:      a,
	})
}

func (s RuleSpec) toRule() (*domain.TaxRule, error) {
	invalid := func(why string) error {
		return fmt.Errorf("%w: rule %s/%s: %s", domain.ErrInvalidReference, s.Authority, s.ItemType, why)
	}

	itemType := domain.ItemType(strings.ToLower(s.ItemType))
	if s.Authority == "" || !itemType.Valid() {
		return nil, invalid("unknown item type")
	}
	rate, err := decimal.NewFromString(s.Rate)
	if err != nil || rate.IsNegative() {
		return nil, invalid("rate must be a non-negative decimal")
	}
	from, err := time.Parse(time.DateOnly, s.EffectiveFrom)
	if err != nil {
		return nil, invalid("effective_from must be YYYY-MM-DD")
	}

	rule := &domain.TaxRule{
		AuthorityID:   s.Authority,
		ItemType:      itemType,
		IsTaxable:     s.Taxable == nil || *s.Taxable,
		Rate:          rate,
		EffectiveFrom: from,
	}
	if s.Cap != "" {
		c, err := decimal.NewFromString(s.Cap)
		if err != nil || c.IsNegative() {
			return nil, invalid("cap must be a non-negative decimal")
		}
		rule.CapAmount = decimal.NewNullDecimal(c)
	}
	if s.EffectiveTo != "" {
		to, err := time.Parse(time.DateOnly, s.EffectiveTo)
		if err != nil || to.Before(from) {
			return nil, invalid("effective_to must be YYYY-MM-DD on or after effective_from")
		}
		rule.EffectiveTo = &to
	}
	return rule, nil
}

func sameRule(a, b *domain.TaxRule) bool {
	if a.IsTaxable != b.IsTaxable || !a.Rate.Equal(b.Rate) || !a.EffectiveFrom.Equal(b.EffectiveFrom) {
		return false
	}
	if a.CapAmount.Valid != b.CapAmount.Valid || (a.CapAmount.Valid && !a.CapAmount.Decimal.Equal(b.CapAmount.Decimal)) {
		return false
	}
	if (a.EffectiveTo == nil) != (b.EffectiveTo == nil) {
		return false
	}
	return a.EffectiveTo == nil || a.EffectiveTo.Equal(*b.EffectiveTo)
}

func authoritySnapshot(a *domain.TaxAuthority) map[string]any {
	return map[string]any{
		"name":   a.Name,
		"level":  string(a.Level),
		"parent": a.ParentID,
	}
}

func ruleSnapshot(r *domain.TaxRule) map[string]any {
	m := map[string]any{
		"authority":      r.AuthorityID,
		"item_type":      string(r.ItemType),
		"taxable":        r.IsTaxable,
		"rate":           r.Rate.String(),
		"effective_from": r.EffectiveFrom.Format(time.DateOnly),
	}
	if r.CapAmount.Valid {
		m["cap"] = r.CapAmount.Decimal.StringFixed(CurrencyPlaces)
	}
	if r.EffectiveTo != nil {
		m["effective_to"] = r.EffectiveTo.Format(time.DateOnly)
	}
	return m
}
