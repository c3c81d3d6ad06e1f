package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	perioddomain "github.com/xxz807/fieldledger/internal/period/domain"
	"github.com/xxz807/fieldledger/internal/platform/database"
	"github.com/xxz807/fieldledger/internal/tax/domain"
)

// CurrencyPlaces 金额精度 (分)
const CurrencyPlaces = 2

// Resolver 税区解析与计税
// 只读参考数据，税区结果按 key 缓存
type Resolver struct {
	db     *gorm.DB
	refs   domain.ReferenceRepository
	cache  domain.ZoneCache
	logger *zap.Logger
}

func NewResolver(db *gorm.DB, refs domain.ReferenceRepository, cache domain.ZoneCache, logger *zap.Logger) *Resolver {
	return &Resolver{db: db, refs: refs, cache: cache, logger: logger}
}

// ResolveZone 税区 -> 机关列表，按 州/县/市/特别区 排序
func (s *Resolver) ResolveZone(ctx context.Context, key string) ([]domain.TaxAuthority, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, &domain.ZoneError{Key: key}
	}

	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		// 缓存不可用时直接读库
		s.logger.Warn("zone cache read failed", zap.String("zone", key), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	authorities, err := s.refs.ZoneAuthorities(ctx, s.db, key)
	if err != nil {
		return nil, database.Classify(err)
	}
	if len(authorities) == 0 {
		return nil, &domain.ZoneError{Key: key}
	}
	sortByLevel(authorities)

	if err := s.cache.Set(ctx, key, authorities); err != nil {
		s.logger.Warn("zone cache write failed", zap.String("zone", key), zap.Error(err))
	}
	return authorities, nil
}

// ComputeTax 按 (明细, 机关) 计算税额
//   - 没有生效规则视为免税
//   - 税额 = round(金额 * 税率, 2)，四舍五入
//   - 有封顶时，同一笔交易内该机关累计税额不超过封顶
//   - 税额为零的记录不输出
func (s *Resolver) ComputeTax(ctx context.Context, items []domain.LineItem, key string, date time.Time) (*domain.TaxResult, error) {
	for i, it := range items {
		if !it.ItemType.Valid() {
			return nil, fmt.Errorf("%w: item %d has type %q", domain.ErrInvalidItem, i, it.ItemType)
		}
		if it.TaxableAmount.IsNegative() {
			return nil, fmt.Errorf("%w: item %d has negative taxable amount", domain.ErrInvalidItem, i)
		}
	}

	authorities, err := s.ResolveZone(ctx, key)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(authorities))
	for i, a := range authorities {
		ids[i] = a.ID
	}
	rules, err := s.refs.RulesFor(ctx, ids, itemTypes(items))
	if err != nil {
		return nil, database.Classify(err)
	}

	txnDate := perioddomain.DateOf(date)
	active := activeRules(rules, txnDate)

	result := &domain.TaxResult{
		ByAuthority: make(map[string]decimal.Decimal, len(authorities)),
		Authorities: authorities,
		Total:       decimal.Zero,
	}
	cumulative := make(map[string]decimal.Decimal, len(authorities))

	for i, it := range items {
		ref := it.Ref
		if ref == "" {
			ref = fmt.Sprintf("line-%d", i+1)
		}
		for _, a := range authorities {
			rule, ok := active[ruleKey{a.ID, it.ItemType}]
			if !ok || !rule.IsTaxable {
				continue
			}

			tax := it.TaxableAmount.Mul(rule.Rate).Round(CurrencyPlaces)
			if rule.CapAmount.Valid {
				remaining := rule.CapAmount.Decimal.Sub(cumulative[a.ID])
				if remaining.IsNegative() {
					remaining = decimal.Zero
				}
				if tax.GreaterThan(remaining) {
					tax = remaining
				}
			}
			if !tax.IsPositive() {
				continue
			}
			cumulative[a.ID] = cumulative[a.ID].Add(tax)

			result.Records = append(result.Records, domain.TaxLedgerRecord{
				LineRef:       ref,
				AuthorityID:   a.ID,
				ItemType:      it.ItemType,
				TaxableAmount: it.TaxableAmount,
				TaxAmount:     tax,
				TxnDate:       txnDate,
			})
			result.ByAuthority[a.ID] = result.ByAuthority[a.ID].Add(tax)
			result.Total = result.Total.Add(tax)
		}
	}
	return result, nil
}

type ruleKey struct {
	authorityID string
	itemType    domain.ItemType
}

// activeRules 每个 (机关, 类型) 取当天生效的规则
// 导入时已拒绝重叠区间，这里同时命中多条时取最晚生效的一条
func activeRules(rules []domain.TaxRule, date time.Time) map[ruleKey]domain.TaxRule {
	out := make(map[ruleKey]domain.TaxRule)
	for _, r := range rules {
		if !r.ActiveOn(date) {
			continue
		}
		k := ruleKey{r.AuthorityID, r.ItemType}
		if prev, ok := out[k]; ok && prev.EffectiveFrom.After(r.EffectiveFrom) {
			continue
		}
		out[k] = r
	}
	return out
}

func itemTypes(items []domain.LineItem) []domain.ItemType {
	seen := make(map[domain.ItemType]bool)
	var out []domain.ItemType
	for _, it := range items {
		if !seen[it.ItemType] {
			seen[it.ItemType] = true
			out = append(out, it.ItemType)
		}
	}
	return out
}

func sortByLevel(authorities []domain.TaxAuthority) {
	sort.SliceStable(authorities, func(i, j int) bool {
		return authorities[i].Level.Rank() < authorities[j].Level.Rank()
	})
}
