package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditrepo "github.com/xxz807/fieldledger/internal/audit/adapter/repo"
	auditdomain "github.com/xxz807/fieldledger/internal/audit/domain"
	auditservice "github.com/xxz807/fieldledger/internal/audit/service"
	perioddomain "github.com/xxz807/fieldledger/internal/period/domain"
	"github.com/xxz807/fieldledger/internal/platform/actor"
	"github.com/xxz807/fieldledger/internal/platform/database/dbtest"
	"github.com/xxz807/fieldledger/internal/tax/adapter/cache"
	"github.com/xxz807/fieldledger/internal/tax/adapter/repo"
	"github.com/xxz807/fieldledger/internal/tax/domain"
)

var admin = actor.System("tax-admin")

type fixture struct {
	db       *gorm.DB
	refs     *repo.PostgresReferenceRepo
	cache    *cache.MemoryZoneCache
	resolver *Resolver
	loader   *ReferenceLoader
	recorder *auditservice.Recorder
}

func setup(t *testing.T) *fixture {
	db := dbtest.New(t,
		&domain.TaxAuthority{}, &domain.ZoneAuthority{}, &domain.TaxRule{}, &domain.TaxLedgerRecord{},
		&auditdomain.Record{},
	)
	refs := repo.NewReferenceRepo(db)
	c := cache.NewMemoryZoneCache(time.Hour)
	rec := auditservice.NewRecorder(db, auditrepo.NewRecordRepo(db), zap.NewNop())

	f := &fixture{
		db:       db,
		refs:     refs,
		cache:    c,
		resolver: NewResolver(db, refs, c, zap.NewNop()),
		loader:   NewReferenceLoader(db, refs, c, rec, zap.NewNop()),
		recorder: rec,
	}
	_, err := f.loader.LoadFile(context.Background(), "testdata/reference.yaml", admin)
	require.NoError(t, err)
	return f
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var jan15 = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func TestResolveZone_OrderedByLevel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	auths, err := f.resolver.ResolveZone(ctx, "91101")
	require.NoError(t, err)
	require.Len(t, auths, 3)
	assert.Equal(t, []string{"CA", "CA-LA", "CA-LA-PAS"}, []string{auths[0].ID, auths[1].ID, auths[2].ID})

	// 第二次命中缓存
	cached, ok, err := f.cache.Get(ctx, "91101")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, auths, cached)
}

func TestResolveZone_Unknown(t *testing.T) {
	f := setup(t)

	_, err := f.resolver.ResolveZone(context.Background(), "00000")
	require.ErrorIs(t, err, domain.ErrUnknownZone)

	var ze *domain.ZoneError
	require.True(t, errors.As(err, &ze))
	assert.Equal(t, "00000", ze.Details()["zone"])
}

func TestComputeTax_StackedAuthorities(t *testing.T) {
	f := setup(t)

	res, err := f.resolver.ComputeTax(context.Background(), []domain.LineItem{
		{Ref: "svc", ItemType: domain.ItemLabor, TaxableAmount: d("700.00")},
	}, "91101", jan15)
	require.NoError(t, err)

	assert.True(t, d("49.00").Equal(res.ByAuthority["CA"]))
	assert.True(t, d("7.00").Equal(res.ByAuthority["CA-LA"]))
	assert.True(t, d("7.00").Equal(res.ByAuthority["CA-LA-PAS"]))
	assert.True(t, d("63.00").Equal(res.Total), "total %s", res.Total)
	require.Len(t, res.Records, 3)
	for _, r := range res.Records {
		assert.Equal(t, "svc", r.LineRef)
		assert.True(t, d("700.00").Equal(r.TaxableAmount))
	}
}

func TestComputeTax_CapClamp(t *testing.T) {
	f := setup(t)

	res, err := f.resolver.ComputeTax(context.Background(), []domain.LineItem{
		{ItemType: domain.ItemParts, TaxableAmount: d("1000.00")},
	}, "89501", jan15)
	require.NoError(t, err)

	assert.True(t, d("5.00").Equal(res.ByAuthority["NV-TRANSIT"]), "got %s", res.ByAuthority["NV-TRANSIT"])
	assert.True(t, d("70.00").Equal(res.ByAuthority["NV"]))
}

func TestComputeTax_CapCumulativeAcrossLines(t *testing.T) {
	f := setup(t)

	res, err := f.resolver.ComputeTax(context.Background(), []domain.LineItem{
		{Ref: "a", ItemType: domain.ItemParts, TaxableAmount: d("50.00")}, // 3.50
		{Ref: "b", ItemType: domain.ItemParts, TaxableAmount: d("50.00")}, // 3.50 -> 1.50
		{Ref: "c", ItemType: domain.ItemParts, TaxableAmount: d("50.00")}, // 0
	}, "89501", jan15)
	require.NoError(t, err)

	var transit []domain.TaxLedgerRecord
	for _, r := range res.Records {
		if r.AuthorityID == "NV-TRANSIT" {
			transit = append(transit, r)
		}
	}
	require.Len(t, transit, 2, "zero-tax record must be dropped")
	assert.True(t, d("3.50").Equal(transit[0].TaxAmount))
	assert.True(t, d("1.50").Equal(transit[1].TaxAmount))
	assert.True(t, d("5.00").Equal(res.ByAuthority["NV-TRANSIT"]))
}

func TestComputeTax_EffectiveDating(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	items := []domain.LineItem{{ItemType: domain.ItemParts, TaxableAmount: d("100.00")}}

	old, err := f.resolver.ComputeTax(ctx, items, "89501", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, d("6.85").Equal(old.ByAuthority["NV"]))

	cur, err := f.resolver.ComputeTax(ctx, items, "89501", jan15)
	require.NoError(t, err)
	assert.True(t, d("7.00").Equal(cur.ByAuthority["NV"]))
}

func TestComputeTax_MissingRuleIsExempt(t *testing.T) {
	f := setup(t)

	// 91101 的三个机关都没有 subscription 规则
	res, err := f.resolver.ComputeTax(context.Background(), []domain.LineItem{
		{ItemType: domain.ItemSubscription, TaxableAmount: d("20.00")},
	}, "91101", jan15)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.True(t, res.Total.IsZero())
}

func TestComputeTax_ExplicitExemption(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var freight domain.TaxRule
	require.NoError(t, f.db.Where("authority_id = ? AND item_type = ?", "CA", domain.ItemFreight).First(&freight).Error)
	assert.False(t, freight.IsTaxable)

	// 免税标记优先于税率
	no := false
	_, err := f.loader.Load(ctx, &ReferenceData{
		Rules: []RuleSpec{{Authority: "CA", ItemType: "subscription", Taxable: &no, Rate: "0.07", EffectiveFrom: "2024-01-01"}},
	}, admin)
	require.NoError(t, err)

	var sub domain.TaxRule
	require.NoError(t, f.db.Where("authority_id = ? AND item_type = ?", "CA", domain.ItemSubscription).First(&sub).Error)
	assert.False(t, sub.IsTaxable)
	assert.True(t, d("0.07").Equal(sub.Rate))

	res, err := f.resolver.ComputeTax(ctx, []domain.LineItem{
		{ItemType: domain.ItemFreight, TaxableAmount: d("80.00")},
		{ItemType: domain.ItemSubscription, TaxableAmount: d("100.00")},
	}, "91101", jan15)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.True(t, res.Total.IsZero(), "got %s", res.Total)

	// 同样的免税规则重复导入不算变更
	sum, err := f.loader.Load(ctx, &ReferenceData{
		Rules: []RuleSpec{{Authority: "CA", ItemType: "subscription", Taxable: &no, Rate: "0.07", EffectiveFrom: "2024-01-01"}},
	}, admin)
	require.NoError(t, err)
	assert.Zero(t, sum.Rules)
}

func TestComputeTax_RoundsHalfUp(t *testing.T) {
	f := setup(t)

	// 0.50 * 7% = 0.035 -> 0.04
	res, err := f.resolver.ComputeTax(context.Background(), []domain.LineItem{
		{ItemType: domain.ItemLabor, TaxableAmount: d("0.50")},
	}, "91101", jan15)
	require.NoError(t, err)
	assert.True(t, d("0.04").Equal(res.ByAuthority["CA"]), "got %s", res.ByAuthority["CA"])
	// 0.50 * 1% = 0.005 -> 0.01
	assert.True(t, d("0.01").Equal(res.ByAuthority["CA-LA"]))
}

func TestComputeTax_InvalidItems(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.resolver.ComputeTax(ctx, []domain.LineItem{{ItemType: "bogus", TaxableAmount: d("1")}}, "91101", jan15)
	require.ErrorIs(t, err, domain.ErrInvalidItem)

	_, err = f.resolver.ComputeTax(ctx, []domain.LineItem{{ItemType: domain.ItemLabor, TaxableAmount: d("-1")}}, "91101", jan15)
	require.ErrorIs(t, err, domain.ErrInvalidItem)

	_, err = f.resolver.ComputeTax(ctx, []domain.LineItem{{ItemType: domain.ItemLabor, TaxableAmount: d("1")}}, "nowhere", jan15)
	require.ErrorIs(t, err, domain.ErrUnknownZone)
}

func TestReferenceLoader_Idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sum, err := f.loader.LoadFile(ctx, "testdata/reference.yaml", admin)
	require.NoError(t, err)
	assert.Equal(t, LoadSummary{}, *sum)

	hist, err := f.recorder.History(ctx, auditdomain.TargetTaxZone, "91101")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "CA-LA-PAS,CA,CA-LA", hist[0].After["authorities"])
}

func TestReferenceLoader_InvalidatesCache(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.resolver.ResolveZone(ctx, "91101")
	require.NoError(t, err)

	_, err = f.loader.Load(ctx, &ReferenceData{
		Zones: []ZoneSpec{{Key: "91101", Authorities: []string{"CA", "CA-LA"}}},
	}, admin)
	require.NoError(t, err)

	auths, err := f.resolver.ResolveZone(ctx, "91101")
	require.NoError(t, err)
	assert.Len(t, auths, 2)

	hist, err := f.recorder.History(ctx, auditdomain.TargetTaxZone, "91101")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, auditdomain.ActionUpdate, hist[1].Action)
}

func TestReferenceLoader_RuleConflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.loader.Load(ctx, &ReferenceData{
		Rules: []RuleSpec{
			// 与已有的 CA/labor 长期规则重叠
			{Authority: "CA", ItemType: "labor", Rate: "0.0725", EffectiveFrom: "2025-07-01"},
		},
	}, admin)
	require.ErrorIs(t, err, domain.ErrRuleConflict)

	hist, err := f.recorder.History(ctx, auditdomain.TargetTaxRule, "reference-data")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, auditdomain.OutcomeRejected, hist[0].Outcome)
	assert.Equal(t, "RuleConflict", hist[0].ErrorKind)
}

func TestReferenceLoader_RejectsBadInput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cases := map[string]*ReferenceData{
		"bad level":         {Authorities: []AuthoritySpec{{ID: "X", Level: "galactic"}}},
		"unknown parent":    {Authorities: []AuthoritySpec{{ID: "X", Level: "city", Parent: "NOPE"}}},
		"negative rate":     {Rules: []RuleSpec{{Authority: "CA", ItemType: "other", Rate: "-0.01", EffectiveFrom: "2024-01-01"}}},
		"zone to nowhere":   {Zones: []ZoneSpec{{Key: "10001", Authorities: []string{"NY"}}}},
		"inverted validity": {Rules: []RuleSpec{{Authority: "CA", ItemType: "other", Rate: "0.01", EffectiveFrom: "2024-02-01", EffectiveTo: "2024-01-01"}}},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.loader.Load(ctx, doc, admin)
			require.Error(t, err)
		})
	}
}

func TestParseReferenceData_Malformed(t *testing.T) {
	_, err := ParseReferenceData([]byte("authorities: [unclosed"))
	require.ErrorIs(t, err, domain.ErrInvalidReference)
}

type periodStub struct{ p *perioddomain.AccountingPeriod }

func (s periodStub) GetPeriod(context.Context, int64) (*perioddomain.AccountingPeriod, error) {
	return s.p, nil
}

func TestLiability(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ledger := repo.NewLedgerRepo(f.db)

	res, err := f.resolver.ComputeTax(ctx, []domain.LineItem{
		{ItemType: domain.ItemLabor, TaxableAmount: d("700.00")},
	}, "91101", jan15)
	require.NoError(t, err)

	records := res.Records
	for i := range records {
		records[i].EntryID, records[i].SourceType, records[i].SourceID = 1, "invoice", "INV-1"
	}
	require.NoError(t, ledger.CreateBatch(ctx, f.db, records))

	// 作废：冲销行
	var reversal []domain.TaxLedgerRecord
	for _, r := range records[:1] {
		reversal = append(reversal, r.Negate(2, jan15.AddDate(0, 0, 10)))
	}
	require.NoError(t, ledger.CreateBatch(ctx, f.db, reversal))

	// 二月的记录不进一月的报表
	feb := records[1]
	feb.ID, feb.TxnDate = 0, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.CreateBatch(ctx, f.db, []domain.TaxLedgerRecord{feb}))

	svc := NewLiability(ledger, periodStub{&perioddomain.AccountingPeriod{
		ID: 1, StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}})
	rep, err := svc.ReportForPeriod(ctx, 1)
	require.NoError(t, err)

	require.Len(t, rep.Lines, 3)
	byID := map[string]domain.LiabilityLine{}
	for _, l := range rep.Lines {
		byID[l.AuthorityID] = l
	}
	assert.True(t, byID["CA"].TaxAmount.IsZero(), "voided tax nets to zero")
	assert.True(t, d("7.00").Equal(byID["CA-LA"].TaxAmount))
	assert.True(t, d("14.00").Equal(rep.Total))

	_, err = svc.Report(ctx, jan15, jan15.AddDate(0, 0, -1))
	require.ErrorIs(t, err, perioddomain.ErrInvalidRange)
}
