package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
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
	"github.com/xxz807/fieldledger/internal/ledger/adapter/repo"
	"github.com/xxz807/fieldledger/internal/ledger/domain"
	periodrepo "github.com/xxz807/fieldledger/internal/period/adapter/repo"
	perioddomain "github.com/xxz807/fieldledger/internal/period/domain"
	periodservice "github.com/xxz807/fieldledger/internal/period/service"
	"github.com/xxz807/fieldledger/internal/platform/actor"
	"github.com/xxz807/fieldledger/internal/platform/database/dbtest"
	"github.com/xxz807/fieldledger/internal/tax/adapter/cache"
	taxrepo "github.com/xxz807/fieldledger/internal/tax/adapter/repo"
	taxdomain "github.com/xxz807/fieldledger/internal/tax/domain"
	taxservice "github.com/xxz807/fieldledger/internal/tax/service"
)

var (
	clerk      = actor.Actor{ID: "bk-1", Role: actor.RoleBookkeeper, Origin: "10.0.0.7", RequestID: "req-1"}
	controller = actor.Actor{ID: "ctl-1", Role: actor.RoleController}
	clock      = time.Date(2025, 1, 20, 15, 30, 0, 0, time.UTC)
)

func day(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	db        *gorm.DB
	svc       *LedgerService
	periods   *periodservice.Manager
	recorder  *auditservice.Recorder
	resolver  *taxservice.Resolver
	taxLedger *taxrepo.PostgresLedgerRepo
	jan, feb  *perioddomain.AccountingPeriod
}

func setup(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	db := dbtest.New(t,
		&domain.Account{}, &domain.JournalEntry{}, &domain.JournalLine{},
		&perioddomain.AccountingPeriod{}, &auditdomain.Record{},
		&taxdomain.TaxAuthority{}, &taxdomain.ZoneAuthority{}, &taxdomain.TaxRule{}, &taxdomain.TaxLedgerRecord{},
	)

	rec := auditservice.NewRecorder(db, auditrepo.NewRecordRepo(db), zap.NewNop())
	periods := periodservice.NewManager(db, periodrepo.NewPeriodRepo(db), rec, zap.NewNop())

	refs := taxrepo.NewReferenceRepo(db)
	zones := cache.NewMemoryZoneCache(time.Hour)
	resolver := taxservice.NewResolver(db, refs, zones, zap.NewNop())
	_, err := taxservice.NewReferenceLoader(db, refs, zones, rec, zap.NewNop()).Load(ctx, &taxservice.ReferenceData{
		Authorities: []taxservice.AuthoritySpec{
			{ID: "CA", Name: "California", Level: "state"},
			{ID: "CA-LA", Name: "Los Angeles County", Level: "county", Parent: "CA"},
			{ID: "CA-LA-PAS", Name: "Pasadena", Level: "city", Parent: "CA-LA"},
		},
		Zones: []taxservice.ZoneSpec{{Key: "91101", Authorities: []string{"CA", "CA-LA", "CA-LA-PAS"}}},
		Rules: []taxservice.RuleSpec{
			{Authority: "CA", ItemType: "labor", Rate: "0.07", EffectiveFrom: "2024-01-01"},
			{Authority: "CA-LA", ItemType: "labor", Rate: "0.01", EffectiveFrom: "2024-01-01"},
			{Authority: "CA-LA-PAS", ItemType: "labor", Rate: "0.01", EffectiveFrom: "2024-01-01"},
		},
	}, actor.System("seed"))
	require.NoError(t, err)

	taxLedger := taxrepo.NewLedgerRepo(db)
	svc := NewLedgerService(db, repo.NewAccountRepo(db), repo.NewEntryRepo(db), taxLedger,
		periods, resolver, rec, zap.NewNop(), opts).WithClock(func() time.Time { return clock })
	require.NoError(t, svc.SeedAccounts(ctx, DefaultChart()))

	f := &fixture{db: db, svc: svc, periods: periods, recorder: rec, resolver: resolver, taxLedger: taxLedger}
	f.jan, err = periods.CreatePeriod(ctx, periodservice.CreatePeriodRequest{StartDate: day(1, 1), EndDate: day(1, 31)}, controller)
	require.NoError(t, err)
	f.feb, err = periods.CreatePeriod(ctx, periodservice.CreatePeriodRequest{StartDate: day(2, 1), EndDate: day(2, 28)}, controller)
	require.NoError(t, err)
	return f
}

func invoice(id string, date time.Time, amount string) PostingRequest {
	return PostingRequest{
		SourceType: "invoice",
		SourceID:   id,
		EntryDate:  date,
		Memo:       "service call " + id,
		Lines: []PostingLine{
			{AccountCode: "1200", Direction: "D", Amount: amount},
			{AccountCode: "4010", Direction: "C", Amount: amount},
		},
	}
}

func (f *fixture) count(t *testing.T, model any) int64 {
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) history(t *testing.T, targetID string) []auditdomain.Record {
	hist, err := f.recorder.History(context.Background(), auditdomain.TargetJournalEntry, targetID)
	require.NoError(t, err)
	return hist
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ==========================================
// Post
// ==========================================

func TestPost_Balanced(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	e, err := f.svc.Post(ctx, invoice("INV-1", time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC), "700.00"), clerk)
	require.NoError(t, err)

	assert.Equal(t, int64(1), e.EntryNumber)
	assert.Equal(t, f.jan.ID, e.PeriodID)
	assert.Equal(t, day(1, 10), e.EntryDate)
	assert.Equal(t, "bk-1", e.PostedBy)
	require.Len(t, e.Lines, 2)

	got, err := f.svc.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, domain.Debit, got.Lines[0].Direction)
	assert.True(t, d("700").Equal(got.Lines[0].Amount))

	hist := f.history(t, fmt.Sprint(e.ID))
	require.Len(t, hist, 1)
	assert.Equal(t, auditdomain.ActionInsert, hist[0].Action)
	assert.Equal(t, auditdomain.OutcomeAccepted, hist[0].Outcome)
	assert.Equal(t, "10.0.0.7", hist[0].ActorOrigin)
	assert.Equal(t, "2025-01-10", hist[0].After["entry_date"])
}

func TestPost_Unbalanced(t *testing.T) {
	f := setup(t, Options{})
	req := invoice("INV-2", day(1, 10), "100.00")
	req.Lines[1].Amount = "99.99"

	_, err := f.svc.Post(context.Background(), req, clerk)
	require.ErrorIs(t, err, domain.ErrUnbalancedEntry)

	var ie *domain.ImbalanceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "100.00", ie.Debit)
	assert.Equal(t, "99.99", ie.Credit)

	assert.Zero(t, f.count(t, &domain.JournalEntry{}))
	assert.Zero(t, f.count(t, &domain.JournalLine{}))

	hist := f.history(t, "draft:invoice:INV-2")
	require.Len(t, hist, 1)
	assert.Equal(t, auditdomain.OutcomeRejected, hist[0].Outcome)
	assert.Equal(t, "UnbalancedEntry", hist[0].ErrorKind)
}

func TestPost_InvalidDraft(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	cases := map[string]func(r *PostingRequest){
		"single line":     func(r *PostingRequest) { r.Lines = r.Lines[:1] },
		"zero amount":     func(r *PostingRequest) { r.Lines[0].Amount, r.Lines[1].Amount = "0", "0" },
		"negative amount": func(r *PostingRequest) { r.Lines[0].Amount, r.Lines[1].Amount = "-5", "-5" },
		"sub-cent amount": func(r *PostingRequest) { r.Lines[0].Amount, r.Lines[1].Amount = "1.005", "1.005" },
		"bad direction":   func(r *PostingRequest) { r.Lines[0].Direction = "X" },
		"reversal source": func(r *PostingRequest) { r.SourceType = "reversal" },
		"no source id":    func(r *PostingRequest) { r.SourceID = " " },
		"no date":         func(r *PostingRequest) { r.EntryDate = time.Time{} },
		"no account":      func(r *PostingRequest) { r.Lines[0].AccountCode = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := invoice("INV-X", day(1, 10), "10.00")
			mutate(&req)
			_, err := f.svc.Post(ctx, req, clerk)
			require.ErrorIs(t, err, domain.ErrInvalidDraft)
		})
	}
	assert.Zero(t, f.count(t, &domain.JournalEntry{}))
}

func TestPost_UnknownOrArchivedAccount(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	req := invoice("INV-3", day(1, 10), "10.00")
	req.Lines[1].AccountCode = "9999"
	_, err := f.svc.Post(ctx, req, clerk)
	require.ErrorIs(t, err, domain.ErrUnknownAccount)

	// 通过种子归档，而不是直接改表
	require.NoError(t, f.svc.SeedAccounts(ctx, []domain.Account{
		{AccountCode: "4010", Name: "Service Revenue", Type: domain.Revenue, Status: domain.AccountArchived},
	}))
	_, err = f.svc.Post(ctx, invoice("INV-4", day(1, 10), "10.00"), clerk)
	require.ErrorIs(t, err, domain.ErrUnknownAccount)

	assert.Zero(t, f.count(t, &domain.JournalEntry{}))
}

func TestSeedAccounts_KeepsStatus(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.svc.SeedAccounts(ctx, []domain.Account{
		{AccountCode: "6100", Name: "Legacy Fuel", Type: domain.Expense, Status: domain.AccountArchived},
	}))
	var acc domain.Account
	require.NoError(t, f.db.Where("account_code = ?", "6100").First(&acc).Error)
	assert.True(t, acc.Archived())
	assert.Equal(t, "USD", acc.Currency)

	// 再次以零值导入即恢复启用
	require.NoError(t, f.svc.SeedAccounts(ctx, []domain.Account{
		{AccountCode: "6100", Name: "Fuel", Type: domain.Expense},
	}))
	require.NoError(t, f.db.Where("account_code = ?", "6100").First(&acc).Error)
	assert.False(t, acc.Archived())
	assert.Equal(t, "Fuel", acc.Name)
}

func TestPost_PeriodGate(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Post(ctx, invoice("INV-5", day(3, 1), "10.00"), clerk)
	require.ErrorIs(t, err, perioddomain.ErrPeriodNotFound)

	_, err = f.periods.StartClose(ctx, f.jan.ID, controller)
	require.NoError(t, err)
	_, err = f.svc.Post(ctx, invoice("INV-6", day(1, 10), "10.00"), clerk)
	require.ErrorIs(t, err, perioddomain.ErrPeriodClosing)

	_, err = f.periods.ClosePeriod(ctx, f.jan.ID, controller)
	require.NoError(t, err)
	_, err = f.svc.Post(ctx, invoice("INV-7", day(1, 10), "10.00"), clerk)
	require.ErrorIs(t, err, perioddomain.ErrPeriodClosed)

	var pe *perioddomain.PeriodError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, f.jan.ID, pe.PeriodID)

	// 二月仍然开放
	_, err = f.svc.Post(ctx, invoice("INV-8", day(2, 3), "10.00"), clerk)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.count(t, &domain.JournalEntry{}))
}

func TestPost_DuplicateSource(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Post(ctx, invoice("INV-9", day(1, 10), "10.00"), clerk)
	require.NoError(t, err)
	_, err = f.svc.Post(ctx, invoice("INV-9", day(1, 11), "10.00"), clerk)
	require.ErrorIs(t, err, domain.ErrDuplicateSource)
}

func TestPost_WithTaxPerAuthority(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	req := invoice("INV-10", day(1, 12), "700.00")
	req.Tax = &TaxRequest{
		Zone:             "91101",
		LiabilityAccount: "2200",
		OffsetAccount:    "1200",
		Items:            []TaxItem{{Ref: "labor", ItemType: "labor", TaxableAmount: "700.00"}},
	}
	e, err := f.svc.Post(ctx, req, clerk)
	require.NoError(t, err)

	// 700 借/贷 + 三个机关的贷方 + 一行借方合计
	require.Len(t, e.Lines, 6)
	byJurisdiction := map[string]decimal.Decimal{}
	var debit, credit decimal.Decimal
	for _, l := range e.Lines {
		if l.Direction == domain.Debit {
			debit = debit.Add(l.Amount)
		} else {
			credit = credit.Add(l.Amount)
		}
		if l.Jurisdiction != "" {
			byJurisdiction[l.Jurisdiction] = l.Amount
		}
	}
	assert.True(t, debit.Equal(credit))
	assert.True(t, d("763.00").Equal(debit))
	assert.True(t, d("49").Equal(byJurisdiction["CA"]))
	assert.True(t, d("7").Equal(byJurisdiction["CA-LA"]))
	assert.True(t, d("7").Equal(byJurisdiction["CA-LA-PAS"]))

	rows, err := f.taxLedger.ListByEntry(ctx, f.db, e.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, "invoice", r.SourceType)
		assert.Equal(t, "INV-10", r.SourceID)
		assert.Equal(t, day(1, 12), r.TxnDate.UTC())
	}
}

func TestPost_WithTaxAggregate(t *testing.T) {
	f := setup(t, Options{TaxLinePolicy: TaxLinesAggregate})

	req := invoice("INV-11", day(1, 12), "700.00")
	req.Tax = &TaxRequest{
		Zone: "91101", LiabilityAccount: "2200", OffsetAccount: "1200",
		Items: []TaxItem{{ItemType: "labor", TaxableAmount: "700.00"}},
	}
	e, err := f.svc.Post(context.Background(), req, clerk)
	require.NoError(t, err)
	require.Len(t, e.Lines, 4)
	assert.True(t, d("63").Equal(e.Lines[2].Amount))
	assert.Equal(t, domain.Credit, e.Lines[2].Direction)
	assert.Empty(t, e.Lines[2].Jurisdiction)
}

func TestPost_UnknownZoneWritesNothing(t *testing.T) {
	f := setup(t, Options{})

	req := invoice("INV-12", day(1, 12), "100.00")
	req.Tax = &TaxRequest{
		Zone: "00000", LiabilityAccount: "2200", OffsetAccount: "1200",
		Items: []TaxItem{{ItemType: "labor", TaxableAmount: "100.00"}},
	}
	_, err := f.svc.Post(context.Background(), req, clerk)
	require.ErrorIs(t, err, taxdomain.ErrUnknownZone)

	assert.Zero(t, f.count(t, &domain.JournalEntry{}))
	assert.Zero(t, f.count(t, &domain.JournalLine{}))
	assert.Zero(t, f.count(t, &taxdomain.TaxLedgerRecord{}))
}

func TestPost_ConcurrentEntryNumbersUnique(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	const n = 100
	numbers := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := f.svc.Post(ctx, invoice(fmt.Sprintf("INV-C%03d", i), day(1, 15), "1.00"), clerk)
			errs[i] = err
			if err == nil {
				numbers[i] = e.EntryNumber
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[numbers[i]], "duplicate entry number %d", numbers[i])
		seen[numbers[i]] = true
	}
	for k := int64(1); k <= n; k++ {
		assert.True(t, seen[k], "missing entry number %d", k)
	}
}

type failingRecords struct{}

func (failingRecords) Create(context.Context, *gorm.DB, *auditdomain.Record) error {
	return errors.New("disk full")
}

func (failingRecords) ListByTarget(context.Context, auditdomain.TargetType, string) ([]auditdomain.Record, error) {
	return nil, nil
}

func TestPost_AuditFailureRollsBackEverything(t *testing.T) {
	f := setup(t, Options{})
	broken := auditservice.NewRecorder(f.db, failingRecords{}, zap.NewNop())
	svc := NewLedgerService(f.db, repo.NewAccountRepo(f.db), repo.NewEntryRepo(f.db), f.taxLedger,
		f.periods, f.resolver, broken, zap.NewNop(), Options{})

	req := invoice("INV-13", day(1, 12), "700.00")
	req.Tax = &TaxRequest{
		Zone: "91101", LiabilityAccount: "2200", OffsetAccount: "1200",
		Items: []TaxItem{{ItemType: "labor", TaxableAmount: "700.00"}},
	}
	_, err := svc.Post(context.Background(), req, clerk)
	require.ErrorIs(t, err, auditdomain.ErrAuditWriteFailed)

	assert.Zero(t, f.count(t, &domain.JournalEntry{}))
	assert.Zero(t, f.count(t, &domain.JournalLine{}))
	assert.Zero(t, f.count(t, &taxdomain.TaxLedgerRecord{}))

	// 计数器也随事务回滚
	e, err := f.svc.Post(context.Background(), invoice("INV-14", day(1, 12), "1.00"), clerk)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.EntryNumber)
}

func TestPost_MissingActor(t *testing.T) {
	f := setup(t, Options{})
	_, err := f.svc.Post(context.Background(), invoice("INV-15", day(1, 12), "1.00"), actor.Actor{})
	require.ErrorIs(t, err, actor.ErrMissingActor)
}

// ==========================================
// Void
// ==========================================

func TestVoid(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	orig, err := f.svc.Post(ctx, invoice("INV-20", day(1, 5), "250.00"), clerk)
	require.NoError(t, err)

	res, err := f.svc.Void(ctx, orig.ID, clerk, "customer cancelled")
	require.NoError(t, err)

	rev := res.Reversal
	assert.Equal(t, domain.SourceReversal, rev.SourceType)
	require.NotNil(t, rev.ReversalOf)
	assert.Equal(t, orig.ID, *rev.ReversalOf)
	assert.Equal(t, day(1, 20), rev.EntryDate, "reversal dated on void date")
	assert.Equal(t, int64(2), rev.EntryNumber)
	require.Len(t, rev.Lines, 2)
	for i, l := range rev.Lines {
		assert.Equal(t, orig.Lines[i].Direction.Opposite(), l.Direction)
		assert.True(t, orig.Lines[i].Amount.Equal(l.Amount))
		assert.Equal(t, orig.Lines[i].AccountID, l.AccountID)
	}

	stored, err := f.svc.GetEntry(ctx, orig.ID)
	require.NoError(t, err)
	assert.True(t, stored.Voided)
	assert.Equal(t, "customer cancelled", stored.VoidReason)
	require.NotNil(t, stored.ReversedBy)
	assert.Equal(t, rev.ID, *stored.ReversedBy)
	require.Len(t, stored.Lines, 2, "original lines are never deleted")

	hist := f.history(t, fmt.Sprint(orig.ID))
	require.Len(t, hist, 2)
	assert.Equal(t, auditdomain.ActionVoid, hist[1].Action)
	assert.Equal(t, "customer cancelled", hist[1].Reason)
	assert.Equal(t, false, hist[1].Before["voided"])
	assert.Equal(t, true, hist[1].After["voided"])

	revHist := f.history(t, fmt.Sprint(rev.ID))
	require.Len(t, revHist, 1)
	assert.Equal(t, auditdomain.ActionInsert, revHist[0].Action)
}

func TestVoid_Twice(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	orig, err := f.svc.Post(ctx, invoice("INV-21", day(1, 5), "10.00"), clerk)
	require.NoError(t, err)
	first, err := f.svc.Void(ctx, orig.ID, clerk, "dup")
	require.NoError(t, err)

	_, err = f.svc.Void(ctx, orig.ID, clerk, "again")
	require.ErrorIs(t, err, domain.ErrAlreadyVoided)
	var ee *domain.EntryError
	require.ErrorAs(t, err, &ee)
	require.NotNil(t, ee.ReversedBy)
	assert.Equal(t, first.Reversal.ID, *ee.ReversedBy)

	_, err = f.svc.Void(ctx, first.Reversal.ID, clerk, "undo the undo")
	require.ErrorIs(t, err, domain.ErrIsReversal)

	assert.Equal(t, int64(2), f.count(t, &domain.JournalEntry{}))
}

func TestVoid_Concurrent(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	orig, err := f.svc.Post(ctx, invoice("INV-22", day(1, 5), "10.00"), clerk)
	require.NoError(t, err)

	const n = 5
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Void(ctx, orig.ID, clerk, "race")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, domain.ErrAlreadyVoided)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(2), f.count(t, &domain.JournalEntry{}))
}

func TestVoid_ReasonRequired(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	orig, err := f.svc.Post(ctx, invoice("INV-23", day(1, 5), "10.00"), clerk)
	require.NoError(t, err)

	_, err = f.svc.Void(ctx, orig.ID, clerk, "   ")
	require.ErrorIs(t, err, domain.ErrReasonRequired)

	hist := f.history(t, fmt.Sprint(orig.ID))
	require.Len(t, hist, 2)
	assert.Equal(t, auditdomain.OutcomeRejected, hist[1].Outcome)
	assert.Equal(t, auditdomain.ActionVoid, hist[1].Action)
}

func TestVoid_NotFound(t *testing.T) {
	f := setup(t, Options{})
	_, err := f.svc.Void(context.Background(), 404, clerk, "gone")
	require.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestVoid_PeriodGate(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	orig, err := f.svc.Post(ctx, invoice("INV-24", day(1, 5), "10.00"), clerk)
	require.NoError(t, err)

	// closing 期间仍可作废
	_, err = f.periods.StartClose(ctx, f.jan.ID, controller)
	require.NoError(t, err)
	other, err := f.svc.Post(ctx, invoice("INV-25", day(2, 5), "10.00"), clerk)
	require.NoError(t, err)
	_, err = f.svc.Void(ctx, orig.ID, clerk, "wrong customer")
	require.NoError(t, err)

	// closed 期间不可作废，冲销日期落在已关账期间也不行
	_, err = f.periods.ClosePeriod(ctx, f.jan.ID, controller)
	require.NoError(t, err)
	_, err = f.svc.Void(ctx, other.ID, clerk, "void into closed january")
	require.ErrorIs(t, err, perioddomain.ErrPeriodClosed)

	stored, err := f.svc.GetEntry(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, stored.Voided)
}

func TestVoid_OriginalDatePolicy(t *testing.T) {
	f := setup(t, Options{ReversalDating: ReversalOnOriginalDate})
	ctx := context.Background()

	orig, err := f.svc.Post(ctx, invoice("INV-26", day(2, 14), "10.00"), clerk)
	require.NoError(t, err)
	res, err := f.svc.Void(ctx, orig.ID, clerk, "posted twice")
	require.NoError(t, err)
	assert.Equal(t, day(2, 14), res.Reversal.EntryDate)
	assert.Equal(t, f.feb.ID, res.Reversal.PeriodID)
}

func TestVoid_NegatesTaxLedger(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	req := invoice("INV-27", day(1, 12), "700.00")
	req.Tax = &TaxRequest{
		Zone: "91101", LiabilityAccount: "2200", OffsetAccount: "1200",
		Items: []TaxItem{{ItemType: "labor", TaxableAmount: "700.00"}},
	}
	orig, err := f.svc.Post(ctx, req, clerk)
	require.NoError(t, err)
	res, err := f.svc.Void(ctx, orig.ID, clerk, "cancelled")
	require.NoError(t, err)

	rows, err := f.taxLedger.ListByEntry(ctx, f.db, res.Reversal.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.True(t, r.TaxAmount.IsNegative())
	}

	liability := taxservice.NewLiability(f.taxLedger, f.periods)
	rep, err := liability.ReportForPeriod(ctx, f.jan.ID)
	require.NoError(t, err)
	assert.True(t, rep.Total.IsZero(), "voided sale owes no tax, got %s", rep.Total)
}

// ==========================================
// UpdateMemo / Delete
// ==========================================

func TestUpdateMemo(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	orig, err := f.svc.Post(ctx, invoice("INV-30", day(1, 5), "10.00"), clerk)
	require.NoError(t, err)

	_, err = f.svc.UpdateMemo(ctx, orig.ID, "fixed typo", clerk, "")
	require.ErrorIs(t, err, domain.ErrReasonRequired)

	e, err := f.svc.UpdateMemo(ctx, orig.ID, "fixed typo", clerk, "typo in memo")
	require.NoError(t, err)
	assert.Equal(t, "fixed typo", e.Memo)

	hist := f.history(t, fmt.Sprint(orig.ID))
	var updates []auditdomain.Record
	for _, h := range hist {
		if h.Action == auditdomain.ActionUpdate && h.Outcome == auditdomain.OutcomeAccepted {
			updates = append(updates, h)
		}
	}
	require.Len(t, updates, 1)
	assert.Equal(t, map[string]any{"memo": "service call INV-30"}, updates[0].Before)
	assert.Equal(t, map[string]any{"memo": "fixed typo"}, updates[0].After)

	_, err = f.svc.Void(ctx, orig.ID, clerk, "cancelled")
	require.NoError(t, err)
	_, err = f.svc.UpdateMemo(ctx, orig.ID, "too late", clerk, "after void")
	require.ErrorIs(t, err, domain.ErrAlreadyVoided)
}

func TestInterceptDelete(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	orig, err := f.svc.Post(ctx, invoice("INV-31", day(1, 5), "10.00"), clerk)
	require.NoError(t, err)

	err = f.svc.InterceptDelete(ctx, orig.ID, clerk, "duplicate invoice")
	require.ErrorIs(t, err, domain.ErrDeleteForbidden)

	_, err = f.svc.GetEntry(ctx, orig.ID)
	require.NoError(t, err)

	hist := f.history(t, fmt.Sprint(orig.ID))
	require.Len(t, hist, 2)
	assert.Equal(t, auditdomain.ActionDeleteAttempt, hist[1].Action)
	assert.Equal(t, auditdomain.OutcomeRejected, hist[1].Outcome)
	assert.Equal(t, "DeleteForbidden", hist[1].ErrorKind)
	assert.Equal(t, "bk-1", hist[1].ActorID)
	assert.Equal(t, "duplicate invoice", hist[1].Reason)
}

// ==========================================
// Trial balance
// ==========================================

func TestTrialBalance(t *testing.T) {
	f := setup(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Post(ctx, invoice("INV-40", day(1, 3), "500.00"), clerk)
	require.NoError(t, err)
	voided, err := f.svc.Post(ctx, invoice("INV-41", day(1, 4), "120.00"), clerk)
	require.NoError(t, err)
	payroll := PostingRequest{
		SourceType: "payroll", SourceID: "PR-1", EntryDate: day(1, 15),
		Lines: []PostingLine{
			{AccountCode: "5010", Direction: "D", Amount: "300.00"},
			{AccountCode: "1010", Direction: "C", Amount: "300.00"},
		},
	}
	_, err = f.svc.Post(ctx, payroll, clerk)
	require.NoError(t, err)
	_, err = f.svc.Void(ctx, voided.ID, clerk, "duplicate")
	require.NoError(t, err)

	net, err := f.svc.TrialBalance(ctx, day(1, 1), day(1, 31), false)
	require.NoError(t, err)
	assert.True(t, net.Balanced())
	assert.True(t, d("800").Equal(net.TotalDebit), "net debit %s", net.TotalDebit)

	balances := map[string]decimal.Decimal{}
	for _, a := range net.Accounts {
		balances[a.AccountCode] = a.Balance
	}
	assert.True(t, d("500").Equal(balances["1200"]))
	assert.True(t, d("500").Equal(balances["4010"]))
	assert.True(t, d("300").Equal(balances["5010"]))
	assert.True(t, d("-300").Equal(balances["1010"]))

	gross, err := f.svc.TrialBalance(ctx, day(1, 1), day(1, 31), true)
	require.NoError(t, err)
	assert.True(t, gross.Balanced())
	assert.True(t, d("1040").Equal(gross.TotalDebit), "gross debit %s", gross.TotalDebit)

	_, err = f.svc.TrialBalance(ctx, day(1, 31), day(1, 1), false)
	require.ErrorIs(t, err, perioddomain.ErrInvalidRange)
}

func TestParseChart(t *testing.T) {
	chart, err := ParseChart([]byte(`
accounts:
  - {code: "4010", name: Service Revenue, type: revenue}
  - {code: "6100", name: Legacy Fuel, type: Expense, currency: usd, archived: true}
`))
	require.NoError(t, err)
	require.Len(t, chart, 2)
	assert.Equal(t, domain.Revenue, chart[0].Type)
	assert.Equal(t, domain.AccountActive, chart[0].Status)
	assert.Equal(t, domain.Expense, chart[1].Type)
	assert.Equal(t, "USD", chart[1].Currency)
	assert.True(t, chart[1].Archived())

	_, err = ParseChart([]byte(`accounts: [{code: "9000", name: Odd, type: income}]`))
	require.Error(t, err)
	_, err = ParseChart([]byte(`accounts: [{code: "", name: Nameless, type: asset}]`))
	require.Error(t, err)
}
