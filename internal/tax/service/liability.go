package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	perioddomain "github.com/xxz807/fieldledger/internal/period/domain"
	"github.com/xxz807/fieldledger/internal/platform/database"
	"github.com/xxz807/fieldledger/internal/tax/domain"
)

// PeriodLookup 按 ID 查询会计期间
type PeriodLookup interface {
	GetPeriod(ctx context.Context, id int64) (*perioddomain.AccountingPeriod, error)
}

// LiabilityReport 应缴税额报表
type LiabilityReport struct {
	From  time.Time
	To    time.Time
	Lines []domain.LiabilityLine
	Total decimal.Decimal
}

// Liability 按机关汇总税务台账
// 冲销分录写入的是负数行，所以作废的交易在报表中自然抵消
type Liability struct {
	ledger  domain.LedgerRepository
	periods PeriodLookup
}

func NewLiability(ledger domain.LedgerRepository, periods PeriodLookup) *Liability {
	return &Liability{ledger: ledger, periods: periods}
}

// Report [from, to] 区间 (含两端) 的应缴税额
func (s *Liability) Report(ctx context.Context, from, to time.Time) (*LiabilityReport, error) {
	from, to = perioddomain.DateOf(from), perioddomain.DateOf(to)
	if to.Before(from) {
		return nil, perioddomain.ErrInvalidRange
	}

	records, err := s.ledger.ListBetween(ctx, from, to)
	if err != nil {
		return nil, database.Classify(err)
	}

	byAuthority := make(map[string]*domain.LiabilityLine)
	total := decimal.Zero
	for _, r := range records {
		line, ok := byAuthority[r.AuthorityID]
		if !ok {
			line = &domain.LiabilityLine{AuthorityID: r.AuthorityID}
			byAuthority[r.AuthorityID] = line
		}
		line.TaxableAmount = line.TaxableAmount.Add(r.TaxableAmount)
		line.TaxAmount = line.TaxAmount.Add(r.TaxAmount)
		total = total.Add(r.TaxAmount)
	}

	report := &LiabilityReport{From: from, To: to, Total: total}
	for _, line := range byAuthority {
		report.Lines = append(report.Lines, *line)
	}
	sort.Slice(report.Lines, func(i, j int) bool {
		return report.Lines[i].AuthorityID < report.Lines[j].AuthorityID
	})
	return report, nil
}

// ReportForPeriod 会计期间的应缴税额
func (s *Liability) ReportForPeriod(ctx context.Context, periodID int64) (*LiabilityReport, error) {
	p, err := s.periods.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	return s.Report(ctx, p.StartDate, p.EndDate)
}
