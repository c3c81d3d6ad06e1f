package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xxz807/fieldledger/internal/ledger/domain"
	perioddomain "github.com/xxz807/fieldledger/internal/period/domain"
	"github.com/xxz807/fieldledger/internal/platform/database"
)

// AccountBalance 单个科目的借贷发生额
type AccountBalance struct {
	AccountID   int64
	AccountCode string
	AccountName string
	AccountType domain.AccountType
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	// Balance 按科目余额方向计算 (资产/费用: 借-贷；其余: 贷-借)
	Balance decimal.Decimal
}

// TrialBalance 试算平衡表
type TrialBalance struct {
	From        time.Time
	To          time.Time
	Gross       bool
	Accounts    []AccountBalance
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Balanced 借贷合计相等
func (tb *TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// TrialBalance [from, to] 区间内按科目汇总
// gross=false (默认): 剔除已作废分录和冲销分录，呈现 "从未发生" 的视图。
// 注意这不是简单的 "未作废行之和"：冲销分录本身未作废，但同样被剔除；
// 若保留冲销行，原分录作废后科目会出现反向余额
// gross=true: 包含全部分录行，原分录与冲销分录各自计入所在日期
func (s *LedgerService) TrialBalance(ctx context.Context, from, to time.Time, gross bool) (*TrialBalance, error) {
	from, to = perioddomain.DateOf(from), perioddomain.DateOf(to)
	if to.Before(from) {
		return nil, perioddomain.ErrInvalidRange
	}

	rows, err := s.entryRepo.ListLines(ctx, from, to)
	if err != nil {
		return nil, database.Classify(err)
	}

	tb := &TrialBalance{From: from, To: to, Gross: gross}
	index := make(map[int64]int)
	for _, r := range rows {
		if !gross && (r.Voided || r.ReversalOf != nil) {
			continue
		}
		i, ok := index[r.AccountID]
		if !ok {
			i = len(tb.Accounts)
			index[r.AccountID] = i
			tb.Accounts = append(tb.Accounts, AccountBalance{
				AccountID:   r.AccountID,
				AccountCode: r.AccountCode,
				AccountName: r.AccountName,
				AccountType: r.AccountType,
			})
		}
		acc := &tb.Accounts[i]
		if r.Direction == domain.Debit {
			acc.Debit = acc.Debit.Add(r.Amount)
			tb.TotalDebit = tb.TotalDebit.Add(r.Amount)
		} else {
			acc.Credit = acc.Credit.Add(r.Amount)
			tb.TotalCredit = tb.TotalCredit.Add(r.Amount)
		}
	}

	for i := range tb.Accounts {
		acc := &tb.Accounts[i]
		if acc.AccountType.NormalSide() == domain.Debit {
			acc.Balance = acc.Debit.Sub(acc.Credit)
		} else {
			acc.Balance = acc.Credit.Sub(acc.Debit)
		}
	}
	return tb, nil
}
