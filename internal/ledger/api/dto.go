package api

import (
	"time"

	"github.com/xxz807/fieldledger/internal/ledger/domain"
	"github.com/xxz807/fieldledger/internal/ledger/service"
)

// PostEntryReq 对应上游系统 (开票/计费/工资) 发来的 JSON
type PostEntryReq struct {
	SourceType string         `json:"source_type" binding:"required,oneof=invoice billing payroll manual"`
	SourceID   string         `json:"source_id" binding:"required"`
	EntryDate  string         `json:"entry_date" binding:"required"` // YYYY-MM-DD
	Memo       string         `json:"memo"`
	Lines      []EntryLineReq `json:"lines" binding:"required,min=2,dive"` // 至少要有借和贷两条
	Tax        *TaxReq        `json:"tax"`
}

type EntryLineReq struct {
	AccountCode string `json:"account_code" binding:"required"`
	Direction   string `json:"direction" binding:"required,oneof=D C"` // 只能是 D 或 C
	Amount      string `json:"amount" binding:"required"`              // 必须传字符串
	Memo        string `json:"memo"`
}

type TaxReq struct {
	Zone             string       `json:"zone" binding:"required"`
	LiabilityAccount string       `json:"liability_account" binding:"required"`
	OffsetAccount    string       `json:"offset_account" binding:"required"`
	Items            []TaxItemReq `json:"items" binding:"required,min=1,dive"`
}

type TaxItemReq struct {
	Ref           string `json:"ref"`
	ItemType      string `json:"item_type" binding:"required"`
	TaxableAmount string `json:"taxable_amount" binding:"required"`
}

type VoidReq struct {
	Reason string `json:"reason" binding:"required"`
}

type UpdateMemoReq struct {
	Memo   string `json:"memo"`
	Reason string `json:"reason" binding:"required"`
}

func (r PostEntryReq) toService(date time.Time) service.PostingRequest {
	out := service.PostingRequest{
		SourceType: r.SourceType,
		SourceID:   r.SourceID,
		EntryDate:  date,
		Memo:       r.Memo,
		Lines:      make([]service.PostingLine, len(r.Lines)),
	}
	for i, l := range r.Lines {
		out.Lines[i] = service.PostingLine{
			AccountCode: l.AccountCode,
			Direction:   l.Direction,
			Amount:      l.Amount,
			Memo:        l.Memo,
		}
	}
	if r.Tax != nil {
		out.Tax = &service.TaxRequest{
			Zone:             r.Tax.Zone,
			LiabilityAccount: r.Tax.LiabilityAccount,
			OffsetAccount:    r.Tax.OffsetAccount,
			Items:            make([]service.TaxItem, len(r.Tax.Items)),
		}
		for i, it := range r.Tax.Items {
			out.Tax.Items[i] = service.TaxItem{Ref: it.Ref, ItemType: it.ItemType, TaxableAmount: it.TaxableAmount}
		}
	}
	return out
}

type LineResp struct {
	LineNo       int    `json:"line_no"`
	AccountID    int64  `json:"account_id"`
	Direction    string `json:"direction"`
	Amount       string `json:"amount"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	Memo         string `json:"memo,omitempty"`
}

type EntryResp struct {
	ID          int64      `json:"id"`
	EntryNumber int64      `json:"entry_number"`
	SourceType  string     `json:"source_type"`
	SourceID    string     `json:"source_id"`
	EntryDate   string     `json:"entry_date"`
	PeriodID    int64      `json:"period_id"`
	Memo        string     `json:"memo"`
	PostedBy    string     `json:"posted_by"`
	PostedAt    time.Time  `json:"posted_at"`
	Voided      bool       `json:"voided"`
	VoidReason  string     `json:"void_reason,omitempty"`
	ReversalOf  *int64     `json:"reversal_of,omitempty"`
	ReversedBy  *int64     `json:"reversed_by,omitempty"`
	Lines       []LineResp `json:"lines"`
}

func toEntryResp(e *domain.JournalEntry) EntryResp {
	out := EntryResp{
		ID:          e.ID,
		EntryNumber: e.EntryNumber,
		SourceType:  string(e.SourceType),
		SourceID:    e.SourceID,
		EntryDate:   e.EntryDate.Format(time.DateOnly),
		PeriodID:    e.PeriodID,
		Memo:        e.Memo,
		PostedBy:    e.PostedBy,
		PostedAt:    e.PostedAt,
		Voided:      e.Voided,
		VoidReason:  e.VoidReason,
		ReversalOf:  e.ReversalOf,
		ReversedBy:  e.ReversedBy,
		Lines:       make([]LineResp, len(e.Lines)),
	}
	for i, l := range e.Lines {
		out.Lines[i] = LineResp{
			LineNo:       l.LineNo,
			AccountID:    l.AccountID,
			Direction:    string(l.Direction),
			Amount:       l.Amount.StringFixed(2),
			Jurisdiction: l.Jurisdiction,
			Memo:         l.Memo,
		}
	}
	return out
}

type BalanceResp struct {
	AccountCode string `json:"account_code"`
	AccountName string `json:"account_name"`
	AccountType string `json:"account_type"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Balance     string `json:"balance"`
}

type TrialBalanceResp struct {
	From        string        `json:"from"`
	To          string        `json:"to"`
	View        string        `json:"view"`
	Accounts    []BalanceResp `json:"accounts"`
	TotalDebit  string        `json:"total_debit"`
	TotalCredit string        `json:"total_credit"`
	Balanced    bool          `json:"balanced"`
}

func toTrialBalanceResp(tb *service.TrialBalance) TrialBalanceResp {
	view := "net"
	if tb.Gross {
		view = "gross"
	}
	out := TrialBalanceResp{
		From:        tb.From.Format(time.DateOnly),
		To:          tb.To.Format(time.DateOnly),
		View:        view,
		Accounts:    make([]BalanceResp, len(tb.Accounts)),
		TotalDebit:  tb.TotalDebit.StringFixed(2),
		TotalCredit: tb.TotalCredit.StringFixed(2),
		Balanced:    tb.Balanced(),
	}
	for i, a := range tb.Accounts {
		out.Accounts[i] = BalanceResp{
			AccountCode: a.AccountCode,
			AccountName: a.AccountName,
			AccountType: a.AccountType.String(),
			Debit:       a.Debit.StringFixed(2),
			Credit:      a.Credit.StringFixed(2),
			Balance:     a.Balance.StringFixed(2),
		}
	}
	return out
}

type AccountResp struct {
	ID          int64  `json:"id"`
	AccountCode string `json:"account_code"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Currency    string `json:"currency"`
	Archived    bool   `json:"archived"`
}
