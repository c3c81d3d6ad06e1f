package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xxz807/fieldledger/internal/tax/domain"
	"github.com/xxz807/fieldledger/internal/tax/service"
)

type LineItemReq struct {
	Ref           string          `json:"ref"`
	ItemType      string          `json:"item_type" binding:"required"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
}

type ComputeTaxReq struct {
	Zone  string        `json:"zone" binding:"required"`
	Date  string        `json:"date" binding:"required"` // YYYY-MM-DD
	Items []LineItemReq `json:"items" binding:"required,min=1,dive"`
}

type TaxRecordResp struct {
	LineRef       string          `json:"line_ref"`
	AuthorityID   string          `json:"authority_id"`
	ItemType      string          `json:"item_type"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
}

type ComputeTaxResp struct {
	Zone        string                     `json:"zone"`
	Date        string                     `json:"date"`
	Records     []TaxRecordResp            `json:"records"`
	ByAuthority map[string]decimal.Decimal `json:"by_authority"`
	Total       decimal.Decimal            `json:"total"`
}

type AuthorityResp struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Level    string `json:"level"`
	ParentID string `json:"parent_id,omitempty"`
}

type LiabilityLineResp struct {
	AuthorityID   string          `json:"authority_id"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
}

type LiabilityResp struct {
	From  string              `json:"from"`
	To    string              `json:"to"`
	Lines []LiabilityLineResp `json:"lines"`
	Total decimal.Decimal     `json:"total"`
}

func toAuthorityResp(a domain.TaxAuthority) AuthorityResp {
	return AuthorityResp{ID: a.ID, Name: a.Name, Level: string(a.Level), ParentID: a.ParentID}
}

func toComputeResp(zone string, date time.Time, res *domain.TaxResult) ComputeTaxResp {
	out := ComputeTaxResp{
		Zone:        zone,
		Date:        date.Format(time.DateOnly),
		Records:     make([]TaxRecordResp, len(res.Records)),
		ByAuthority: res.ByAuthority,
		Total:       res.Total,
	}
	for i, r := range res.Records {
		out.Records[i] = TaxRecordResp{
			LineRef:       r.LineRef,
			AuthorityID:   r.AuthorityID,
			ItemType:      string(r.ItemType),
			TaxableAmount: r.TaxableAmount,
			TaxAmount:     r.TaxAmount,
		}
	}
	return out
}

func toLiabilityResp(rep *service.LiabilityReport) LiabilityResp {
	out := LiabilityResp{
		From:  rep.From.Format(time.DateOnly),
		To:    rep.To.Format(time.DateOnly),
		Lines: make([]LiabilityLineResp, len(rep.Lines)),
		Total: rep.Total,
	}
	for i, l := range rep.Lines {
		out.Lines[i] = LiabilityLineResp{AuthorityID: l.AuthorityID, TaxableAmount: l.TaxableAmount, TaxAmount: l.TaxAmount}
	}
	return out
}
