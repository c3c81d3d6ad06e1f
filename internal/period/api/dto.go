package api

import (
	"time"

	"github.com/xxz807/fieldledger/internal/period/domain"
)

type CreatePeriodReq struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate   string `json:"end_date" binding:"required"`
}

type ReopenReq struct {
	Reason string `json:"reason" binding:"required"`
}

type PeriodResp struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Status    string     `json:"status"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ClosedBy  string     `json:"closed_by,omitempty"`
}

func toPeriodResp(p *domain.AccountingPeriod) PeriodResp {
	return PeriodResp{
		ID:        p.ID,
		Name:      p.Name,
		StartDate: p.StartDate.Format(time.DateOnly),
		EndDate:   p.EndDate.Format(time.DateOnly),
		Status:    string(p.Status),
		ClosedAt:  p.ClosedAt,
		ClosedBy:  p.ClosedBy,
	}
}
