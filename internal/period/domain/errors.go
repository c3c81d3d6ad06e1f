package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/xxz807/fieldledger/internal/platform/errkind"
)

var (
	ErrPeriodNotFound    = errors.New("period: no accounting period for date")
	ErrPeriodClosed      = errors.New("period: period is closed")
	ErrPeriodClosing     = errors.New("period: period is closing, new postings rejected")
	ErrAlreadyClosed     = errors.New("period: period already closed")
	ErrNotClosed         = errors.New("period: period is not closed")
	ErrOverlappingPeriod = errors.New("period: overlaps an existing period")
	ErrPeriodGap         = errors.New("period: not contiguous with existing periods")
	ErrInvalidRange      = errors.New("period: end date before start date")
	ErrForbidden         = errors.New("period: elevated role required")
	ErrReasonRequired    = errors.New("period: reason required")
)

func init() {
	errkind.Register(ErrPeriodNotFound, "PeriodNotFound")
	errkind.Register(ErrPeriodClosed, "PeriodClosed")
	errkind.Register(ErrPeriodClosing, "PeriodClosing")
	errkind.Register(ErrAlreadyClosed, "AlreadyClosed")
	errkind.Register(ErrNotClosed, "PeriodNotClosed")
	errkind.Register(ErrOverlappingPeriod, "OverlappingPeriod")
	errkind.Register(ErrPeriodGap, "PeriodGap")
	errkind.Register(ErrInvalidRange, "InvalidPeriod")
	errkind.Register(ErrForbidden, "Forbidden")
	errkind.Register(ErrReasonRequired, "ReasonRequired")
}

// PeriodError 携带阻塞的期间 ID，方便上层给出可操作的提示
type PeriodError struct {
	Kind     error
	PeriodID int64
	Date     time.Time
}

func (e *PeriodError) Error() string {
	if e.PeriodID == 0 {
		return fmt.Sprintf("%s (date %s)", e.Kind, e.Date.Format(time.DateOnly))
	}
	if e.Date.IsZero() {
		return fmt.Sprintf("%s (period %d)", e.Kind, e.PeriodID)
	}
	return fmt.Sprintf("%s (period %d, date %s)", e.Kind, e.PeriodID, e.Date.Format(time.DateOnly))
}

func (e *PeriodError) Unwrap() error { return e.Kind }

// Details 实现 httpx.Detailer
func (e *PeriodError) Details() map[string]any {
	d := map[string]any{}
	if e.PeriodID != 0 {
		d["period_id"] = e.PeriodID
	}
	if !e.Date.IsZero() {
		d["date"] = e.Date.Format(time.DateOnly)
	}
	return d
}
