package domain

import (
	"errors"
	"fmt"

	"github.com/xxz807/fieldledger/internal/platform/errkind"
)

var (
	ErrUnbalancedEntry = errors.New("ledger: debits and credits do not balance")
	ErrUnknownAccount  = errors.New("ledger: unknown or archived account")
	ErrInvalidDraft    = errors.New("ledger: invalid entry draft")
	ErrDuplicateSource = errors.New("ledger: source document already posted")
	ErrEntryNotFound   = errors.New("ledger: journal entry not found")
	ErrAlreadyVoided   = errors.New("ledger: journal entry already voided")
	ErrIsReversal      = errors.New("ledger: reversal entries cannot be voided or edited")
	ErrDeleteForbidden = errors.New("ledger: journal entries cannot be deleted, void instead")
	ErrReasonRequired  = errors.New("ledger: reason required")
)

func init() {
	errkind.Register(ErrUnbalancedEntry, "UnbalancedEntry")
	errkind.Register(ErrUnknownAccount, "UnknownAccount")
	errkind.Register(ErrInvalidDraft, "InvalidDraft")
	errkind.Register(ErrDuplicateSource, "DuplicateSource")
	errkind.Register(ErrEntryNotFound, "EntryNotFound")
	errkind.Register(ErrAlreadyVoided, "AlreadyVoided")
	errkind.Register(ErrIsReversal, "ReversalImmutable")
	errkind.Register(ErrDeleteForbidden, "DeleteForbidden")
	errkind.Register(ErrReasonRequired, "ReasonRequired")
}

// EntryError 携带分录 ID；已作废时附带冲销分录 ID
type EntryError struct {
	Kind       error
	EntryID    int64
	ReversedBy *int64
}

func (e *EntryError) Error() string {
	if e.ReversedBy != nil {
		return fmt.Sprintf("%s (entry %d, reversed by %d)", e.Kind, e.EntryID, *e.ReversedBy)
	}
	return fmt.Sprintf("%s (entry %d)", e.Kind, e.EntryID)
}

func (e *EntryError) Unwrap() error { return e.Kind }

// Details 实现 httpx.Detailer
func (e *EntryError) Details() map[string]any {
	d := map[string]any{"entry_id": e.EntryID}
	if e.ReversedBy != nil {
		d["reversed_by"] = *e.ReversedBy
	}
	return d
}

// ImbalanceError 借贷差额
type ImbalanceError struct {
	Debit  string
	Credit string
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("%s: debit=%s, credit=%s", ErrUnbalancedEntry, e.Debit, e.Credit)
}

func (e *ImbalanceError) Unwrap() error { return ErrUnbalancedEntry }

func (e *ImbalanceError) Details() map[string]any {
	return map[string]any{"debit": e.Debit, "credit": e.Credit}
}
