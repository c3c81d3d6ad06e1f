package domain

import (
	"errors"
	"fmt"

	"github.com/xxz807/fieldledger/internal/platform/errkind"
)

var (
	ErrUnknownZone      = errors.New("tax: unknown tax zone")
	ErrUnknownAuthority = errors.New("tax: unknown tax authority")
	ErrRuleConflict     = errors.New("tax: overlapping rule for authority and item type")
	ErrInvalidItem      = errors.New("tax: invalid line item")
	ErrInvalidReference = errors.New("tax: invalid reference data")
)

func init() {
	errkind.Register(ErrUnknownZone, "UnknownZone")
	errkind.Register(ErrUnknownAuthority, "UnknownAuthority")
	errkind.Register(ErrRuleConflict, "RuleConflict")
	errkind.Register(ErrInvalidItem, "InvalidTaxItem")
	errkind.Register(ErrInvalidReference, "InvalidReferenceData")
}

// ZoneError 携带无法解析的税区 key
type ZoneError struct {
	Key string
}

func (e *ZoneError) Error() string { return fmt.Sprintf("%s: %q", ErrUnknownZone, e.Key) }

func (e *ZoneError) Unwrap() error { return ErrUnknownZone }

func (e *ZoneError) Details() map[string]any {
	return map[string]any{"zone": e.Key}
}
