package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/xxz807/fieldledger/internal/audit/domain"
	auditservice "github.com/xxz807/fieldledger/internal/audit/service"
	"github.com/xxz807/fieldledger/internal/ledger/domain"
	perioddomain "github.com/xxz807/fieldledger/internal/period/domain"
	"github.com/xxz807/fieldledger/internal/platform/actor"
	"github.com/xxz807/fieldledger/internal/platform/database"
	taxdomain "github.com/xxz807/fieldledger/internal/tax/domain"
)

// GetEntry 按 ID 查询凭证 (含分录行)
func (s *LedgerService) GetEntry(ctx context.Context, id int64) (*domain.JournalEntry, error) {
	e, err := s.entryRepo.FindByID(ctx, s.db, id, false)
	return e, database.Classify(err)
}

// Void 作废：生成借贷互换的冲销分录，原分录只打标记不删除
// 原分录与冲销分录所在期间都不能是 closed
func (s *LedgerService) Void(ctx context.Context, id int64, a actor.Actor, reason string) (*VoidResult, error) {
	reason = strings.TrimSpace(reason)
	ev := auditservice.Event{
		TargetType: auditdomain.TargetJournalEntry,
		TargetID:   strconv.FormatInt(id, 10),
		Action:     auditdomain.ActionVoid,
		Reason:     reason,
		Actor:      a,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, s.recorder.Reject(ctx, ev, &domain.EntryError{Kind: domain.ErrReasonRequired, EntryID: id})
	}

	var result VoidResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 排他锁：并发作废时第二个请求等待，随后看到 voided=true
		orig, err := s.entryRepo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if orig.Voided {
			return &domain.EntryError{Kind: domain.ErrAlreadyVoided, EntryID: id, ReversedBy: orig.ReversedBy}
		}
		if orig.IsReversal() {
			return &domain.EntryError{Kind: domain.ErrIsReversal, EntryID: id}
		}

		if _, err := s.periods.CheckAmendable(ctx, tx, orig.EntryDate); err != nil {
			return err
		}
		now := s.now()
		revDate := s.reversalDate(orig, now)
		revPeriod, err := s.periods.CheckAmendable(ctx, tx, revDate)
		if err != nil {
			return err
		}

		number, err := database.NextValue(ctx, tx, entrySequence)
		if err != nil {
			return err
		}
		origID := orig.ID
		rev := &domain.JournalEntry{
			EntryNumber: number,
			SourceType:  domain.SourceReversal,
			SourceID:    strconv.FormatInt(orig.ID, 10),
			EntryDate:   revDate,
			PeriodID:    revPeriod.ID,
			Memo:        fmt.Sprintf("Reversal of #%d: %s", orig.EntryNumber, reason),
			PostedBy:    a.ID,
			PostedAt:    now,
			ReversalOf:  &origID,
			Lines:       mirror(orig.Lines),
		}
		if err := s.entryRepo.Create(ctx, tx, rev); err != nil {
			return err
		}

		n, err := s.entryRepo.MarkVoided(ctx, tx, orig.ID, rev.ID, a.ID, reason, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return &domain.EntryError{Kind: domain.ErrAlreadyVoided, EntryID: id}
		}

		// 税务台账写负数镜像行，应缴税额报表随之抵消
		taxRows, err := s.taxLedger.ListByEntry(ctx, tx, orig.ID)
		if err != nil {
			return err
		}
		if len(taxRows) > 0 {
			negated := make([]taxdomain.TaxLedgerRecord, len(taxRows))
			for i, r := range taxRows {
				negated[i] = r.Negate(rev.ID, revDate)
			}
			if err := s.taxLedger.CreateBatch(ctx, tx, negated); err != nil {
				return err
			}
		}

		before := orig.Snapshot()
		revID := rev.ID
		orig.Voided = true
		orig.VoidedAt = &now
		orig.VoidedBy = a.ID
		orig.VoidReason = reason
		orig.ReversedBy = &revID

		ev.Before, ev.After = auditservice.Diff(before, orig.Snapshot())
		if err := s.recorder.Record(ctx, tx, ev); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, tx, auditservice.Event{
			TargetType: auditdomain.TargetJournalEntry,
			TargetID:   strconv.FormatInt(rev.ID, 10),
			Action:     auditdomain.ActionInsert,
			After:      rev.Snapshot(),
			Reason:     reason,
			Actor:      a,
		}); err != nil {
			return err
		}

		result = VoidResult{Original: orig, Reversal: rev}
		return nil
	})
	if err != nil {
		return nil, s.recorder.Reject(ctx, ev, database.Classify(err))
	}

	s.logger.Info("journal entry voided",
		zap.Int64("entry_id", result.Original.ID),
		zap.Int64("reversal_id", result.Reversal.ID),
		zap.String("reversal_date", result.Reversal.EntryDate.Format(time.DateOnly)),
		zap.String("actor", a.ID),
	)
	return &result, nil
}

func (s *LedgerService) reversalDate(orig *domain.JournalEntry, now time.Time) time.Time {
	if s.opts.ReversalDating == ReversalOnOriginalDate {
		return perioddomain.DateOf(orig.EntryDate)
	}
	return perioddomain.DateOf(now)
}

// mirror 借贷互换，金额与科目不变
func mirror(lines []domain.JournalLine) []domain.JournalLine {
	out := make([]domain.JournalLine, len(lines))
	for i, l := range lines {
		out[i] = domain.JournalLine{
			LineNo:       l.LineNo,
			AccountID:    l.AccountID,
			Direction:    l.Direction.Opposite(),
			Amount:       l.Amount,
			Jurisdiction: l.Jurisdiction,
			Memo:         l.Memo,
		}
	}
	return out
}

// UpdateMemo 唯一允许修改的非财务字段，必须填写原因
func (s *LedgerService) UpdateMemo(ctx context.Context, id int64, memo string, a actor.Actor, reason string) (*domain.JournalEntry, error) {
	reason = strings.TrimSpace(reason)
	memo = strings.TrimSpace(memo)
	ev := auditservice.Event{
		TargetType: auditdomain.TargetJournalEntry,
		TargetID:   strconv.FormatInt(id, 10),
		Action:     auditdomain.ActionUpdate,
		After:      map[string]any{"memo": memo},
		Reason:     reason,
		Actor:      a,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, s.recorder.Reject(ctx, ev, &domain.EntryError{Kind: domain.ErrReasonRequired, EntryID: id})
	}

	var entry *domain.JournalEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := s.entryRepo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if e.Voided {
			return &domain.EntryError{Kind: domain.ErrAlreadyVoided, EntryID: id, ReversedBy: e.ReversedBy}
		}
		if e.IsReversal() {
			return &domain.EntryError{Kind: domain.ErrIsReversal, EntryID: id}
		}
		if _, err := s.periods.CheckAmendable(ctx, tx, e.EntryDate); err != nil {
			return err
		}
		entry = e
		if e.Memo == memo {
			return nil
		}

		if err := s.entryRepo.UpdateMemo(ctx, tx, id, memo); err != nil {
			return err
		}
		ev.Before = map[string]any{"memo": e.Memo}
		e.Memo = memo
		return s.recorder.Record(ctx, tx, ev)
	})
	if err != nil {
		return nil, s.recorder.Reject(ctx, ev, database.Classify(err))
	}
	return entry, nil
}

// InterceptDelete 凭证永远不能删除；每一次尝试都留下审计记录
func (s *LedgerService) InterceptDelete(ctx context.Context, id int64, a actor.Actor, reason string) error {
	s.logger.Warn("journal entry delete attempt", zap.Int64("entry_id", id), zap.String("actor", a.ID))
	return s.recorder.Reject(ctx, auditservice.Event{
		TargetType: auditdomain.TargetJournalEntry,
		TargetID:   strconv.FormatInt(id, 10),
		Action:     auditdomain.ActionDeleteAttempt,
		Reason:     strings.TrimSpace(reason),
		Actor:      a,
	}, &domain.EntryError{Kind: domain.ErrDeleteForbidden, EntryID: id})
}
