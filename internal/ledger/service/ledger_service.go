package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
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

const (
	ReversalOnVoidDate     = "void_date"
	ReversalOnOriginalDate = "original_date"

	TaxLinesPerAuthority = "per_authority"
	TaxLinesAggregate    = "aggregate"

	entrySequence = "journal_entry"
)

// PeriodGate 期间闸门，必须在过账事务中调用
type PeriodGate interface {
	CheckPostable(ctx context.Context, tx *gorm.DB, date time.Time) (*perioddomain.AccountingPeriod, error)
	CheckAmendable(ctx context.Context, tx *gorm.DB, date time.Time) (*perioddomain.AccountingPeriod, error)
}

// TaxCalculator 计税 (在事务外调用，只读参考数据)
type TaxCalculator interface {
	ComputeTax(ctx context.Context, items []taxdomain.LineItem, zone string, date time.Time) (*taxdomain.TaxResult, error)
}

// Options 过账策略
type Options struct {
	ReversalDating string
	TaxLinePolicy  string
}

// PostingRequest 定义记账请求的 DTO (Input)
type PostingRequest struct {
	SourceType string
	SourceID   string
	EntryDate  time.Time
	Memo       string
	Lines      []PostingLine
	Tax        *TaxRequest // 带收入的单据才有
}

type PostingLine struct {
	AccountCode string
	Direction   string // "D" or "C"
	Amount      string // 传字符串防止精度丢失
	Memo        string
}

// TaxRequest 税额贷记到 LiabilityAccount，借记 OffsetAccount (通常是应收)
type TaxRequest struct {
	Zone             string
	LiabilityAccount string
	OffsetAccount    string
	Items            []TaxItem
}

type TaxItem struct {
	Ref           string
	ItemType      string
	TaxableAmount string
}

// VoidResult 作废结果：原分录 (已标记) 与新生成的冲销分录
type VoidResult struct {
	Original *domain.JournalEntry
	Reversal *domain.JournalEntry
}

// LedgerService 核心服务：过账、作废、备注修改
type LedgerService struct {
	db          *gorm.DB // 用于开启事务
	accountRepo domain.AccountRepository
	entryRepo   domain.EntryRepository
	taxLedger   taxdomain.LedgerRepository
	periods     PeriodGate
	tax         TaxCalculator
	recorder    *auditservice.Recorder
	logger      *zap.Logger
	opts        Options
	now         func() time.Time
}

func NewLedgerService(
	db *gorm.DB,
	accRepo domain.AccountRepository,
	entryRepo domain.EntryRepository,
	taxLedger taxdomain.LedgerRepository,
	periods PeriodGate,
	tax TaxCalculator,
	recorder *auditservice.Recorder,
	logger *zap.Logger,
	opts Options,
) *LedgerService {
	if opts.ReversalDating == "" {
		opts.ReversalDating = ReversalOnVoidDate
	}
	if opts.TaxLinePolicy == "" {
		opts.TaxLinePolicy = TaxLinesPerAuthority
	}
	return &LedgerService{
		db:          db,
		accountRepo: accRepo,
		entryRepo:   entryRepo,
		taxLedger:   taxLedger,
		periods:     periods,
		tax:         tax,
		recorder:    recorder,
		logger:      logger,
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock 测试时替换时钟
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// ==========================================
// 过账
// ==========================================

// Post 执行记账 (ACID Transaction Script)
// 分录、分录行、税务台账、审计记录在同一个事务中提交，任一失败全部回滚
func (s *LedgerService) Post(ctx context.Context, req PostingRequest, a actor.Actor) (*domain.JournalEntry, error) {
	ev := auditservice.Event{
		TargetType: auditdomain.TargetJournalEntry,
		TargetID:   "draft:" + req.SourceType + ":" + req.SourceID,
		Action:     auditdomain.ActionInsert,
		Actor:      a,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	// 1. 基础校验 & 试算平衡检查 (In-Memory Check)
	date := perioddomain.DateOf(req.EntryDate)
	lines, err := validateDraft(req)
	if err != nil {
		return nil, s.recorder.Reject(ctx, ev, err)
	}

	// 2. 计税：未知税区是硬性闸门，在任何写入之前拒绝
	var taxRes *taxdomain.TaxResult
	if req.Tax != nil {
		taxRes, err = s.computeTax(ctx, req.Tax, date)
		if err != nil {
			return nil, s.recorder.Reject(ctx, ev, err)
		}
		lines = append(lines, s.taxLines(req.Tax, taxRes)...)
	}
	if err := checkBalanced(lines); err != nil {
		return nil, s.recorder.Reject(ctx, ev, err)
	}

	entry := &domain.JournalEntry{
		SourceType: domain.SourceType(req.SourceType),
		SourceID:   req.SourceID,
		EntryDate:  date,
		Memo:       strings.TrimSpace(req.Memo),
		PostedBy:   a.ID,
	}

	// 3. 开启数据库事务 (The Big Transaction)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A. 幂等性检查
		exists, err := s.entryRepo.ExistsBySource(ctx, tx, entry.SourceType, entry.SourceID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s:%s", domain.ErrDuplicateSource, entry.SourceType, entry.SourceID)
		}

		// B. 期间闸门 (共享锁，关账要等本事务结束)
		period, err := s.periods.CheckPostable(ctx, tx, date)
		if err != nil {
			return err
		}
		entry.PeriodID = period.ID

		// C. 科目必须存在且未归档
		resolved, err := s.resolveAccounts(ctx, tx, lines)
		if err != nil {
			return err
		}

		// D. 凭证号由数据库计数器分配
		number, err := database.NextValue(ctx, tx, entrySequence)
		if err != nil {
			return err
		}
		entry.EntryNumber = number
		entry.PostedAt = s.now()
		entry.Lines = resolved

		// E. 保存凭证和分录行 (Insert Logs)
		if err := s.entryRepo.Create(ctx, tx, entry); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s:%s", domain.ErrDuplicateSource, entry.SourceType, entry.SourceID)
			}
			return err
		}

		// F. 税务台账
		if taxRes != nil {
			records := make([]taxdomain.TaxLedgerRecord, len(taxRes.Records))
			for i, r := range taxRes.Records {
				r.EntryID = entry.ID
				r.SourceType = string(entry.SourceType)
				r.SourceID = entry.SourceID
				records[i] = r
			}
			if err := s.taxLedger.CreateBatch(ctx, tx, records); err != nil {
				return err
			}
		}

		// G. 审计 (失败则整个事务回滚)
		return s.recorder.Record(ctx, tx, auditservice.Event{
			TargetType: auditdomain.TargetJournalEntry,
			TargetID:   strconv.FormatInt(entry.ID, 10),
			Action:     auditdomain.ActionInsert,
			After:      entry.Snapshot(),
			Actor:      a,
		})
	})
	if err != nil {
		return nil, s.recorder.Reject(ctx, ev, database.Classify(err))
	}

	s.logger.Info("journal entry posted",
		zap.Int64("entry_id", entry.ID),
		zap.Int64("entry_number", entry.EntryNumber),
		zap.String("source", string(entry.SourceType)+":"+entry.SourceID),
		zap.Int64("period_id", entry.PeriodID),
		zap.String("actor", a.ID),
	)
	return entry, nil
}

// draftLine 尚未解析科目 ID 的分录行
type draftLine struct {
	code string
	line domain.JournalLine
}

// validateDraft 解析分录行：至少两行，金额为正且最多两位小数
func validateDraft(req PostingRequest) ([]draftLine, error) {
	if !domain.SourceType(req.SourceType).IsValid() {
		return nil, fmt.Errorf("%w: unsupported source type %q", domain.ErrInvalidDraft, req.SourceType)
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return nil, fmt.Errorf("%w: source id is required", domain.ErrInvalidDraft)
	}
	if req.EntryDate.IsZero() {
		return nil, fmt.Errorf("%w: entry date is required", domain.ErrInvalidDraft)
	}
	if len(req.Lines) < 2 {
		return nil, fmt.Errorf("%w: entry must have at least 2 lines", domain.ErrInvalidDraft)
	}

	lines := make([]draftLine, 0, len(req.Lines)+4)
	for i, l := range req.Lines {
		amt, err := parseAmount(l.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrInvalidDraft, i+1, err)
		}
		dir := domain.Direction(l.Direction)
		if !dir.IsValid() {
			return nil, fmt.Errorf("%w: line %d: invalid direction %q", domain.ErrInvalidDraft, i+1, l.Direction)
		}
		code := strings.TrimSpace(l.AccountCode)
		if code == "" {
			return nil, fmt.Errorf("%w: line %d: account code is required", domain.ErrInvalidDraft, i+1)
		}
		lines = append(lines, draftLine{
			code: code,
			line: domain.JournalLine{Direction: dir, Amount: amt, Memo: l.Memo},
		})
	}
	return lines, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %s", raw)
	}
	if !amt.IsPositive() {
		return decimal.Zero, errors.New("amount must be positive")
	}
	if !amt.Equal(amt.Round(2)) {
		return decimal.Zero, fmt.Errorf("amount %s has more than 2 decimal places", raw)
	}
	return amt, nil
}

// checkBalanced 核心逻辑：借贷必相等
func checkBalanced(lines []draftLine) error {
	var debit, credit decimal.Decimal
	for _, l := range lines {
		if l.line.Direction == domain.Debit {
			debit = debit.Add(l.line.Amount)
		} else {
			credit = credit.Add(l.line.Amount)
		}
	}
	if !debit.Equal(credit) {
		return &domain.ImbalanceError{Debit: debit.StringFixed(2), Credit: credit.StringFixed(2)}
	}
	return nil
}

// resolveAccounts 代码 -> 科目 ID，缺失或已归档都算未知科目
func (s *LedgerService) resolveAccounts(ctx context.Context, tx *gorm.DB, lines []draftLine) ([]domain.JournalLine, error) {
	codes := make([]string, 0, len(lines))
	seen := make(map[string]bool)
	for _, l := range lines {
		if !seen[l.code] {
			seen[l.code] = true
			codes = append(codes, l.code)
		}
	}

	accounts, err := s.accountRepo.FindByCodes(ctx, tx, codes)
	if err != nil {
		return nil, err
	}

	out := make([]domain.JournalLine, len(lines))
	for i, l := range lines {
		acc, ok := accounts[l.code]
		if !ok || acc.Archived() {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAccount, l.code)
		}
		out[i] = l.line
		out[i].AccountID = acc.ID
		out[i].LineNo = i + 1
	}
	return out, nil
}

func (s *LedgerService) computeTax(ctx context.Context, req *TaxRequest, date time.Time) (*taxdomain.TaxResult, error) {
	if req.LiabilityAccount == "" || req.OffsetAccount == "" {
		return nil, fmt.Errorf("%w: tax liability and offset accounts are required", domain.ErrInvalidDraft)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: tax block has no items", domain.ErrInvalidDraft)
	}
	items := make([]taxdomain.LineItem, len(req.Items))
	for i, it := range req.Items {
		amt, err := decimal.NewFromString(strings.TrimSpace(it.TaxableAmount))
		if err != nil {
			return nil, fmt.Errorf("%w: tax item %d: invalid amount %q", domain.ErrInvalidDraft, i+1, it.TaxableAmount)
		}
		items[i] = taxdomain.LineItem{Ref: it.Ref, ItemType: taxdomain.ItemType(it.ItemType), TaxableAmount: amt}
	}
	return s.tax.ComputeTax(ctx, items, req.Zone, date)
}

// taxLines 税额贷记应交税费 (按机关或合并一行)，合计借记对方科目
func (s *LedgerService) taxLines(req *TaxRequest, res *taxdomain.TaxResult) []draftLine {
	if !res.Total.IsPositive() {
		return nil
	}

	var out []draftLine
	if s.opts.TaxLinePolicy == TaxLinesAggregate {
		out = append(out, draftLine{
			code: req.LiabilityAccount,
			line: domain.JournalLine{Direction: domain.Credit, Amount: res.Total, Memo: "sales tax " + req.Zone},
		})
	} else {
		for _, a := range res.Authorities {
			amt, ok := res.ByAuthority[a.ID]
			if !ok || !amt.IsPositive() {
				continue
			}
			out = append(out, draftLine{
				code: req.LiabilityAccount,
				line: domain.JournalLine{Direction: domain.Credit, Amount: amt, Jurisdiction: a.ID, Memo: "sales tax " + a.Name},
			})
		}
	}
	return append(out, draftLine{
		code: req.OffsetAccount,
		line: domain.JournalLine{Direction: domain.Debit, Amount: res.Total, Memo: "sales tax receivable"},
	})
}
