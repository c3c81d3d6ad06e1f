package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/xxz807/fieldledger/internal/ledger/domain"
)

// DefaultChart 现场服务企业的默认科目表
// 科目表的维护在本系统之外，这里只提供初始化种子
func DefaultChart() []domain.Account {
	return []domain.Account{
		{AccountCode: "1010", Name: "Operating Cash", Type: domain.Asset},
		{AccountCode: "1200", Name: "Accounts Receivable", Type: domain.Asset},
		{AccountCode: "1300", Name: "Parts Inventory", Type: domain.Asset},
		{AccountCode: "2010", Name: "Accounts Payable", Type: domain.Liability},
		{AccountCode: "2200", Name: "Sales Tax Payable", Type: domain.Liability},
		{AccountCode: "2300", Name: "Payroll Liabilities", Type: domain.Liability},
		{AccountCode: "3010", Name: "Owner's Equity", Type: domain.Equity},
		{AccountCode: "4010", Name: "Service Revenue", Type: domain.Revenue},
		{AccountCode: "4020", Name: "Parts Revenue", Type: domain.Revenue},
		{AccountCode: "4030", Name: "Subscription Revenue", Type: domain.Revenue},
		{AccountCode: "5010", Name: "Technician Wages", Type: domain.Expense},
		{AccountCode: "5020", Name: "Cost of Parts", Type: domain.Expense},
		{AccountCode: "5030", Name: "Freight Out", Type: domain.Expense},
	}
}

type chartFile struct {
	Accounts []struct {
		Code     string `yaml:"code"`
		Name     string `yaml:"name"`
		Type     string `yaml:"type"`
		Currency string `yaml:"currency"`
		Archived bool   `yaml:"archived"`
	} `yaml:"accounts"`
}

// ParseChart 解析科目表 YAML
func ParseChart(raw []byte) ([]domain.Account, error) {
	var doc chartFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse chart: %w", err)
	}
	out := make([]domain.Account, 0, len(doc.Accounts))
	for _, a := range doc.Accounts {
		code := strings.TrimSpace(a.Code)
		if code == "" || strings.TrimSpace(a.Name) == "" {
			return nil, fmt.Errorf("chart: account %q needs code and name", a.Code)
		}
		t, ok := domain.ParseAccountType(strings.ToLower(strings.TrimSpace(a.Type)))
		if !ok {
			return nil, fmt.Errorf("chart: account %s has unknown type %q", code, a.Type)
		}
		acc := domain.Account{AccountCode: code, Name: a.Name, Type: t, Currency: strings.ToUpper(a.Currency)}
		if a.Archived {
			acc.Status = domain.AccountArchived
		}
		out = append(out, acc)
	}
	return out, nil
}

// SeedAccounts 按代码插入或更新科目
func (s *LedgerService) SeedAccounts(ctx context.Context, accounts []domain.Account) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range accounts {
			if accounts[i].Currency == "" {
				accounts[i].Currency = "USD"
			}
			if err := s.accountRepo.Upsert(ctx, tx, &accounts[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("chart of accounts seeded", zap.Int("accounts", len(accounts)))
	return nil
}

// ListAccounts 科目列表
func (s *LedgerService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.accountRepo.List(ctx)
}
