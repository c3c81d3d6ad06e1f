// Package app wires repositories, services and handlers together.
// cmd/api and cmd/glctl share it so both entry points see the same graph.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditrepo "github.com/xxz807/fieldledger/internal/audit/adapter/repo"
	auditapi "github.com/xxz807/fieldledger/internal/audit/api"
	auditdomain "github.com/xxz807/fieldledger/internal/audit/domain"
	auditservice "github.com/xxz807/fieldledger/internal/audit/service"
	ledgerrepo "github.com/xxz807/fieldledger/internal/ledger/adapter/repo"
	ledgerapi "github.com/xxz807/fieldledger/internal/ledger/api"
	ledgerdomain "github.com/xxz807/fieldledger/internal/ledger/domain"
	ledgerservice "github.com/xxz807/fieldledger/internal/ledger/service"
	periodrepo "github.com/xxz807/fieldledger/internal/period/adapter/repo"
	periodapi "github.com/xxz807/fieldledger/internal/period/api"
	perioddomain "github.com/xxz807/fieldledger/internal/period/domain"
	periodservice "github.com/xxz807/fieldledger/internal/period/service"
	"github.com/xxz807/fieldledger/internal/platform/config"
	"github.com/xxz807/fieldledger/internal/platform/database"
	"github.com/xxz807/fieldledger/internal/platform/server"
	"github.com/xxz807/fieldledger/internal/tax/adapter/cache"
	taxrepo "github.com/xxz807/fieldledger/internal/tax/adapter/repo"
	taxapi "github.com/xxz807/fieldledger/internal/tax/api"
	taxdomain "github.com/xxz807/fieldledger/internal/tax/domain"
	taxservice "github.com/xxz807/fieldledger/internal/tax/service"
)

// Models 需要迁移的全部表
func Models() []any {
	return []any{
		&database.Sequence{},
		&auditdomain.Record{},
		&perioddomain.AccountingPeriod{},
		&ledgerdomain.Account{},
		&ledgerdomain.JournalEntry{},
		&ledgerdomain.JournalLine{},
		&taxdomain.TaxAuthority{},
		&taxdomain.ZoneAuthority{},
		&taxdomain.TaxRule{},
		&taxdomain.TaxLedgerRecord{},
	}
}

// App 组装好的服务
type App struct {
	DB        *gorm.DB
	Recorder  *auditservice.Recorder
	Periods   *periodservice.Manager
	Ledger    *ledgerservice.LedgerService
	Resolver  *taxservice.Resolver
	Loader    *taxservice.ReferenceLoader
	Liability *taxservice.Liability

	redis *redis.Client
}

// New 依赖注入 (Wiring)
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*App, error) {
	zones, client, err := newZoneCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	// -- Audit --
	recorder := auditservice.NewRecorder(db, auditrepo.NewRecordRepo(db), logger.Named("audit"))

	// -- Period --
	periods := periodservice.NewManager(db, periodrepo.NewPeriodRepo(db), recorder, logger.Named("period"))

	// -- Tax --
	refs := taxrepo.NewReferenceRepo(db)
	taxLedger := taxrepo.NewLedgerRepo(db)
	resolver := taxservice.NewResolver(db, refs, zones, logger.Named("tax"))
	loader := taxservice.NewReferenceLoader(db, refs, zones, recorder, logger.Named("tax"))
	liability := taxservice.NewLiability(taxLedger, periods)

	// -- Ledger --
	ledger := ledgerservice.NewLedgerService(
		db,
		ledgerrepo.NewAccountRepo(db),
		ledgerrepo.NewEntryRepo(db),
		taxLedger,
		periods,
		resolver,
		recorder,
		logger.Named("ledger"),
		ledgerservice.Options{
			ReversalDating: cfg.Ledger.ReversalDating,
			TaxLinePolicy:  cfg.Tax.LinePolicy,
		},
	)

	return &App{
		DB:        db,
		Recorder:  recorder,
		Periods:   periods,
		Ledger:    ledger,
		Resolver:  resolver,
		Loader:    loader,
		Liability: liability,
		redis:     client,
	}, nil
}

// Handlers 按模块返回路由注册器
func (a *App) Handlers() []server.RouteRegistrar {
	return []server.RouteRegistrar{
		ledgerapi.NewLedgerHandler(a.Ledger),
		periodapi.NewPeriodHandler(a.Periods),
		taxapi.NewTaxHandler(a.Resolver, a.Liability),
		auditapi.NewAuditHandler(a.Recorder),
	}
}

// Close 释放外部连接
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

func newZoneCache(ctx context.Context, cfg config.CacheConfig) (taxdomain.ZoneCache, *redis.Client, error) {
	ttl, err := time.ParseDuration(cfg.TTL)
	if err != nil {
		return nil, nil, fmt.Errorf("config: invalid cache.ttl %q: %w", cfg.TTL, err)
	}
	if cfg.Driver != "redis" {
		return cache.NewMemoryZoneCache(ttl), nil, nil
	}
	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedisZoneCache(client, ttl), client, nil
}
