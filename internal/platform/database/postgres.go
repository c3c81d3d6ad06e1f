package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xxz807/fieldledger/internal/platform/config"
	"github.com/xxz807/fieldledger/internal/platform/errkind"
)

// ErrStoreUnavailable 基础设施故障 (连接失败/断开)，调用方可以退避重试
// 业务校验错误永远不会被归到这一类
var ErrStoreUnavailable = errors.New("store unavailable")

func init() {
	errkind.Register(ErrStoreUnavailable, "StoreUnavailable")
}

// Open 初始化数据库连接
// 在 DDD 中，它属于 Infrastructure 层
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
	if cfg.LogSQL {
		// 开启 SQL 日志，方便开发时观察
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, Classify(fmt.Errorf("connect %s: %w", cfg.Driver, err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	// 连接池配置
	if cfg.Driver == "sqlite" {
		// SQLite 只有一个写者，单连接让事务天然串行
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, Classify(fmt.Errorf("ping %s: %w", cfg.Driver, err))
	}

	log.Info("database connection established", zap.String("driver", cfg.Driver))
	return db, nil
}

// Migrate 建表 (AutoMigrate)，模型列表由调用方组装
func Migrate(ctx context.Context, db *gorm.DB, models ...any) error {
	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return Classify(fmt.Errorf("auto migrate: %w", err))
	}
	return nil
}

// Classify 把连接层面的错误归类为 ErrStoreUnavailable，其余原样返回
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.As(err, &netErr),
		errors.As(err, &connectErr):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}
