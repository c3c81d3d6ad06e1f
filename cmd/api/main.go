package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xxz807/fieldledger/internal/app"
	"github.com/xxz807/fieldledger/internal/platform/actor"
	"github.com/xxz807/fieldledger/internal/platform/config"
	"github.com/xxz807/fieldledger/internal/platform/database"
	"github.com/xxz807/fieldledger/internal/platform/logger"
	"github.com/xxz807/fieldledger/internal/platform/server"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error reading config file: %s", err)
	}

	// 2. 初始化基础设施 (Infra)
	appLogger := logger.MustNewLogger(cfg.Server.Mode)
	defer func() { _ = appLogger.Sync() }()

	db, err := database.Open(cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Database connection failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db, app.Models()...); err != nil {
		appLogger.Fatal("Migration failed", zap.Error(err))
	}

	// 3. 依赖注入 (Wiring)
	a, err := app.New(ctx, cfg, db, appLogger)
	if err != nil {
		appLogger.Fatal("Wiring failed", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	if cfg.Tax.ReferenceFile != "" {
		sum, err := a.Loader.LoadFile(ctx, cfg.Tax.ReferenceFile, actor.System("startup"))
		if err != nil {
			appLogger.Fatal("Tax reference load failed", zap.String("file", cfg.Tax.ReferenceFile), zap.Error(err))
		}
		appLogger.Info("tax reference loaded",
			zap.Int("authorities", sum.Authorities),
			zap.Int("zones", sum.Zones),
			zap.Int("rules", sum.Rules),
		)
	}

	// 4. 初始化 Server (Gateway)
	srv := server.NewServer(appLogger, cfg.Server.Port, cfg.Server.Mode, a.Handlers()...)

	// 5. 启动服务
	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server startup failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
