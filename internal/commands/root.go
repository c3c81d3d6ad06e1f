// Package commands implements the glctl operator CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xxz807/fieldledger/internal/app"
	"github.com/xxz807/fieldledger/internal/platform/actor"
	"github.com/xxz807/fieldledger/internal/platform/config"
	"github.com/xxz807/fieldledger/internal/platform/database"
	"github.com/xxz807/fieldledger/internal/platform/logger"
)

// globalFlags 所有子命令共享
type globalFlags struct {
	configPath string
	actorID    string
	role       string
	verbose    bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "glctl",
		Short: "Operate the general ledger and tax engine",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "configs/config.yaml", "path to config file")
	pf.StringVar(&g.actorID, "actor", "glctl", "operator id recorded in the audit trail")
	pf.StringVar(&g.role, "role", string(actor.RoleAccountant), "operator role (bookkeeper, accountant, controller)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(
		newMigrateCommand(g),
		newSeedCommand(g),
		newPeriodCommand(g),
		newTrialBalanceCommand(g),
		newLiabilityCommand(g),
	)

	return rootCmd
}

func (g *globalFlags) actor() (actor.Actor, error) {
	a := actor.Actor{ID: g.actorID, Role: actor.Role(g.role), Origin: "cli"}
	return a, a.Validate()
}

// session 打开数据库并组装服务
type session struct {
	cfg *config.Config
	app *app.App
	log *zap.Logger
}

func (g *globalFlags) open(ctx context.Context) (*session, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	log := zap.NewNop()
	if g.verbose {
		if log, err = logger.NewLogger("debug"); err != nil {
			return nil, err
		}
	}

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a, err := app.New(ctx, cfg, db, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, app: a, log: log}, nil
}

func (s *session) Close() {
	_ = s.app.Close()
	if sqlDB, err := s.app.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = s.log.Sync()
}
