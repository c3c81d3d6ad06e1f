package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xxz807/fieldledger/internal/app"
	"github.com/xxz807/fieldledger/internal/ledger/service"
	"github.com/xxz807/fieldledger/internal/platform/database"
)

func newMigrateCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := database.Migrate(cmd.Context(), s.app.DB, app.Models()...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(app.Models()))
			return nil
		},
	}
}

func newSeedCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data",
	}

	var chartFile string
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Insert or update the chart of accounts (default chart unless --file)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chart := service.DefaultChart()
			if chartFile != "" {
				raw, err := os.ReadFile(chartFile)
				if err != nil {
					return err
				}
				if chart, err = service.ParseChart(raw); err != nil {
					return err
				}
			}

			s, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.app.Ledger.SeedAccounts(cmd.Context(), chart); err != nil {
				return fmt.Errorf("seeding accounts: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d accounts\n", len(chart))
			return nil
		},
	}
	accountsCmd.Flags().StringVar(&chartFile, "file", "", "chart YAML (code, name, type, currency, archived)")
	cmd.AddCommand(accountsCmd)

	var file string
	taxCmd := &cobra.Command{
		Use:   "tax",
		Short: "Load tax authorities, zones and rules from YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.actor()
			if err != nil {
				return err
			}
			s, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if file == "" {
				file = s.cfg.Tax.ReferenceFile
			}
			if file == "" {
				return fmt.Errorf("no reference file: pass --file or set tax.reference_file")
			}
			sum, err := s.app.Loader.LoadFile(cmd.Context(), file, a)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s: %d authorities, %d zones, %d rules changed\n",
				file, sum.Authorities, sum.Zones, sum.Rules)
			return nil
		},
	}
	taxCmd.Flags().StringVar(&file, "file", "", "reference YAML (defaults to tax.reference_file)")
	cmd.AddCommand(taxCmd)

	return cmd
}
