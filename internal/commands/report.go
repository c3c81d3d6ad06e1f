package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	taxservice "github.com/xxz807/fieldledger/internal/tax/service"
)

func newTrialBalanceCommand(g *globalFlags) *cobra.Command {
	var from, to string
	var gross bool

	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Print debit and credit totals per account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(from, to)
			if err != nil {
				return err
			}
			s, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			tb, err := s.app.Ledger.TrialBalance(cmd.Context(), start, end, gross)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "CODE\tNAME\tDEBIT\tCREDIT\tBALANCE\t")
			for _, a := range tb.Accounts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", a.AccountCode, a.AccountName,
					a.Debit.StringFixed(2), a.Credit.StringFixed(2), a.Balance.StringFixed(2))
			}
			fmt.Fprintf(w, "\tTOTAL\t%s\t%s\t\t\n", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
			if err := w.Flush(); err != nil {
				return err
			}
			if !tb.Balanced() {
				return fmt.Errorf("trial balance does not balance: debit %s, credit %s",
					tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (required)")
	cmd.Flags().BoolVar(&gross, "gross", false, "include voided entries and their reversals")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newLiabilityCommand(g *globalFlags) *cobra.Command {
	var from, to string
	var periodID int64

	cmd := &cobra.Command{
		Use:   "liability",
		Short: "Print sales tax owed per authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			var rep *taxservice.LiabilityReport
			if periodID != 0 {
				rep, err = s.app.Liability.ReportForPeriod(cmd.Context(), periodID)
			} else {
				start, end, perr := parseRange(from, to)
				if perr != nil {
					return perr
				}
				rep, err = s.app.Liability.Report(cmd.Context(), start, end)
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "AUTHORITY\tTAXABLE\tTAX\t")
			for _, l := range rep.Lines {
				fmt.Fprintf(w, "%s\t%s\t%s\t\n", l.AuthorityID, l.TaxableAmount.StringFixed(2), l.TaxAmount.StringFixed(2))
			}
			fmt.Fprintf(w, "TOTAL\t\t%s\t\n", rep.Total.StringFixed(2))
			return w.Flush()
		},
	}
	cmd.Flags().Int64Var(&periodID, "period", 0, "period id (instead of --from/--to)")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	return cmd
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
	}
	return start, end, nil
}
