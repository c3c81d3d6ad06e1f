package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xxz807/fieldledger/internal/period/domain"
	"github.com/xxz807/fieldledger/internal/period/service"
	"github.com/xxz807/fieldledger/internal/platform/actor"
)

func newPeriodCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Manage accounting periods",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List accounting periods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			periods, err := s.app.Periods.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTART\tEND\tSTATUS")
			for i := range periods {
				writePeriodRow(w, &periods[i])
			}
			return w.Flush()
		},
	})

	var name, start, end string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a period adjacent to the existing ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse(time.DateOnly, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			to, err := time.Parse(time.DateOnly, end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			return g.withPeriod(cmd, func(ctx context.Context, mgr *service.Manager, a actor.Actor) (*domain.AccountingPeriod, error) {
				return mgr.CreatePeriod(ctx, service.CreatePeriodRequest{Name: name, StartDate: from, EndDate: to}, a)
			})
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "period name (defaults to YYYY-MM of start)")
	createCmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD (required)")
	createCmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD (required)")
	_ = createCmd.MarkFlagRequired("start")
	_ = createCmd.MarkFlagRequired("end")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "start-close <id>",
		Short: "Stop new postings while corrections are finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withPeriod(cmd, func(ctx context.Context, mgr *service.Manager, a actor.Actor) (*domain.AccountingPeriod, error) {
				return mgr.StartClose(ctx, id, a)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "close <id>",
		Short: "Close a period; nothing can be posted or voided into it afterwards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withPeriod(cmd, func(ctx context.Context, mgr *service.Manager, a actor.Actor) (*domain.AccountingPeriod, error) {
				return mgr.ClosePeriod(ctx, id, a)
			})
		},
	})

	var reason string
	reopenCmd := &cobra.Command{
		Use:   "reopen <id>",
		Short: "Reopen a closed period (controller only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withPeriod(cmd, func(ctx context.Context, mgr *service.Manager, a actor.Actor) (*domain.AccountingPeriod, error) {
				return mgr.ReopenPeriod(ctx, id, a, reason)
			})
		},
	}
	reopenCmd.Flags().StringVar(&reason, "reason", "", "why the period is reopened (required)")
	_ = reopenCmd.MarkFlagRequired("reason")
	cmd.AddCommand(reopenCmd)

	return cmd
}

type periodOp func(ctx context.Context, mgr *service.Manager, a actor.Actor) (*domain.AccountingPeriod, error)

func (g *globalFlags) withPeriod(cmd *cobra.Command, op periodOp) error {
	a, err := g.actor()
	if err != nil {
		return err
	}
	s, err := g.open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := op(cmd.Context(), s.app.Periods, a)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	writePeriodRow(w, p)
	return w.Flush()
}

func writePeriodRow(w io.Writer, p *domain.AccountingPeriod) {
	fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
		p.ID, p.Name, p.StartDate.Format(time.DateOnly), p.EndDate.Format(time.DateOnly), p.Status)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
