package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"farecraft/models"
	"farecraft/services"

	"github.com/spf13/cobra"
)

func runsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded scrape runs",
	}
	cmd.AddCommand(runsListCmd(a), runsGetCmd(a), runsLatestCmd(a), runsDeleteCmd(a))
	return cmd
}

// withManager opens the configured stores and hands a run manager to fn.
func withManager(cmd *cobra.Command, a *app, fn func(m *services.RunManager) error) error {
	st, err := openStores(cmd.Context(), a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer st.close()
	return fn(newRunManager(a.cfg, st, a.logger))
}

func runsListCmd(a *app) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, a, func(m *services.RunManager) error {
				runs, err := m.List(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")
	return cmd
}

func runsGetCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get [run-id]",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, a, func(m *services.RunManager) error {
				run, err := m.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return showRun(cmd.OutOrStdout(), m, run, asJSON)
			})
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func runsLatestCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent successful run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, a, func(m *services.RunManager) error {
				run, err := m.Latest(cmd.Context())
				if err != nil {
					return err
				}
				return showRun(cmd.OutOrStdout(), m, run, asJSON)
			})
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func runsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [run-id]",
		Short: "Delete a finished run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, a, func(m *services.RunManager) error {
				if err := m.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
				return nil
			})
		},
	}
}

func showRun(w io.Writer, m *services.RunManager, run models.ScrapeRun, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}
	printRuns(w, []models.ScrapeRun{run})
	if run.Result != nil {
		fmt.Fprintln(w)
		services.PrintReport(w, run.Result, m.Insights(run))
	}
	return nil
}

func printRuns(w io.Writer, runs []models.ScrapeRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROUTE\tDATE\tCABIN\tSTATUS\tFLIGHTS\tAVG CPP\tCREATED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s-%s\t%s\t%s\t%s\t%d\t%.2f\t%s\t%s\n",
			r.ID, r.Params.Origin, r.Params.Destination, r.Params.Date, r.Params.CabinClass,
			r.Status, r.TotalFlights, r.AvgCPP, r.CreatedAt.Local().Format(time.DateTime), r.ErrorKind)
	}
	tw.Flush()
}
