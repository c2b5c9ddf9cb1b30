package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"farecraft/models"
	"farecraft/services"
	"farecraft/storage"

	"github.com/spf13/cobra"
)

func scrapeCmd(a *app) *cobra.Command {
	var (
		params    models.SearchParams
		csvPath   string
		jsonPath  string
		ephemeral bool
		headless  bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Search award and cash fares for one route and date, then print the report",
		Example: `  farecraft scrape --origin LAX --destination JFK --date 2025-12-15
  farecraft scrape -o LAX -d JFK --date 2025-12-15 --cabin business --csv flights.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := a.cfg, a.logger
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless = headless
			}
			if csvPath == "" {
				csvPath = cfg.Output.CSVPath
			}
			if jsonPath == "" {
				jsonPath = cfg.Output.JSONPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// ================== Bootstrap ====================
			st := memoryStores()
			if !ephemeral {
				var err error
				if st, err = openStores(ctx, cfg, logger); err != nil {
					return err
				}
			}
			defer st.close()

			manager := newRunManager(cfg, st, logger)
			if err := recoverRuns(ctx, cfg, st, manager); err != nil {
				return err
			}

			// ================== Scraping ====================
			run, err := manager.Execute(ctx, params)
			if err != nil {
				return err
			}
			if run.Status != models.RunSucceeded {
				return fmt.Errorf("scrape %s failed at %s (%s): %s", run.ID, run.ErrorStage, run.ErrorKind, run.Error)
			}

			// ================== Output ====================
			services.PrintReport(cmd.OutOrStdout(), run.Result, manager.Insights(run))

			if csvPath != "" {
				if err := storage.NewCSVWriter(csvPath, logger).WriteResult(run.Result); err != nil {
					logger.Error("Failed to write CSV: %v", err)
				}
			}
			if jsonPath != "" {
				if err := storage.NewJSONWriter(jsonPath, logger).WriteResult(run.Result); err != nil {
					return fmt.Errorf("failed to write JSON: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s finished with %d flights\n", run.ID, run.TotalFlights)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&params.Origin, "origin", "o", "", "origin airport (IATA)")
	f.StringVarP(&params.Destination, "destination", "d", "", "destination airport (IATA)")
	f.StringVar(&params.Date, "date", "", "departure date, YYYY-MM-DD")
	f.IntVarP(&params.Passengers, "passengers", "p", 1, "number of adult passengers (1-9)")
	f.StringVarP(&params.CabinClass, "cabin", "c", "economy", "cabin class: economy, business or first")
	f.StringVar(&csvPath, "csv", "", "write flights to this CSV file")
	f.StringVar(&jsonPath, "json", "", "write the full result to this JSON file")
	f.BoolVar(&ephemeral, "ephemeral", false, "keep tokens and run history in memory only")
	f.BoolVar(&headless, "headless", true, "run the browser headless")
	_ = cmd.MarkFlagRequired("origin")
	_ = cmd.MarkFlagRequired("destination")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}
