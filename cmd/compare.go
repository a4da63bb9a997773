package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/scrapebench/internal/benchmark"
	"github.com/JakeFAU/scrapebench/internal/scrape"
	"github.com/JakeFAU/scrapebench/internal/server"
)

func newCompareCmd() *cobra.Command {
	var (
		query  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run one comparison and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer func() { _ = app.Close(context.WithoutCancel(cmd.Context())) }()

			report, err := app.Compare(cmd.Context(), query)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
				return nil
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "search query to compare (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func printReport(w io.Writer, report benchmark.Report) error {
	heading := color.New(color.Bold, color.FgCyan)
	warn := color.New(color.FgYellow)

	heading.Fprintf(w, "Query: %s\n\n", report.Query)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tTIME (s)\tPAGES\tFAILED\tEMAILS\tMACHINES\tTHREADS\tP95 (ms)")
	for _, row := range []struct {
		name string
		rep  scrape.ExecutionReport
	}{
		{"linear", report.Results.Linear},
		{"parallel", report.Results.Parallel},
		{"distributed", report.Results.DistributedParallel},
	} {
		r := row.rep
		fmt.Fprintf(tw, "%s\t%.3f\t%d\t%d\t%d\t%d\t%d\t%.1f\n",
			row.name, r.TimeTaken(), r.PagesScraped, r.URLsFailed, len(r.EmailsFound),
			r.ProcessingInfo.MachinesUsed, r.ProcessingInfo.TotalThreads, r.FetchLatency.P95Ms)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	sf := report.Comparison.SpeedupFactors
	heading.Fprintln(w, "\nSpeedup")
	fmt.Fprintf(w, "  parallel vs linear:       %s\n", sf.ParallelVsLinear)
	fmt.Fprintf(w, "  distributed vs linear:    %s\n", sf.DistributedVsLinear)
	fmt.Fprintf(w, "  distributed vs parallel:  %s\n", sf.DistributedVsParallel)
	for _, msg := range report.Comparison.Warnings {
		warn.Fprintf(w, "warning: %s\n", msg)
	}
	return nil
}
