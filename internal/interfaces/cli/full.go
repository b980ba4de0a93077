package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newFullCmd(build Builder) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "full",
		Short: "Run every quality check and print the report",
		Long:  "Runs evidence, functionality and health checks without recording a deployment attempt. Exit code 2 means at least one check failed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGate(cmd, build, func(ctx context.Context, gate Gate) error {
				report, err := gate.PerformFullQualityValidation(ctx)
				if err != nil {
					return fmt.Errorf("quality validation failed: %w", err)
				}

				out := cmd.OutOrStdout()
				if asJSON {
					if err := writeJSON(out, report); err != nil {
						return err
					}
				} else {
					verdict := "PASSED"
					if !report.Passed {
						verdict = "FAILED"
					}
					fmt.Fprintf(out, "Quality %s (score %.1f, %s)\n", verdict, report.OverallScore, report.Duration)
					if report.EvidenceKey != "" {
						fmt.Fprintf(out, "Evidence: %s\n", report.EvidenceKey)
					}
					printList(out, "Issues", report.Issues)
				}

				if !report.Passed {
					return &ExitCodeError{Code: ExitBlocked, Err: fmt.Errorf("quality checks failed: %d issue(s)", len(report.Issues))}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
