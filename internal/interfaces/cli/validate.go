package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/pkg/apperror"
)

func newValidateCmd(build Builder) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Decide whether the current build may be deployed",
		Long:  "Runs one deployment validation. Exit code 0 means approved, 2 means blocked, 1 means the validation itself failed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGate(cmd, build, func(ctx context.Context, gate Gate) error {
				result, err := gate.ValidateForDeployment(ctx)
				if err != nil && !errors.Is(err, apperror.ErrValidationTimeout) {
					return fmt.Errorf("validation failed: %w", err)
				}
				if result == nil {
					return fmt.Errorf("validation failed: empty result")
				}

				if asJSON {
					if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
						return err
					}
				} else {
					printValidation(cmd.OutOrStdout(), result)
				}

				if !result.Approved {
					return &ExitCodeError{Code: ExitBlocked, Err: fmt.Errorf("deployment blocked: %s", result.BlockedReason)}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the validation result as JSON")
	return cmd
}

func printValidation(w io.Writer, r *entity.DeploymentValidationResult) {
	verdict := "APPROVED"
	if !r.Approved {
		verdict = "BLOCKED"
	}
	fmt.Fprintf(w, "Deployment %s (score %.1f, %s)\n", verdict, r.OverallScore, r.Duration)
	if r.BlockedReason != "" {
		fmt.Fprintf(w, "Reason: %s\n", r.BlockedReason)
	}
	if r.Evidence != nil {
		fmt.Fprintf(w, "  evidence:      %.1f\n", r.Evidence.Score)
	}
	if r.Functionality != nil {
		fmt.Fprintf(w, "  functionality: %.1f\n", r.Functionality.Score)
	}
	if r.Health != nil {
		fmt.Fprintf(w, "  health:        %.1f (%s)\n", r.Health.Score, r.Health.Overall)
	}
	printList(w, "Critical issues", r.CriticalIssues)
	printList(w, "Warnings", r.Warnings)
	printList(w, "Recommendations", r.Recommendations)
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n  - %s\n", title, strings.Join(items, "\n  - "))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
