package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dreschagin/quality-gate/internal/application/alerting"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect alert routing rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate an alert rules YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := alerting.LoadRulesFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d rule(s) OK\n", len(rules))
			for _, r := range rules {
				fmt.Fprintf(out, "  %s: channels=%s\n", r.ID, strings.Join(r.Channels, ","))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in rule set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), alerting.DefaultRules())
		},
	})

	return cmd
}
