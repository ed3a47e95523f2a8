package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/output"
	"github.com/wesleyorama2/surge/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a test configuration without running it",
		Long: `Validate loads a test configuration, checks the stages, settings, requests,
checks and thresholds, and prints the resulting schedule.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd, args[0], noColor)
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

func validateConfig(cmd *cobra.Command, path string, noColor bool) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}

	config.ApplyDefaults(cfg)
	sched, err := cfg.Schedule()
	if err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := scenario.New(cfg); err != nil {
		return err
	}

	console := output.NewConsole(output.ConsoleConfig{Writer: cmd.OutOrStdout(), NoColor: noColor})
	console.PrintHeader(cfg.Name, sched)
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s %s is valid (%d requests)\n", output.SuccessIcon(noColor), path, len(cfg.Requests))
	return nil
}
