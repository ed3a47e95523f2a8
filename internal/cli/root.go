package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// ErrThresholdsFailed is returned when a run completes but at least one
// threshold failed.
var ErrThresholdsFailed = errors.New("one or more thresholds failed")

// RootCmd represents the base command when called without any subcommands
var RootCmd = NewRootCmd()

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "surge",
		Short:   "A staged virtual-user load generator for HTTP services",
		Version: version,
		Long: `Surge drives a pool of virtual users through a schedule of stages.
Each stage ramps the number of concurrent users linearly toward a target;
every user runs the scenario in a loop, and latencies, errors and checks are
aggregated into a final report with pass/fail thresholds.`,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newValidateCmd())

	return cmd
}

// Execute runs the root command. Threshold failures are reported by the
// summary itself; any other error is printed to stderr.
func Execute() error {
	err := RootCmd.Execute()
	if err != nil && !errors.Is(err, ErrThresholdsFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
