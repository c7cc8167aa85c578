// Package cmd provides the sylk-nlu command line.
package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// =============================================================================
// Global Flags
// =============================================================================

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	home     string
	project  string
	json     bool
	logLevel string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "sylk-nlu",
		Short: "sylk-nlu - train and query intent/slot models",
		Long: `sylk-nlu trains intent, slot and entity models from YAML definitions
and predicts the intent, slots and entities of free text.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.home, "home", "", "Root directory for config, models and logs (default: XDG directories)")
	flags.StringVar(&opts.project, "project", ".", "Project root holding .sylk-nlu/config.yaml")
	flags.BoolVar(&opts.json, "json", false, "Output as JSON (default when stdout is not a terminal)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newTrainCommand(opts),
		newPredictCommand(opts),
		newCrossvalCommand(opts),
		newModelsCommand(opts),
	)
	return root
}

// Execute runs the command line. An interrupt cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}
