package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/adalundhe/sylk-nlu/core/nlu/crossval"
	"github.com/adalundhe/sylk-nlu/core/nlu/engine"
)

// =============================================================================
// Crossval Command
// =============================================================================

type crossvalOptions struct {
	file  string
	langs []string
	ratio float64
}

type crossvalOutput struct {
	Language string          `json:"language"`
	Report   crossval.Report `json:"report"`
}

func newCrossvalCommand(global *globalOptions) *cobra.Command {
	opts := &crossvalOptions{}
	cmd := &cobra.Command{
		Use:   "crossval",
		Short: "Score a definitions file by cross-validation",
		Long: `Train on part of every intent's utterances and score the held-out rest.

Models trained for cross-validation are kept in memory and never stored.

Examples:
  sylk-nlu crossval -f bot.yaml
  sylk-nlu crossval -f bot.yaml --ratio 0.7 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrossval(cmd, global, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Definitions file (YAML)")
	cmd.Flags().StringSliceVar(&opts.langs, "lang", nil, "Only evaluate these languages")
	cmd.Flags().Float64Var(&opts.ratio, "ratio", crossval.DefaultRatio, "Share of utterances used for training")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runCrossval(cmd *cobra.Command, global *globalOptions, opts *crossvalOptions) error {
	rt, err := newRuntime(cmd, global)
	if err != nil {
		return err
	}
	defer rt.Close()

	defs, err := loadDefinitions(opts.file)
	if err != nil {
		return err
	}
	inputs, err := defs.inputs(opts.langs, rt.cfg.Engine.DefaultLanguage, rt.cfg.Engine.Seed)
	if err != nil {
		return err
	}

	var results []crossvalOutput
	for _, in := range inputs {
		eng, err := engine.New(engine.Options{
			Toolkit:         rt.toolkit,
			Logger:          rt.logger,
			DefaultLanguage: in.Language,
		})
		if err != nil {
			return err
		}
		report, err := crossval.Run(cmd.Context(), eng, in, opts.ratio)
		if err != nil {
			return fmt.Errorf("crossval %s: %w", in.Language, err)
		}
		results = append(results, crossvalOutput{Language: in.Language, Report: report})
	}

	w := cmd.OutOrStdout()
	if wantJSON(w, global.json) {
		return writeJSON(w, results)
	}
	printCrossval(w, results)
	return nil
}

func printCrossval(w io.Writer, results []crossvalOutput) {
	for _, r := range results {
		fmt.Fprintf(w, "%s%s%s%s\n", colorBold, colorCyan, r.Language, colorReset)
		fmt.Fprintf(w, "   %-16s %9s %9s %9s %8s\n", "context", "precision", "recall", "f1", "support")

		contexts := make([]string, 0, len(r.Report))
		for c := range r.Report {
			contexts = append(contexts, c)
		}
		sort.Strings(contexts)
		for _, c := range contexts {
			s := r.Report[c]
			fmt.Fprintf(w, "   %-16s %9.3f %9.3f %9.3f %8d\n", c, s.Precision, s.Recall, s.F1, s.Support)
		}
	}
}
