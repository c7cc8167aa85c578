package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/adalundhe/sylk-nlu/core/nlu/engine"
	"github.com/adalundhe/sylk-nlu/core/nlu/model"
)

// =============================================================================
// Train Command
// =============================================================================

type trainOptions struct {
	file  string
	langs []string
}

// trainOutput summarizes one trained model.
type trainOutput struct {
	ID       string `json:"id"`
	Hash     string `json:"hash"`
	Language string `json:"language"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
	Intents  int    `json:"intents"`
	Entities int    `json:"entities"`
}

func newTrainCommand(global *globalOptions) *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train models from a definitions file",
		Long: `Train one model per language from a YAML definitions file and store it.

Training is skipped when an identical model is already stored.

Examples:
  sylk-nlu train -f bot.yaml
  sylk-nlu train -f bot.yaml --lang en --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, global, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Definitions file (YAML)")
	cmd.Flags().StringSliceVar(&opts.langs, "lang", nil, "Only train these languages")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runTrain(cmd *cobra.Command, global *globalOptions, opts *trainOptions) error {
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

	var results []trainOutput
	for _, in := range inputs {
		m, err := rt.engine.Train(cmd.Context(), in, engine.TrainOptions{
			Progress: newProgressBar(cmd.ErrOrStderr(), "training "+in.Language),
		})
		if m == nil {
			return err
		}
		results = append(results, newTrainOutput(m))
		if err != nil {
			if !wantJSON(cmd.OutOrStdout(), global.json) {
				printTrainResults(cmd.OutOrStdout(), results)
			}
			return fmt.Errorf("train %s: %w", in.Language, err)
		}
	}

	if wantJSON(cmd.OutOrStdout(), global.json) {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	printTrainResults(cmd.OutOrStdout(), results)
	return nil
}

func newTrainOutput(m *model.Model) trainOutput {
	out := trainOutput{
		ID:       m.ID,
		Hash:     m.Hash,
		Language: m.Language,
		Success:  m.Success,
		Error:    m.Error,
		Intents:  len(m.Input.Intents),
		Entities: len(m.Input.Entities),
	}
	if !m.FinishedAt.IsZero() {
		out.Duration = m.FinishedAt.Sub(m.StartedAt).Round(time.Millisecond).String()
	}
	return out
}

func printTrainResults(w io.Writer, results []trainOutput) {
	for _, r := range results {
		status := colorGreen + "ok" + colorReset
		if !r.Success {
			status = colorRed + "failed" + colorReset
		}
		fmt.Fprintf(w, "%s%s%s  %s  %s%s%s  %d intents, %d entities  %s\n",
			colorBold, r.Language, colorReset,
			status,
			colorGray, r.Hash, colorReset,
			r.Intents, r.Entities, r.Duration)
		if r.Error != "" {
			fmt.Fprintf(w, "   %s%s%s\n", colorYellow, r.Error, colorReset)
		}
	}
}
