package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/adalundhe/sylk-nlu/core/config"
	"github.com/adalundhe/sylk-nlu/core/nlu/engine"
	"github.com/adalundhe/sylk-nlu/core/nlu/predict"
)

// =============================================================================
// Predict Command
// =============================================================================

type predictOptions struct {
	file        string
	contexts    []string
	lang        string
	interactive bool
}

func newPredictCommand(global *globalOptions) *cobra.Command {
	opts := &predictOptions{}
	cmd := &cobra.Command{
		Use:   "predict <text>",
		Short: "Predict the intent, slots and entities of a sentence",
		Long: `Predict the intent, slots and entities of a sentence.

With -f the models of the definitions file are loaded, training them first if
they are not stored yet. Without -f the newest stored model of every
configured language is used.

Examples:
  sylk-nlu predict -f bot.yaml "book a flight to paris"
  sylk-nlu predict --context travel "weather in london tomorrow"
  sylk-nlu predict --json "hello" | jq '.intent'
  sylk-nlu predict -i -f bot.yaml

With -i sentences are read from stdin, one per line, until EOF or "exit".
Configuration changes are picked up while the session runs.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.interactive {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, global, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Definitions file (YAML)")
	cmd.Flags().StringSliceVarP(&opts.contexts, "context", "c", nil, "Restrict the prediction to these contexts")
	cmd.Flags().StringVarP(&opts.lang, "lang", "l", "", "Language used when detection is inconclusive")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Read sentences from stdin")
	return cmd
}

func runPredict(cmd *cobra.Command, global *globalOptions, opts *predictOptions, text string) error {
	rt, err := newRuntime(cmd, global)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if opts.file != "" {
		defs, err := loadDefinitions(opts.file)
		if err != nil {
			return err
		}
		inputs, err := defs.inputs(nil, rt.cfg.Engine.DefaultLanguage, rt.cfg.Engine.Seed)
		if err != nil {
			return err
		}
		for _, in := range inputs {
			if _, err := rt.engine.Train(ctx, in, engine.TrainOptions{}); err != nil {
				return fmt.Errorf("prepare %s model: %w", in.Language, err)
			}
		}
	} else if err := rt.engine.LoadLatest(ctx, rt.cfg.Engine.Languages...); err != nil {
		return err
	}

	if opts.interactive {
		return runInteractive(cmd, rt, global, opts)
	}

	res := rt.engine.Predict(ctx, text, opts.contexts, opts.lang)
	if err := writePrediction(cmd.OutOrStdout(), global, text, res); err != nil {
		return err
	}
	if res.Errored {
		return fmt.Errorf("prediction failed: %s", res.Error)
	}
	return nil
}

// runInteractive predicts every line read from stdin. Without --lang the
// fallback language follows engine.default_language as the config changes.
func runInteractive(cmd *cobra.Command, rt *runtime, global *globalOptions, opts *predictOptions) error {
	var fallback atomic.Value
	fallback.Store(opts.lang)
	if opts.lang == "" {
		fallback.Store(rt.cfg.Engine.DefaultLanguage)
		if err := rt.watchConfig(func(cfg *config.Config) {
			fallback.Store(cfg.Engine.DefaultLanguage)
		}); err != nil {
			rt.logger.Debug("config not watched", "error", err)
		}
	}

	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			return nil
		}

		res := rt.engine.Predict(ctx, text, opts.contexts, fallback.Load().(string))
		if err := writePrediction(w, global, text, res); err != nil {
			return err
		}
		if res.Errored {
			rt.logger.Warn("prediction failed", "text", text, "error", res.Error)
		}
	}
	return scanner.Err()
}

func writePrediction(w io.Writer, global *globalOptions, text string, res *predict.Result) error {
	if wantJSON(w, global.json) {
		return writeJSON(w, res)
	}
	printPrediction(w, text, res)
	return nil
}

func printPrediction(w io.Writer, text string, res *predict.Result) {
	fmt.Fprintf(w, "%s%sPrediction%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(w, "%sText:%s %s\n", colorGray, colorReset, text)
	fmt.Fprintf(w, "%sLanguage:%s %s (detected %s)  %sTime:%s %v\n",
		colorGray, colorReset, res.Language, res.DetectedLanguage,
		colorGray, colorReset, res.Duration)
	if res.Errored {
		fmt.Fprintf(w, "%sError:%s %s\n", colorRed, colorReset, res.Error)
		return
	}

	ambiguous := ""
	if res.Ambiguous {
		ambiguous = colorYellow + " (ambiguous)" + colorReset
	}
	fmt.Fprintf(w, "%sIntent:%s %s%s%s %.3f in %s%s\n",
		colorGray, colorReset, colorBold, res.Intent.Name, colorReset,
		res.Intent.Confidence, res.Intent.Context, ambiguous)

	for i, p := range res.Intents {
		if i == 0 {
			continue
		}
		fmt.Fprintf(w, "   %s%-20s %.3f  %s%s\n", colorGray, p.Name, p.Confidence, p.Context, colorReset)
	}

	for _, s := range res.Slots {
		fmt.Fprintf(w, "%sSlot:%s %s = %s%q%s (%.2f)\n",
			colorGray, colorReset, s.Name, colorGreen, s.Value, colorReset, s.Confidence)
	}
	for _, e := range res.Entities {
		fmt.Fprintf(w, "%sEntity:%s %s = %q from %q (%.2f)\n",
			colorGray, colorReset, e.Type, e.Value, e.Source, e.Confidence)
	}
}
