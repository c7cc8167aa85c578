package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adalundhe/sylk-nlu/core/nlu/model"
)

// =============================================================================
// Models Command
// =============================================================================

func newModelsCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and prune stored models",
	}
	cmd.AddCommand(newModelsListCommand(global), newModelsPruneCommand(global))
	return cmd
}

func newModelsListCommand(global *globalOptions) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored models, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd, global)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.store.List(lang)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []model.Entry{}
			}
			w := cmd.OutOrStdout()
			if wantJSON(w, global.json) {
				return writeJSON(w, entries)
			}
			printEntries(w, entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Only list this language")
	return cmd
}

func newModelsPruneCommand(global *globalOptions) *cobra.Command {
	var (
		lang string
		keep int
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest models of each language",
		Long: `Delete all but the newest models of each language.

--keep defaults to engine.keep_models from the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd, global)
			if err != nil {
				return err
			}
			defer rt.Close()

			if !cmd.Flags().Changed("keep") {
				keep = rt.cfg.Engine.KeepModels
			}
			removed, err := pruneModels(rt.store, lang, keep)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if wantJSON(w, global.json) {
				return writeJSON(w, removed)
			}
			fmt.Fprintf(w, "Removed %d model(s)\n", len(removed))
			printEntries(w, removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Only prune this language")
	cmd.Flags().IntVar(&keep, "keep", 3, "Number of models to keep per language")
	return cmd
}

// pruneModels keeps the newest keep models of every language, or of lang only.
func pruneModels(store *model.Store, lang string, keep int) ([]model.Entry, error) {
	if keep < 0 {
		keep = 0
	}
	entries, err := store.List(lang)
	if err != nil {
		return nil, err
	}

	byLang := map[string][]string{}
	var langs []string
	for _, e := range entries {
		if _, ok := byLang[e.Language]; !ok {
			langs = append(langs, e.Language)
		}
		byLang[e.Language] = append(byLang[e.Language], e.Hash)
	}

	removed := []model.Entry{}
	for _, l := range langs {
		hashes := byLang[l]
		if len(hashes) > keep {
			hashes = hashes[:keep]
		}
		gone, err := store.Prune(l, hashes...)
		removed = append(removed, gone...)
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func printEntries(w io.Writer, entries []model.Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "%sNo models.%s\n", colorYellow, colorReset)
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s%-4s%s %s  %s%8d bytes  %s%s\n",
			colorBold, e.Language, colorReset, e.Hash,
			colorGray, e.Size, e.ModTime.Format("2006-01-02 15:04:05"), colorReset)
	}
}
