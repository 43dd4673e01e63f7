package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmelnik/lumen/pkg/config"
	"github.com/dmelnik/lumen/pkg/generation"
	"github.com/dmelnik/lumen/pkg/history"
	"github.com/dmelnik/lumen/pkg/server"
)

var (
	historyMode  string
	historyModel string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect saved generations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved generations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}

		items, err := store.Load(generation.Mode(historyMode), historyModel)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("no saved generations")
			return nil
		}

		for _, item := range items {
			model := item.Model
			if model != "" {
				model = " " + dimStyle.Render(model)
			}
			fmt.Printf("%s  %-8s%s  %s\n",
				dimStyle.Render(item.CreatedAt.Format("2006-01-02 15:04")),
				item.Mode, model, truncate(item.Prompt, 70))
			fmt.Println(dimStyle.Render("  id: " + item.ID))
		}
		return nil
	},
}

var historySearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find saved prompts by meaning",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		store, err := openHistory()
		if err != nil {
			return err
		}

		gen, err := server.NewGemini(cmd.Context(), cfg.Gemini.APIKey)
		if err != nil {
			return err
		}

		idx, err := history.NewSearchIndex(gen.EmbeddingFunc(cfg.Gemini.EmbedModel))
		if err != nil {
			return err
		}

		for _, mode := range []generation.Mode{
			generation.ModeText, generation.ModeHTML, generation.ModeResearch,
			generation.ModeImage, generation.ModeVideo,
		} {
			items, err := store.Load(mode, "")
			if err != nil {
				return err
			}
			if err := idx.AddAll(cmd.Context(), items); err != nil {
				return err
			}
		}

		matches, err := idx.Search(cmd.Context(), args[0], 5)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("no matches")
			return nil
		}

		for _, m := range matches {
			fmt.Printf("%.2f  %-8s  %s\n", m.Similarity, m.Mode, truncate(m.Prompt, 70))
			fmt.Println(dimStyle.Render("  id: " + m.ItemID))
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete saved generations for a mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyMode == "" {
			return fmt.Errorf("--mode is required for clear")
		}

		store, err := openHistory()
		if err != nil {
			return err
		}
		if err := store.Clear(generation.Mode(historyMode), historyModel); err != nil {
			return err
		}
		fmt.Printf("cleared %s history\n", historyMode)
		return nil
	},
}

func openHistory() (history.Store, error) {
	cfg := config.Get()
	store, err := history.Open(cfg.History.Path, cfg.History.Limit)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyMode, "mode", "text", "generation mode bucket")
	historyCmd.PersistentFlags().StringVar(&historyModel, "model", "", "model bucket")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
