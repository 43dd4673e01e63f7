package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dmelnik/lumen/pkg/config"
	"github.com/dmelnik/lumen/pkg/generation"
	"github.com/dmelnik/lumen/pkg/history"
	"github.com/dmelnik/lumen/pkg/logger"
	"github.com/dmelnik/lumen/pkg/orchestrator"
	"github.com/dmelnik/lumen/pkg/panels"
	"github.com/dmelnik/lumen/pkg/prompt"
	"github.com/dmelnik/lumen/pkg/stream"
)

var (
	generateHTML   bool
	generateNoSave bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Stream a text generation to the terminal",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := generation.ModeText
		if generateHTML {
			mode = generation.ModeHTML
		}
		return runStreaming(cmd, args, "/api/stream", mode)
	},
}

var researchCmd = &cobra.Command{
	Use:   "research [prompt]",
	Short: "Stream a search-grounded research answer with sources",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStreaming(cmd, args, "/api/research", generation.ModeResearch)
	},
}

func init() {
	generateCmd.Flags().BoolVar(&generateHTML, "html", false, "treat the output as HTML and highlight it")
	generateCmd.Flags().BoolVar(&generateNoSave, "no-save", false, "skip saving the result to history")
	researchCmd.Flags().BoolVar(&generateNoSave, "no-save", false, "skip saving the result to history")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(researchCmd)
}

// runStreaming feeds one prompt through a streaming route into panel zero,
// echoing text as the debounce windows flush. Ctrl-C aborts the stream and
// leaves nothing in history.
func runStreaming(cmd *cobra.Command, args []string, path string, mode generation.Mode) error {
	cfg := config.Get()

	promptText, err := readPrompt(args)
	if err != nil {
		return err
	}

	client := stream.NewClientWithTimeout(cfg.API.BaseURL, cfg.API.Timeout)
	agg := panels.New(cfg.Generation.DebounceWindow)

	saver := newStreamSaver(promptText, mode)

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		printed := 0
		for states := range agg.Updates() {
			text := states[0].Text
			if len(text) > printed && mode != generation.ModeHTML {
				fmt.Print(text[printed:])
			}
			printed = len(text)
			saver.observe(states)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runner := orchestrator.NewTextRunner(client, agg, path)
	runErr := runner.Run(ctx, 0, promptText)

	final := agg.Snapshot()
	agg.Close()
	<-rendered

	state := final[0]
	if mode == generation.ModeHTML && state.Text != "" {
		printHTML(os.Stdout, state.Text)
	} else {
		fmt.Println()
	}
	printSources(os.Stdout, state.Sources, state.SearchQueries)
	fmt.Printf("%s\n", statusBadge(state.Status))
	if state.Status == generation.StatusError {
		return fmt.Errorf("%s", state.Error)
	}
	return runErr
}

// readPrompt takes the prompt from args or stdin and validates it.
func readPrompt(args []string) (string, error) {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := readAllStdin()
		if err != nil {
			return "", err
		}
		text = data
	}

	v := prompt.Validator{MinLength: 1, TrimOnBlur: true}
	v.SetValue(text)
	v.Blur()
	if err := v.Submit(); err != nil {
		return "", fmt.Errorf("invalid prompt: %w", err)
	}
	return v.Value(), nil
}

func readAllStdin() (string, error) {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return "", fmt.Errorf("no prompt given: pass it as an argument or pipe it on stdin")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// streamSaver wires the one-shot autosave into the update feed.
type streamSaver struct {
	saver     *orchestrator.Autosaver
	observeFn func(states []generation.StreamState)
}

func newStreamSaver(promptText string, mode generation.Mode) *streamSaver {
	s := &streamSaver{}
	if generateNoSave {
		return s
	}

	cfg := config.Get()
	store, err := history.Open(cfg.History.Path, cfg.History.Limit)
	if err != nil {
		logger.Warn("history disabled: %v", err)
		return s
	}

	var pending []generation.StreamState
	s.saver = orchestrator.NewAutosaver(func() {
		if _, err := store.Save(promptText, mode, "", pending); err != nil {
			logger.Error("failed to save history: %v", err)
		}
	})
	s.observeFn = func(states []generation.StreamState) {
		pending = states
		allTerminal, hasContent := orchestrator.StreamBatchCondition(states)
		s.saver.Observe(allTerminal, hasContent)
	}
	return s
}

func (s *streamSaver) observe(states []generation.StreamState) {
	if s.observeFn != nil {
		s.observeFn(states)
	}
}
