package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dmelnik/lumen/pkg/config"
	"github.com/dmelnik/lumen/pkg/generation"
	"github.com/dmelnik/lumen/pkg/history"
	"github.com/dmelnik/lumen/pkg/logger"
	"github.com/dmelnik/lumen/pkg/media"
	"github.com/dmelnik/lumen/pkg/orchestrator"
	"github.com/dmelnik/lumen/pkg/stream"
	"github.com/dmelnik/lumen/pkg/veo"
)

var (
	videoModel      string
	videoResolution string
	videoDuration   int
	videoAspect     string
	videoOutDir     string
	videoNoSave     bool
)

var videoCmd = &cobra.Command{
	Use:   "video [prompts]",
	Short: "Generate video clips, one batch item per blank-line paragraph",
	Long: `Generates a clip for each blank-line separated paragraph of the prompt
text. Out-of-range settings are corrected to the nearest valid combination for
the chosen model rather than rejected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		promptText, err := readPrompt(args)
		if err != nil {
			return err
		}

		model := videoModel
		if model == "" {
			model = cfg.Gemini.VideoModel
		}

		requested := veo.Selection{
			Model:       veo.Model(model),
			Resolution:  veo.Resolution(videoResolution),
			Duration:    veo.Duration(videoDuration),
			AspectRatio: veo.AspectRatio(videoAspect),
		}
		sel := veo.Clamp(requested)
		if sel != requested {
			fmt.Println(dimStyle.Render("settings adjusted for " + model + ":"))
			for _, note := range veo.ModelLimitations(sel.Model) {
				fmt.Println(dimStyle.Render("  " + note))
			}
		}

		client := stream.NewClientWithTimeout(cfg.API.BaseURL, cfg.API.Timeout)

		var saver *orchestrator.Autosaver
		var pending []generation.VideoResult
		if !videoNoSave {
			if store, err := history.Open(cfg.History.Path, cfg.History.Limit); err == nil {
				saver = orchestrator.NewAutosaver(func() {
					if _, err := store.Save(promptText, generation.ModeVideo, model, pending); err != nil {
						logger.Error("failed to save history: %v", err)
					}
				})
			} else {
				logger.Warn("history disabled: %v", err)
			}
		}

		shown := 0
		runner := orchestrator.NewVideoRunner(client, media.ProbeDuration, func(results []generation.VideoResult) {
			shown = printBatchProgress(shown, videoStatusLines(results))
			pending = results
			if saver != nil {
				saver.Observe(orchestrator.VideoBatchCondition(results))
			}
		})
		runner.Selection = sel
		runner.PollInterval = cfg.Generation.PollInterval
		runner.PollAttempts = cfg.Generation.PollAttempts

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		results := runner.Run(ctx, promptText)
		return writeVideos(results, videoOutDir)
	},
}

func init() {
	videoCmd.Flags().StringVar(&videoModel, "model", "", "video model version (default from config)")
	videoCmd.Flags().StringVar(&videoResolution, "resolution", "", "720p or 1080p")
	videoCmd.Flags().IntVar(&videoDuration, "duration", 0, "clip length in seconds (4, 6 or 8)")
	videoCmd.Flags().StringVar(&videoAspect, "aspect", "", "16:9 or 9:16")
	videoCmd.Flags().StringVarP(&videoOutDir, "out", "o", ".", "directory to write clips into")
	videoCmd.Flags().BoolVar(&videoNoSave, "no-save", false, "skip saving the batch to history")

	rootCmd.AddCommand(videoCmd)
}

func videoStatusLines(results []generation.VideoResult) []string {
	lines := make([]string, len(results))
	for i, r := range results {
		line := fmt.Sprintf("%s  %s", statusBadge(r.Status), truncate(r.Prompt, 60))
		if r.Video != nil {
			line += dimStyle.Render(fmt.Sprintf("  %s %s", r.Video.Resolution, formatDuration(r.Video.Duration)))
		}
		if r.Status == generation.StatusError {
			line += dimStyle.Render("  " + r.Error)
		}
		lines[i] = line
	}
	return lines
}

func writeVideos(results []generation.VideoResult, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	written := 0
	for i, r := range results {
		if r.Video == nil {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("clip-%02d.mp4", i+1))
		if err := os.WriteFile(path, r.Video.VideoBytes, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		written++
		fmt.Println(dimStyle.Render("wrote " + path))
	}
	if written == 0 {
		return fmt.Errorf("no clips were generated")
	}
	return nil
}
