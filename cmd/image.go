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
	"github.com/dmelnik/lumen/pkg/orchestrator"
	"github.com/dmelnik/lumen/pkg/stream"
)

var (
	imageCount  int
	imageAspect string
	imageSize   string
	imageModel  string
	imageOutDir string
	imageNoSave bool
)

var imageCmd = &cobra.Command{
	Use:   "image [prompts]",
	Short: "Generate images, one batch item per input line",
	Long: `Generates images for each non-empty line of the prompt text. Items run
sequentially in input order; a failed line does not stop the rest.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		promptText, err := readPrompt(args)
		if err != nil {
			return err
		}

		client := stream.NewClientWithTimeout(cfg.API.BaseURL, cfg.API.Timeout)

		count := imageCount
		if count <= 0 {
			count = cfg.Generation.ImageCount
		}

		var saver *orchestrator.Autosaver
		var pending []generation.ImageResult
		if !imageNoSave {
			if store, err := history.Open(cfg.History.Path, cfg.History.Limit); err == nil {
				saver = orchestrator.NewAutosaver(func() {
					if _, err := store.Save(promptText, generation.ModeImage, imageModel, pending); err != nil {
						logger.Error("failed to save history: %v", err)
					}
				})
			} else {
				logger.Warn("history disabled: %v", err)
			}
		}

		shown := 0
		runner := orchestrator.NewImageRunner(client, count, func(results []generation.ImageResult) {
			shown = printBatchProgress(shown, imageStatusLines(results))
			pending = results
			if saver != nil {
				saver.Observe(orchestrator.ImageBatchCondition(results))
			}
		})
		runner.ImageSize = imageSize
		runner.AspectRatio = imageAspect
		runner.ModelVersion = imageModel

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		results := runner.Run(ctx, promptText)
		return writeImages(results, imageOutDir)
	},
}

func init() {
	imageCmd.Flags().IntVarP(&imageCount, "count", "n", 0, "images per prompt (default from config)")
	imageCmd.Flags().StringVar(&imageAspect, "aspect", "", "aspect ratio, e.g. 16:9")
	imageCmd.Flags().StringVar(&imageSize, "size", "", "image size, e.g. 1K or 2K")
	imageCmd.Flags().StringVar(&imageModel, "model", "", "image model version override")
	imageCmd.Flags().StringVarP(&imageOutDir, "out", "o", ".", "directory to write images into")
	imageCmd.Flags().BoolVar(&imageNoSave, "no-save", false, "skip saving the batch to history")

	rootCmd.AddCommand(imageCmd)
}

func imageStatusLines(results []generation.ImageResult) []string {
	lines := make([]string, len(results))
	for i, r := range results {
		line := fmt.Sprintf("%s  %s", statusBadge(r.Status), truncate(r.Prompt, 60))
		if r.WasTranslated {
			line += dimStyle.Render(fmt.Sprintf("  (translated: %s)", truncate(r.TranslatedPrompt, 40)))
		}
		if r.Status == generation.StatusError {
			line += dimStyle.Render("  " + r.Error)
		}
		lines[i] = line
	}
	return lines
}

// printBatchProgress rewrites the progress block in place, returning the new
// line count.
func printBatchProgress(previous int, lines []string) int {
	if previous > 0 {
		fmt.Printf("\033[%dA", previous)
	}
	for _, line := range lines {
		fmt.Printf("\033[2K%s\n", line)
	}
	return len(lines)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func writeImages(results []generation.ImageResult, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	written := 0
	for i, r := range results {
		for j, img := range r.Images {
			name := fmt.Sprintf("image-%02d-%02d%s", i+1, j+1, extensionFor(img.MimeType))
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, img.ImageBytes, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			written++
			fmt.Println(dimStyle.Render("wrote " + path))
		}
	}
	if written == 0 {
		return fmt.Errorf("no images were generated")
	}
	return nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
