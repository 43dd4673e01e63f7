package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dmelnik/lumen/pkg/config"
	"github.com/dmelnik/lumen/pkg/stream"
	"github.com/dmelnik/lumen/pkg/telegram"
)

var (
	pipelineSource string
	pipelineTarget string
	pipelineTop    int
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Repost the top channel posts, rewritten and illustrated",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		source := pipelineSource
		if source == "" {
			source = cfg.Telegram.SourceChannel
		}
		target := pipelineTarget
		if target == "" {
			target = cfg.Telegram.TargetChannel
		}
		if cfg.Telegram.BotToken == "" || source == "" || target == "" {
			return fmt.Errorf("telegram bot token, source and target channels must be configured")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		bot := telegram.NewBotClient(cfg.Telegram.BotToken)
		rewriter, err := telegram.NewLLMRewriter(ctx, cfg.Gemini.APIKey, cfg.Gemini.RewriteModel)
		if err != nil {
			return err
		}
		art := &artClient{client: stream.NewClientWithTimeout(cfg.API.BaseURL, cfg.API.Timeout)}

		p := telegram.NewPipeline(bot, rewriter, art, bot)
		if pipelineTop > 0 {
			p.TopPosts = pipelineTop
		} else {
			p.TopPosts = cfg.Telegram.TopPosts
		}

		results, err := p.Run(ctx, source, target)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no posts to repost")
			return nil
		}

		failures := 0
		for _, r := range results {
			if r.Err != nil {
				failures++
				fmt.Printf("%s  %s\n", badgeError, truncate(r.Post.Text, 60))
				fmt.Println(dimStyle.Render("  " + r.Err.Error()))
				continue
			}
			fmt.Printf("%s  %s\n", badgeDone, truncate(r.Rewrite.CleanText, 60))
		}
		if failures == len(results) {
			return fmt.Errorf("all %d posts failed", failures)
		}
		return nil
	},
}

// artClient adapts the image route to the pipeline's illustration step.
type artClient struct {
	client *stream.Client
}

func (a *artClient) GenerateArt(ctx context.Context, prompt string) ([]byte, string, error) {
	resp, err := a.client.GenerateImages(ctx, stream.ImageRequest{
		Prompt:         prompt,
		NumberOfImages: 1,
	})
	if err != nil {
		return nil, "", err
	}
	if len(resp.Images) == 0 {
		return nil, "", fmt.Errorf("no image generated")
	}
	return resp.Images[0].ImageBytes, resp.Images[0].MimeType, nil
}

func init() {
	pipelineCmd.Flags().StringVar(&pipelineSource, "source", "", "source channel (default from config)")
	pipelineCmd.Flags().StringVar(&pipelineTarget, "target", "", "target channel (default from config)")
	pipelineCmd.Flags().IntVar(&pipelineTop, "top", 0, "number of posts to repost")

	rootCmd.AddCommand(pipelineCmd)
}
