package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmelnik/lumen/pkg/config"
	"github.com/dmelnik/lumen/pkg/logger"
	"github.com/dmelnik/lumen/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the generation API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		gen, err := server.NewGemini(ctx, cfg.Gemini.APIKey)
		if err != nil {
			return err
		}

		// Session tokens are minted locally; callers only need a stable
		// short-lived value to hand to browser clients.
		tokens := server.NewTokenCache(func(ctx context.Context) (server.Token, error) {
			return server.Token{
				Value:     uuid.NewString(),
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		})

		srv := server.New(gen, server.Models{
			Text:     cfg.Gemini.TextModel,
			Research: cfg.Gemini.ResearchModel,
			Image:    cfg.Gemini.ImageModel,
			Video:    cfg.Gemini.VideoModel,
		}, tokens)

		httpSrv := &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown failed: %v", err)
			}
		}()

		logger.Info("serving generation API on %s", cfg.Server.Listen)
		fmt.Printf("listening on %s\n", cfg.Server.Listen)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
