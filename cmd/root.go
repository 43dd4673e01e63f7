package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dmelnik/lumen/pkg/config"
	"github.com/dmelnik/lumen/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "Generation studio for text, research, images and video",
	Long: `lumen drives Gemini generation end to end: streaming text and
search-grounded research across result panels, image and video batches with
history, a local API server, and a telegram repost pipeline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(cfgFile); err != nil {
			return err
		}
		if err := logger.Init(); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ~/.lumen/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("api-url", "", "generation API base URL")
	viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("api-url"))
}
