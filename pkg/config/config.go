package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	History    HistoryConfig    `mapstructure:"history"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Generation GenerationConfig `mapstructure:"generation"`
	Server     ServerConfig     `mapstructure:"server"`
}

// APIConfig holds settings for the generation API routes consumed by the CLI
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// GeminiConfig holds upstream vendor settings used by the serve command
type GeminiConfig struct {
	APIKey        string `mapstructure:"api_key"`
	TextModel     string `mapstructure:"text_model"`
	ResearchModel string `mapstructure:"research_model"`
	ImageModel    string `mapstructure:"image_model"`
	VideoModel    string `mapstructure:"video_model"`
	RewriteModel  string `mapstructure:"rewrite_model"`
	EmbedModel    string `mapstructure:"embed_model"`
}

// HistoryConfig holds generation history persistence configuration
type HistoryConfig struct {
	Path  string `mapstructure:"path"`
	Limit int    `mapstructure:"limit"`
}

// TelegramConfig holds content pipeline configuration
type TelegramConfig struct {
	BotToken      string `mapstructure:"bot_token"`
	SourceChannel string `mapstructure:"source_channel"`
	TargetChannel string `mapstructure:"target_channel"`
	TopPosts      int    `mapstructure:"top_posts"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile string `mapstructure:"log_file"`
	Level   string `mapstructure:"level"`
	Persist bool   `mapstructure:"persist"`
}

// GenerationConfig holds tunables for the streaming and polling cores
type GenerationConfig struct {
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PollAttempts   int           `mapstructure:"poll_attempts"`
	ImageCount     int           `mapstructure:"image_count"`
}

// ServerConfig holds settings for the built-in route server
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

var global *Config

// Get returns the loaded global configuration. Load must have been called.
func Get() *Config {
	if global == nil {
		global = defaults()
	}
	return global
}

// Load reads configuration from the given file (or the default location when
// empty), applies defaults and environment overrides, and installs the result
// as the global configuration.
func Load(cfgFile string) (*Config, error) {
	v := viper.GetViper()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(SettingsDir())
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LUMEN")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	global = cfg
	return cfg, nil
}

// SettingsDir returns the directory holding settings, history and logs.
func SettingsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lumen"
	}
	return filepath.Join(home, ".lumen")
}

// BuildSettingsPath joins a filename onto the settings directory.
func BuildSettingsPath(filename string) string {
	return filepath.Join(SettingsDir(), filename)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8788")
	v.SetDefault("api.timeout", "5m")
	v.SetDefault("gemini.text_model", "gemini-2.5-flash")
	v.SetDefault("gemini.research_model", "gemini-2.5-pro")
	v.SetDefault("gemini.image_model", "imagen-4.0-generate-001")
	v.SetDefault("gemini.video_model", "veo-3.1-generate-preview")
	v.SetDefault("gemini.rewrite_model", "gemini-2.5-flash")
	v.SetDefault("gemini.embed_model", "gemini-embedding-001")
	v.SetDefault("history.path", BuildSettingsPath("history.db"))
	v.SetDefault("history.limit", 50)
	v.SetDefault("telegram.top_posts", 3)
	v.SetDefault("logging.log_file", "lumen.log")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.persist", false)
	v.SetDefault("generation.debounce_window", "100ms")
	v.SetDefault("generation.poll_interval", "10s")
	v.SetDefault("generation.poll_attempts", 60)
	v.SetDefault("generation.image_count", 2)
	v.SetDefault("server.listen", ":8788")
}

func defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8788",
			Timeout: 5 * time.Minute,
		},
		Gemini: GeminiConfig{
			TextModel:     "gemini-2.5-flash",
			ResearchModel: "gemini-2.5-pro",
			ImageModel:    "imagen-4.0-generate-001",
			VideoModel:    "veo-3.1-generate-preview",
			RewriteModel:  "gemini-2.5-flash",
			EmbedModel:    "gemini-embedding-001",
		},
		History: HistoryConfig{
			Path:  BuildSettingsPath("history.db"),
			Limit: 50,
		},
		Telegram: TelegramConfig{
			TopPosts: 3,
		},
		Logging: LoggingConfig{
			LogFile: "lumen.log",
			Level:   "info",
		},
		Generation: GenerationConfig{
			DebounceWindow: 100 * time.Millisecond,
			PollInterval:   10 * time.Second,
			PollAttempts:   60,
			ImageCount:     2,
		},
		Server: ServerConfig{
			Listen: ":8788",
		},
	}
}
