package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"column-indexer/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g. COLUMN_INDEXER_CACHE_BACKEND.
const envPrefix = "COLUMN_INDEXER"

// envKeys are the settings that may come from the environment alone,
// without appearing in any config file.
var envKeys = []string{
	"app.log_level",
	"cache.backend", "cache.ttl", "cache.path",
	"redis.addr", "redis.username", "redis.password", "redis.db",
	"source.base_url", "source.mode", "source.timeout", "source.user_agent",
	"server.addr",
}

var (
	cfgFile string
	appCfg  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "column-indexer",
	Short: "Index CSDN column articles and outline their headings",
	Long: "column-indexer builds the complete, ordered article index of CSDN columns,\n" +
		"caches it locally, and outlines article headings. Run it once from the\n" +
		"command line or as a service with an HTTP and WebSocket API.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}
		appCfg = cfg
		setupLogging(appCfg.App.LogLevel)
		if used := viper.ConfigFileUsed(); used != "" {
			slog.Debug("config: loaded", "file", used)
		}
		return nil
	},
}

// ExecuteContext runs the root command; subcommands see ctx via cmd.Context().
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override app.log_level (debug, info, warn, error)")
	_ = viper.BindPFlag("app.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// loadConfig reads file (or config.yaml from the search path) into v, layers
// environment overrides on top and returns the result with defaults filled.
// A missing config file is not an error.
func loadConfig(v *viper.Viper, file string) (config.Config, error) {
	var cfg config.Config

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/column-indexer")
		v.AddConfigPath("configs")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return cfg, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.FillDefaults()
	return cfg, nil
}

// setupLogging installs a text handler on stderr. Unknown levels mean info.
func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// GetConfig exposes the loaded configuration to subcommands.
func GetConfig() config.Config {
	return appCfg
}
