package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/chdrisk/config"
	"github.com/YuminosukeSato/chdrisk/pkg/log"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "chdrisk",
		Short: "Ten-year coronary heart disease risk classifiers on the Framingham data",
		Long: "chdrisk cleans the Framingham heart study CSV, rebalances the classes with\n" +
			"SMOTE and random undersampling, and grid-searches five classifiers.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file (default: built-in settings)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: console or json")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadConfig は --config を読み込み、ログ関連のフラグを上書きする
func (f *rootFlags) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	return cfg, nil
}

// setupLogging はzerologのプロバイダをグローバルに設定し、警告の出力先もそこへ向ける
func setupLogging(w io.Writer, cfg config.LogConfig) log.Logger {
	provider := log.NewZerologProviderWithWriter(w, log.ToLogLevel(cfg.Level), cfg.Format == "console")
	log.SetProvider(provider)
	logger := provider.GetLoggerWithName("chdrisk")
	log.InstallWarningHook(logger)
	return logger
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("chdrisk " + version)
		},
	}
}
