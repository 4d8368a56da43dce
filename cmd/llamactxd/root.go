package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llamactx/internal/config"
	"llamactx/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "llamactxd",
		Short:         "Local LLM inference contexts over HTTP and the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to a .yaml, .json or .toml config file")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error, off")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: json or console")

	cmd.AddCommand(newServeCmd(opts), newGenerateCmd(opts), newModelsCmd(opts))
	return cmd
}

// load resolves the configuration: file, then environment, then the
// persistent flags, with defaults filling whatever is left.
func (o *rootOptions) load() (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	cfg = cfg.ApplyEnv()
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	return cfg.Merge(config.Default()), nil
}

func (o *rootOptions) logger(cfg config.Config) (zerolog.Logger, error) {
	return logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
}
