package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/retrieva/internal/app"
	"github.com/nikhilbhutani/retrieva/internal/config"
)

var (
	configFile string
	logLevel   string
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieva",
		Short: "Ask questions about a document",
		Long: `Retrieva indexes a document in memory and answers questions grounded
only in its text.

Configuration comes from the environment (and .env), optionally layered on a
YAML file given with --config.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(NewAskCmd())
	cmd.AddCommand(NewMCPCmd())
	cmd.AddCommand(NewVersionCmd())
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}

// buildApp loads configuration and assembles the pipeline. Logs go to w as
// text so stdout stays free for command output.
func buildApp(ctx context.Context, w io.Writer) (*app.App, error) {
	_ = godotenv.Load()

	if configFile != "" {
		if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Log.Format = "text"
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	slog.SetDefault(app.NewLogger(cfg.Log, w))

	return app.Build(ctx, cfg)
}
