package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"contentdesk/internal/app"
	"contentdesk/pkg/config"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "contentdesk",
	Short: "Generate marketing copy, images and short-form videos",
	Long: `Contentdesk drives the studio service: platform copy, AI images,
card-news decks and short-form product videos, billed against your credit balance.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogger()
	}
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setupLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadService reads the config and builds a hydrated service. Callers must
// Close it.
func loadService(ctx context.Context) (*app.Service, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := app.BuildService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := svc.State().Hydrate(ctx); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}
