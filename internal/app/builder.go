package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"contentdesk/internal/app/model"
	"contentdesk/internal/credits"
	"contentdesk/internal/distribution"
	"contentdesk/internal/distribution/youtube"
	"contentdesk/internal/jobs"
	"contentdesk/internal/llm"
	"contentdesk/internal/llm/gemini"
	"contentdesk/internal/llm/groq"
	"contentdesk/internal/storage"
	"contentdesk/internal/studio"
	"contentdesk/pkg/config"
	"contentdesk/pkg/httputil"
	"contentdesk/pkg/prompts"
)

// BuildService wires every collaborator from cfg. It does not hydrate state;
// callers that need the balance or the marker call State().Hydrate.
func BuildService(ctx context.Context, cfg *config.Config) (*Service, error) {
	p, err := prompts.Load()
	if err != nil {
		return nil, err
	}

	studioClient := studio.NewClient(studio.Options{
		BaseURL: cfg.Studio.BaseURL,
		APIKey:  cfg.StudioAPIKey,
		Timeouts: studio.Timeouts{
			Text:   cfg.Studio.Timeouts.Text,
			Image:  cfg.Studio.Timeouts.Image,
			Render: cfg.Studio.Timeouts.Render,
			Submit: cfg.Studio.Timeouts.Submit,
			Status: cfg.Studio.Timeouts.Status,
		},
		Retry: httputil.RetryConfig{
			MaxRetries:   cfg.Studio.Retry.MaxRetries,
			InitialDelay: cfg.Studio.Retry.InitialDelay,
			MaxDelay:     cfg.Studio.Retry.MaxDelay,
		},
	})

	var closers []io.Closer

	text, err := buildTextGenerator(ctx, cfg, p, studioClient)
	if err != nil {
		return nil, err
	}

	store, closer, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	pricing, err := buildPricing(cfg)
	if err != nil {
		return nil, err
	}

	ledger, err := credits.NewLedger(credits.LedgerOptions{
		Biller:  studioClient,
		Pricing: pricing,
		DataDir: cfg.Queue.DataDir,
	})
	if err != nil {
		return nil, err
	}

	persister, err := NewPersister(PersisterOptions{
		Saver:   studioClient,
		Archive: store,
		DataDir: cfg.Queue.DataDir,
	})
	if err != nil {
		return nil, err
	}

	poller := jobs.NewPoller(jobs.Options{
		Fetcher:        studioClient,
		Interval:       cfg.Poller.Interval,
		RequestTimeout: cfg.Poller.RequestTimeout,
	})

	var publisher distribution.Uploader
	if cfg.YouTubeClientID != "" && cfg.YouTubeClientSecret != "" {
		auth := youtube.NewAuth(cfg.YouTubeClientID, cfg.YouTubeClientSecret, cfg.YouTubeTokenPath)
		publisher = youtube.NewClient(youtube.Options{Auth: auth})
	}

	return NewService(ServiceOptions{
		Config:     cfg,
		Prompts:    p,
		Text:       text,
		Images:     studioClient,
		Renderer:   studioClient,
		Previewer:  studioClient,
		Videos:     studioClient,
		Downloader: studioClient,
		Poller:     poller,
		Persister:  persister,
		State:      NewState(store, ledger),
		Publisher:  publisher,
		Closers:    closers,
	}), nil
}

func buildTextGenerator(ctx context.Context, cfg *config.Config, p *prompts.Prompts, studioClient *studio.Client) (llm.TextGenerator, error) {
	switch cfg.Text.Provider {
	case config.ProviderGroq:
		slog.Debug("using groq for text", "model", cfg.Text.GroqModel)
		return groq.NewClient(cfg.GroqAPIKey, cfg.Text.GroqModel, p)
	case config.ProviderGemini:
		slog.Debug("using gemini for text", "model", cfg.Text.GeminiModel)
		return gemini.NewClient(ctx, gemini.Config{
			Project:    cfg.GCPProject,
			Location:   cfg.Text.GeminiLocation,
			Model:      cfg.Text.GeminiModel,
			DailyLimit: cfg.Text.GeminiDailyLimit,
			UsageFile:  filepath.Join(cfg.Queue.DataDir, "gemini_usage"),
		}, p)
	default:
		return studioClient, nil
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, io.Closer, error) {
	if cfg.Storage.Backend == config.BackendGCS {
		gcs, err := storage.NewGCSStorage(ctx, cfg.Storage.Bucket, cfg.Storage.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return gcs, gcs, nil
	}

	local := storage.NewLocalStorage(cfg.Storage.Dir)
	if err := local.EnsureDirectories(); err != nil {
		return nil, nil, err
	}
	return local, nil, nil
}

func buildPricing(cfg *config.Config) (credits.Pricing, error) {
	pricing := credits.DefaultPricing()
	pricing.PartialBatch = credits.Policy(cfg.Credits.PartialBatch)
	if cfg.Credits.AIImage != nil {
		pricing.AIImage = *cfg.Credits.AIImage
	}
	if cfg.Credits.CardNewsCard != nil {
		pricing.CardNewsCard = *cfg.Credits.CardNewsCard
	}
	for name, t := range cfg.Credits.Tiers {
		tier := model.VideoTier(name)
		pricing.Tiers[tier] = credits.Tier{Name: tier, Cuts: t.Cuts, Credits: t.Credits}
	}

	pricing = pricing.WithDefaults()
	if err := pricing.Validate(); err != nil {
		return credits.Pricing{}, fmt.Errorf("invalid credits config: %w", err)
	}
	return pricing, nil
}
