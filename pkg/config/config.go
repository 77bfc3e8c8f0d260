package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath     = "config.yaml"
	defaultStudioURL      = "http://localhost:8000"
	defaultImageModel     = "flux-schnell"
	defaultTone           = "friendly"
	defaultTextProvider   = ProviderStudio
	defaultGroqModel      = "llama-3.3-70b-versatile"
	defaultGeminiModel    = "gemini-2.5-flash"
	defaultGeminiLocation = "us-central1"
	defaultStorageBackend = BackendLocal
	defaultStorageDir     = "./data"
	defaultDataDir        = "./data/queue"
	defaultPollInterval   = 3 * time.Second
	defaultPollTimeout    = 30 * time.Second
	defaultAspectRatio    = "1:1"
	defaultDesignTemplate = "basic"
	defaultPrivacyStatus  = "private"
	defaultTokenPath      = "./youtube_token.json"
	defaultServerAddr     = ":8080"
	defaultPartialBatch   = "quoted"
)

const (
	ProviderStudio = "studio"
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"

	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// secretEnvVars are read from the environment first and from Secret Manager
// (secret id = lower-kebab env name) when GOOGLE_CLOUD_PROJECT is set.
var secretEnvVars = []string{"STUDIO_API_KEY", "GROQ_API_KEY", "YOUTUBE_CLIENT_ID", "YOUTUBE_CLIENT_SECRET"}

type Config struct {
	GCPProject          string
	StudioAPIKey        string
	GroqAPIKey          string
	YouTubeClientID     string
	YouTubeClientSecret string
	YouTubeTokenPath    string

	Studio  StudioConfig  `yaml:"studio"`
	Credits CreditsConfig `yaml:"credits"`
	Poller  PollerConfig  `yaml:"poller"`
	Text    TextConfig    `yaml:"text"`
	Draft   DraftConfig   `yaml:"draft"`
	Storage StorageConfig `yaml:"storage"`
	Queue   QueueConfig   `yaml:"queue"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Server  ServerConfig  `yaml:"server"`
}

type StudioConfig struct {
	BaseURL    string         `yaml:"base_url"`
	ImageModel string         `yaml:"image_model"`
	Timeouts   TimeoutsConfig `yaml:"timeouts"`
	Retry      RetryConfig    `yaml:"retry"`
}

type TimeoutsConfig struct {
	Text   time.Duration `yaml:"text"`
	Image  time.Duration `yaml:"image"`
	Render time.Duration `yaml:"render"`
	Submit time.Duration `yaml:"submit"`
	Status time.Duration `yaml:"status"`
}

type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type TierConfig struct {
	Cuts    int `yaml:"cuts"`
	Credits int `yaml:"credits"`
}

type CreditsConfig struct {
	AIImage      *int                  `yaml:"ai_image"` // nil keeps the built-in price
	CardNewsCard *int                  `yaml:"cardnews_card"`
	Tiers        map[string]TierConfig `yaml:"tiers"`
	PartialBatch string                `yaml:"partial_batch"` // "quoted" or "prorated"
}

type PollerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type TextConfig struct {
	Provider         string `yaml:"provider"` // "studio", "groq" or "gemini"
	Tone             string `yaml:"tone"`
	GroqModel        string `yaml:"groq_model"`
	GeminiModel      string `yaml:"gemini_model"`
	GeminiLocation   string `yaml:"gemini_location"`
	GeminiDailyLimit int    `yaml:"gemini_daily_limit"`
}

type DraftConfig struct {
	AspectRatio    string `yaml:"aspect_ratio"`
	DesignTemplate string `yaml:"design_template"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"` // "local" or "gcs"
	Dir     string `yaml:"dir"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

type QueueConfig struct {
	DataDir string `yaml:"data_dir"`
}

type YouTubeConfig struct {
	DefaultTags   []string `yaml:"default_tags"`
	PrivacyStatus string   `yaml:"privacy_status"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SecretSource resolves a named secret. A missing secret returns "" and no error.
type SecretSource interface {
	Secret(ctx context.Context, name string) (string, error)
}

// Load reads .env, config.yaml and the environment. Secrets missing from the
// environment are looked up in Secret Manager when a GCP project is set.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, defaultConfigPath, nil)
}

// LoadWith is Load with an explicit config path and secret source. A nil
// source uses Secret Manager on demand.
func LoadWith(ctx context.Context, path string, secrets SecretSource) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		GCPProject:       os.Getenv("GOOGLE_CLOUD_PROJECT"),
		YouTubeTokenPath: getEnvOrDefault("YOUTUBE_TOKEN_PATH", defaultTokenPath),
	}

	if err := loadYAMLConfig(cfg, path); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := loadSecrets(ctx, cfg, secrets); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Text.Provider {
	case ProviderStudio:
	case ProviderGroq:
		if c.GroqAPIKey == "" {
			return errors.New("text provider groq requires GROQ_API_KEY")
		}
	case ProviderGemini:
		if c.GCPProject == "" {
			return errors.New("text provider gemini requires GOOGLE_CLOUD_PROJECT")
		}
	default:
		return fmt.Errorf("unknown text provider %q", c.Text.Provider)
	}

	switch c.Storage.Backend {
	case BackendLocal:
	case BackendGCS:
		if c.Storage.Bucket == "" {
			return errors.New("storage backend gcs requires storage.bucket")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Credits.PartialBatch != "quoted" && c.Credits.PartialBatch != "prorated" {
		return fmt.Errorf("credits.partial_batch must be quoted or prorated, got %q", c.Credits.PartialBatch)
	}
	return nil
}

func loadYAMLConfig(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s (run `contentdesk setup`): %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	applyStudioDefaults(cfg)
	applyCreditsDefaults(cfg)
	applyPollerDefaults(cfg)
	applyTextDefaults(cfg)
	applyDraftDefaults(cfg)
	applyStorageDefaults(cfg)
	applyYouTubeDefaults(cfg)
	applyServerDefaults(cfg)
}

func applyStudioDefaults(cfg *Config) {
	if cfg.Studio.BaseURL == "" {
		cfg.Studio.BaseURL = defaultStudioURL
	}
	if cfg.Studio.ImageModel == "" {
		cfg.Studio.ImageModel = defaultImageModel
	}
}

// applyCreditsDefaults leaves unset prices nil; the pricing table fills them.
func applyCreditsDefaults(cfg *Config) {
	if cfg.Credits.PartialBatch == "" {
		cfg.Credits.PartialBatch = defaultPartialBatch
	}
}

func applyPollerDefaults(cfg *Config) {
	if cfg.Poller.Interval <= 0 {
		cfg.Poller.Interval = defaultPollInterval
	}
	if cfg.Poller.RequestTimeout <= 0 {
		cfg.Poller.RequestTimeout = defaultPollTimeout
	}
}

func applyTextDefaults(cfg *Config) {
	if cfg.Text.Provider == "" {
		cfg.Text.Provider = defaultTextProvider
	}
	if cfg.Text.Tone == "" {
		cfg.Text.Tone = defaultTone
	}
	if cfg.Text.GroqModel == "" {
		cfg.Text.GroqModel = defaultGroqModel
	}
	if cfg.Text.GeminiModel == "" {
		cfg.Text.GeminiModel = defaultGeminiModel
	}
	if cfg.Text.GeminiLocation == "" {
		cfg.Text.GeminiLocation = defaultGeminiLocation
	}
}

func applyDraftDefaults(cfg *Config) {
	if cfg.Draft.AspectRatio == "" {
		cfg.Draft.AspectRatio = defaultAspectRatio
	}
	if cfg.Draft.DesignTemplate == "" {
		cfg.Draft.DesignTemplate = defaultDesignTemplate
	}
}

func applyStorageDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaultStorageBackend
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = defaultStorageDir
	}
	if cfg.Queue.DataDir == "" {
		cfg.Queue.DataDir = defaultDataDir
	}
}

func applyYouTubeDefaults(cfg *Config) {
	if len(cfg.YouTube.DefaultTags) == 0 {
		cfg.YouTube.DefaultTags = []string{"shorts"}
	}
	if cfg.YouTube.PrivacyStatus == "" {
		cfg.YouTube.PrivacyStatus = defaultPrivacyStatus
	}
}

func applyServerDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultServerAddr
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Studio.BaseURL = getEnvOrDefault("STUDIO_BASE_URL", cfg.Studio.BaseURL)
	cfg.Storage.Bucket = getEnvOrDefault("GCS_BUCKET", cfg.Storage.Bucket)
	cfg.Text.Provider = getEnvOrDefault("TEXT_PROVIDER", cfg.Text.Provider)
}

func loadSecrets(ctx context.Context, cfg *Config, secrets SecretSource) error {
	values := make(map[string]string, len(secretEnvVars))
	for _, name := range secretEnvVars {
		values[name] = os.Getenv(name)
	}

	if cfg.GCPProject != "" {
		var sm *secretManager
		for _, name := range secretEnvVars {
			if values[name] != "" {
				continue
			}
			if secrets == nil {
				if sm == nil {
					var err error
					if sm, err = newSecretManager(ctx, cfg.GCPProject); err != nil {
						slog.Warn("Secret Manager unavailable, using environment only", "error", err)
						break
					}
					defer sm.Close()
				}
				secrets = sm
			}
			value, err := secrets.Secret(ctx, secretID(name))
			if err != nil {
				slog.Warn("Failed to read secret", "name", name, "error", err)
				continue
			}
			values[name] = value
		}
	}

	cfg.StudioAPIKey = values["STUDIO_API_KEY"]
	cfg.GroqAPIKey = values["GROQ_API_KEY"]
	cfg.YouTubeClientID = values["YOUTUBE_CLIENT_ID"]
	cfg.YouTubeClientSecret = values["YOUTUBE_CLIENT_SECRET"]
	return nil
}

// secretID maps STUDIO_API_KEY to studio-api-key.
func secretID(envName string) string {
	return strings.ReplaceAll(strings.ToLower(envName), "_", "-")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
