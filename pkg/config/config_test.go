package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeSecrets struct {
	values map[string]string
	err    error
	asked  []string
}

func (f *fakeSecrets) Secret(_ context.Context, name string) (string, error) {
	f.asked = append(f.asked, name)
	if f.err != nil {
		return "", f.err
	}
	return f.values[name], nil
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(orig) })
	_ = os.Chdir(tmp)

	for _, name := range append(secretEnvVars, "GOOGLE_CLOUD_PROJECT", "STUDIO_BASE_URL", "GCS_BUCKET", "TEXT_PROVIDER") {
		t.Setenv(name, "")
	}
	return tmp
}

func TestLoadFromYAML(t *testing.T) {
	tmp := chdirTemp(t)

	yaml := `
studio:
  base_url: https://studio.example.com
  timeouts:
    submit: 10m
credits:
  ai_image: 3
  partial_batch: prorated
  tiers:
    premium:
      cuts: 10
      credits: 50
poller:
  interval: 5s
text:
  tone: playful
storage:
  dir: ./archive
`
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte(yaml), 0644)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Studio.BaseURL != "https://studio.example.com" {
		t.Errorf("Studio.BaseURL = %q", cfg.Studio.BaseURL)
	}
	if cfg.Studio.Timeouts.Submit != 10*time.Minute {
		t.Errorf("Studio.Timeouts.Submit = %v, want 10m", cfg.Studio.Timeouts.Submit)
	}
	if cfg.Credits.AIImage == nil || *cfg.Credits.AIImage != 3 || cfg.Credits.CardNewsCard != nil || cfg.Credits.PartialBatch != "prorated" {
		t.Errorf("Credits = %+v", cfg.Credits)
	}
	if cfg.Credits.Tiers["premium"].Credits != 50 {
		t.Errorf("premium tier = %+v", cfg.Credits.Tiers["premium"])
	}
	if cfg.Poller.Interval != 5*time.Second {
		t.Errorf("Poller.Interval = %v, want 5s", cfg.Poller.Interval)
	}
	if cfg.Text.Tone != "playful" {
		t.Errorf("Text.Tone = %q, want playful", cfg.Text.Tone)
	}
	if cfg.Storage.Dir != "./archive" {
		t.Errorf("Storage.Dir = %q", cfg.Storage.Dir)
	}
}

func TestLoadZeroPriceIsKept(t *testing.T) {
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("credits:\n  ai_image: 0\n"), 0644)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Credits.AIImage == nil || *cfg.Credits.AIImage != 0 {
		t.Errorf("Credits.AIImage = %v, want explicit 0", cfg.Credits.AIImage)
	}
	if cfg.Credits.CardNewsCard != nil {
		t.Errorf("Credits.CardNewsCard = %v, want unset", *cfg.Credits.CardNewsCard)
	}
}

func TestLoadDefaults(t *testing.T) {
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("{}"), 0644)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{name: "studioUrl", got: cfg.Studio.BaseURL, want: defaultStudioURL},
		{name: "textProvider", got: cfg.Text.Provider, want: ProviderStudio},
		{name: "pollInterval", got: cfg.Poller.Interval, want: 3 * time.Second},
		{name: "partialBatch", got: cfg.Credits.PartialBatch, want: "quoted"},
		{name: "storageBackend", got: cfg.Storage.Backend, want: BackendLocal},
		{name: "aspectRatio", got: cfg.Draft.AspectRatio, want: "1:1"},
		{name: "privacy", got: cfg.YouTube.PrivacyStatus, want: "private"},
		{name: "serverAddr", got: cfg.Server.Addr, want: ":8080"},
		{name: "tokenPath", got: cfg.YouTubeTokenPath, want: defaultTokenPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("text:\n  provider: groq"), 0644)

	t.Setenv("GROQ_API_KEY", "test-groq")
	t.Setenv("STUDIO_API_KEY", "test-studio")
	t.Setenv("STUDIO_BASE_URL", "http://studio.internal")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.GroqAPIKey != "test-groq" {
		t.Errorf("GroqAPIKey = %q, want test-groq", cfg.GroqAPIKey)
	}
	if cfg.StudioAPIKey != "test-studio" {
		t.Errorf("StudioAPIKey = %q, want test-studio", cfg.StudioAPIKey)
	}
	if cfg.Studio.BaseURL != "http://studio.internal" {
		t.Errorf("Studio.BaseURL = %q", cfg.Studio.BaseURL)
	}
}

func TestLoadSecretFallback(t *testing.T) {
	tmp := chdirTemp(t)
	path := filepath.Join(tmp, "config.yaml")
	_ = os.WriteFile(path, []byte("text:\n  provider: groq"), 0644)

	t.Setenv("GOOGLE_CLOUD_PROJECT", "test-project")
	t.Setenv("STUDIO_API_KEY", "from-env")

	secrets := &fakeSecrets{values: map[string]string{
		"groq-api-key":   "from-secret-manager",
		"studio-api-key": "never-used",
	}}

	cfg, err := LoadWith(context.Background(), path, secrets)
	if err != nil {
		t.Fatalf("LoadWith() error: %v", err)
	}

	if cfg.GCPProject != "test-project" {
		t.Errorf("GCPProject = %q, want test-project", cfg.GCPProject)
	}
	if cfg.GroqAPIKey != "from-secret-manager" {
		t.Errorf("GroqAPIKey = %q, want from-secret-manager", cfg.GroqAPIKey)
	}
	if cfg.StudioAPIKey != "from-env" {
		t.Errorf("StudioAPIKey = %q, env must win over secrets", cfg.StudioAPIKey)
	}
	for _, name := range secrets.asked {
		if name == "studio-api-key" {
			t.Error("secret manager consulted for a key already in the environment")
		}
	}
}

func TestLoadSecretErrorsAreNotFatal(t *testing.T) {
	tmp := chdirTemp(t)
	path := filepath.Join(tmp, "config.yaml")
	_ = os.WriteFile(path, []byte("{}"), 0644)

	t.Setenv("GOOGLE_CLOUD_PROJECT", "test-project")

	cfg, err := LoadWith(context.Background(), path, &fakeSecrets{err: errors.New("permission denied")})
	if err != nil {
		t.Fatalf("LoadWith() error: %v", err)
	}
	if cfg.StudioAPIKey != "" {
		t.Errorf("StudioAPIKey = %q, want empty", cfg.StudioAPIKey)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "groqWithoutKey", yaml: "text:\n  provider: groq"},
		{name: "geminiWithoutProject", yaml: "text:\n  provider: gemini"},
		{name: "unknownProvider", yaml: "text:\n  provider: openai"},
		{name: "gcsWithoutBucket", yaml: "storage:\n  backend: gcs"},
		{name: "unknownPolicy", yaml: "credits:\n  partial_batch: refund"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := chdirTemp(t)
			_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte(tt.yaml), 0644)

			if _, err := Load(context.Background()); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	chdirTemp(t)

	_, err := Load(context.Background())
	if err == nil {
		t.Error("Load() should fail when config.yaml missing")
	}
}

func TestSecretID(t *testing.T) {
	if got := secretID("YOUTUBE_CLIENT_SECRET"); got != "youtube-client-secret" {
		t.Errorf("secretID() = %q", got)
	}
}
