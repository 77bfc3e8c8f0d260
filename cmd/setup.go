package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"contentdesk/internal/distribution/youtube"
	"contentdesk/pkg/config"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

const (
	setupConfigPath = "config.yaml"
	setupTokenPath  = "./youtube_token.json"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for contentdesk",
	Long:  `Write config.yaml and .env, create data directories and optionally connect Google Cloud and YouTube.`,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

// setupAnswers collects everything the wizard asks before anything is written.
type setupAnswers struct {
	studioURL  string
	provider   string
	backend    string
	bucket     string
	dataDir    string
	env        map[string]string
	ranYouTube bool
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("Contentdesk Setup"))

	answers := &setupAnswers{env: make(map[string]string), dataDir: "./data"}

	steps := []struct {
		name string
		fn   func(*setupAnswers) error
	}{
		{"Configuring studio", configureStudio},
		{"Configuring Google Cloud", configureGCP},
		{"Configuring text generation", configureText},
		{"Configuring storage", configureStorage},
		{"Creating directories", createDirectories},
		{"Writing config.yaml", writeConfigFile},
		{"Writing .env", writeEnvFile},
	}

	for _, step := range steps {
		if err := step.fn(answers); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	printNextSteps(answers)
	return nil
}

func configureStudio(a *setupAnswers) error {
	a.studioURL = "http://localhost:8000"
	var apiKey string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Studio URL").
				Value(&a.studioURL).
				Validate(required("Studio URL")),
			huh.NewInput().
				Title("Studio API key (optional)").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	a.studioURL = strings.TrimRight(strings.TrimSpace(a.studioURL), "/")
	if key := strings.TrimSpace(apiKey); key != "" {
		a.env["STUDIO_API_KEY"] = key
	}
	return nil
}

func configureGCP(a *setupAnswers) error {
	var setupGCP bool
	if err := huh.NewConfirm().
		Title("Setup Google Cloud?").
		Description("Needed for Secret Manager, Gemini, GCS archives and YouTube uploads").
		Value(&setupGCP).
		Run(); err != nil {
		return err
	}

	if !setupGCP {
		return nil
	}

	if !commandExists("gcloud") {
		fmt.Println(warnStyle.Render("gcloud CLI not found - install from https://cloud.google.com/sdk/docs/install"))
		return nil
	}

	project, err := getOrCreateGCPProject()
	if err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("GCP setup skipped: %v", err)))
		return nil
	}

	a.env["GOOGLE_CLOUD_PROJECT"] = project

	if err := enableGCPAPIs(project); err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("API enablement failed: %v", err)))
	}

	if err := setupYouTubeOAuth(a); err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("YouTube OAuth skipped: %v", err)))
	}

	return nil
}

func getOrCreateGCPProject() (string, error) {
	existing := getActiveProject()

	var choice string
	options := []huh.Option[string]{
		huh.NewOption("Create new project", "new"),
	}

	if existing != "" {
		options = append([]huh.Option[string]{
			huh.NewOption(fmt.Sprintf("Use current: %s", existing), existing),
		}, options...)
	}

	options = append(options, huh.NewOption("Enter project ID manually", "manual"))

	if err := huh.NewSelect[string]().
		Title("Google Cloud Project").
		Options(options...).
		Value(&choice).
		Run(); err != nil {
		return "", err
	}

	switch choice {
	case "new":
		return createGCPProject()
	case "manual":
		var projectID string
		if err := huh.NewInput().
			Title("Project ID").
			Value(&projectID).
			Run(); err != nil {
			return "", err
		}
		return projectID, nil
	default:
		return choice, nil
	}
}

func getActiveProject() string {
	out, err := exec.Command("gcloud", "config", "get-value", "project").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func createGCPProject() (string, error) {
	var projectID string
	if err := huh.NewInput().
		Title("New Project ID").
		Description("Must be globally unique, 6-30 chars, lowercase letters, digits, hyphens").
		Placeholder("contentdesk-12345").
		Value(&projectID).
		Validate(func(s string) error {
			if len(s) < 6 || len(s) > 30 {
				return fmt.Errorf("must be 6-30 characters")
			}
			return nil
		}).
		Run(); err != nil {
		return "", err
	}

	err := runWithSpinner("Creating project", func() error {
		return runSetupCmd("gcloud", "projects", "create", projectID)
	})
	if err != nil {
		return "", err
	}

	_ = runSetupCmd("gcloud", "config", "set", "project", projectID)

	return projectID, nil
}

func enableGCPAPIs(project string) error {
	apis := []string{
		"youtube.googleapis.com",
		"secretmanager.googleapis.com",
		"aiplatform.googleapis.com",
		"storage.googleapis.com",
	}

	return runWithSpinner("Enabling APIs", func() error {
		args := append([]string{"services", "enable"}, apis...)
		args = append(args, "--project", project)
		return runSetupCmd("gcloud", args...)
	})
}

func setupYouTubeOAuth(a *setupAnswers) error {
	var setup bool
	if err := huh.NewConfirm().
		Title("Setup YouTube OAuth?").
		Description("Required for publishing finished videos").
		Value(&setup).
		Run(); err != nil || !setup {
		return err
	}

	fmt.Println(infoStyle.Render(`
To create OAuth credentials:
1. Go to https://console.cloud.google.com/apis/credentials
2. Click "Create Credentials" → "OAuth client ID"
3. Choose "Desktop app" as application type
4. Copy the Client ID and Client Secret
`))

	var clientID, clientSecret string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("YouTube Client ID").
				Value(&clientID),
			huh.NewInput().
				Title("YouTube Client Secret").
				EchoMode(huh.EchoModePassword).
				Value(&clientSecret),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)

	if clientID != "" {
		a.env["YOUTUBE_CLIENT_ID"] = clientID
	}
	if clientSecret != "" {
		a.env["YOUTUBE_CLIENT_SECRET"] = clientSecret
	}

	if clientID != "" && clientSecret != "" {
		var authenticate bool
		if err := huh.NewConfirm().
			Title("Authenticate with YouTube now?").
			Description("Opens browser to complete OAuth flow").
			Value(&authenticate).
			Run(); err != nil {
			return err
		}

		if authenticate {
			auth := youtube.NewAuth(clientID, clientSecret, setupTokenPath)
			if err := runYouTubeAuth(context.Background(), auth); err != nil {
				fmt.Println(warnStyle.Render(fmt.Sprintf("OAuth flow failed: %v", err)))
				fmt.Println(infoStyle.Render("You can retry later with: contentdesk auth youtube"))
			} else {
				a.ranYouTube = true
			}
		}
	}

	return nil
}

func configureText(a *setupAnswers) error {
	a.provider = config.ProviderStudio

	options := []huh.Option[string]{
		huh.NewOption("Studio (default)", config.ProviderStudio),
		huh.NewOption("Groq", config.ProviderGroq),
	}
	if a.env["GOOGLE_CLOUD_PROJECT"] != "" {
		options = append(options, huh.NewOption("Gemini on Vertex AI", config.ProviderGemini))
	}

	if err := huh.NewSelect[string]().
		Title("Text generation provider").
		Options(options...).
		Value(&a.provider).
		Run(); err != nil {
		return err
	}

	if a.provider != config.ProviderGroq {
		return nil
	}

	var groqKey string
	if err := huh.NewInput().
		Title("GROQ API Key").
		Description("https://console.groq.com/keys").
		EchoMode(huh.EchoModePassword).
		Value(&groqKey).
		Validate(required("GROQ API Key")).
		Run(); err != nil {
		return err
	}
	a.env["GROQ_API_KEY"] = strings.TrimSpace(groqKey)
	return nil
}

func configureStorage(a *setupAnswers) error {
	a.backend = config.BackendLocal
	if a.env["GOOGLE_CLOUD_PROJECT"] == "" {
		return nil
	}

	if err := huh.NewSelect[string]().
		Title("Where should session archives live?").
		Options(
			huh.NewOption("Local directory", config.BackendLocal),
			huh.NewOption("Google Cloud Storage", config.BackendGCS),
		).
		Value(&a.backend).
		Run(); err != nil {
		return err
	}

	if a.backend != config.BackendGCS {
		return nil
	}
	return huh.NewInput().
		Title("GCS bucket").
		Value(&a.bucket).
		Validate(required("Bucket")).
		Run()
}

func createDirectories(a *setupAnswers) error {
	dirs := []string{a.dataDir, a.dataDir + "/queue"}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	fmt.Println(successStyle.Render("✓ Created directories"))
	return nil
}

type setupConfig struct {
	Studio struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"studio"`
	Text struct {
		Provider string `yaml:"provider"`
	} `yaml:"text"`
	Storage struct {
		Backend string `yaml:"backend"`
		Dir     string `yaml:"dir,omitempty"`
		Bucket  string `yaml:"bucket,omitempty"`
	} `yaml:"storage"`
	Queue struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"queue"`
	Credits struct {
		PartialBatch string `yaml:"partial_batch"`
	} `yaml:"credits"`
}

func writeConfigFile(a *setupAnswers) error {
	if _, err := os.Stat(setupConfigPath); err == nil {
		var overwrite bool
		if err := huh.NewConfirm().
			Title("Found existing config.yaml").
			Description("Overwrite?").
			Value(&overwrite).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println(infoStyle.Render("Kept existing config.yaml"))
			return nil
		}
	}

	var cfg setupConfig
	cfg.Studio.BaseURL = a.studioURL
	cfg.Text.Provider = a.provider
	cfg.Storage.Backend = a.backend
	if a.backend == config.BackendGCS {
		cfg.Storage.Bucket = a.bucket
	} else {
		cfg.Storage.Dir = a.dataDir
	}
	cfg.Queue.DataDir = a.dataDir + "/queue"
	cfg.Credits.PartialBatch = "quoted"

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(setupConfigPath, data, 0644); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ Created config.yaml"))
	return nil
}

func writeEnvFile(a *setupAnswers) error {
	if len(a.env) == 0 {
		return nil
	}

	if _, err := os.Stat(".env"); err == nil {
		var overwrite bool
		if err := huh.NewConfirm().
			Title("Found existing .env file").
			Description("Overwrite?").
			Value(&overwrite).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println(infoStyle.Render("Kept existing .env"))
			return nil
		}
	}

	f, err := os.OpenFile(".env", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	order := []string{
		"GOOGLE_CLOUD_PROJECT",
		"STUDIO_API_KEY",
		"GROQ_API_KEY",
		"YOUTUBE_CLIENT_ID",
		"YOUTUBE_CLIENT_SECRET",
	}

	for _, key := range order {
		if val, ok := a.env[key]; ok && val != "" {
			_, _ = fmt.Fprintf(f, "%s=%s\n", key, val)
		}
	}

	fmt.Println(successStyle.Render("✓ Created .env file"))
	return nil
}

func printNextSteps(a *setupAnswers) {
	fmt.Println()
	fmt.Println(titleStyle.Render("Next steps:"))
	fmt.Println("  1. Check your balance: contentdesk credits")
	fmt.Println("  2. Generate copy: contentdesk generate -t \"your topic\" -p blog,x")
	if a.env["YOUTUBE_CLIENT_ID"] != "" && !a.ranYouTube {
		fmt.Println("  3. Connect YouTube: contentdesk auth youtube")
	}
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func runSetupCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", err, stderr.String())
	}
	return nil
}

func runWithSpinner(title string, fn func() error) error {
	var err error
	_ = spinner.New().
		Title(title).
		Action(func() { err = fn() }).
		Run()
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ " + title))
	return nil
}
