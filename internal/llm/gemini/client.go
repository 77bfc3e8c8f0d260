package gemini

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"contentdesk/internal/app/model"
	"contentdesk/internal/llm"
	"contentdesk/pkg/prompts"
)

const defaultDailyLimit = 1500

var _ llm.TextGenerator = (*Client)(nil)

type Config struct {
	Project    string
	Location   string
	Model      string
	DailyLimit int
	UsageFile  string
}

type Client struct {
	client  *genai.Client
	model   string
	prompts *prompts.Prompts
	usage   *usageCounter
}

func NewClient(ctx context.Context, cfg Config, p *prompts.Prompts) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	if cfg.UsageFile == "" {
		home, _ := os.UserHomeDir()
		cfg.UsageFile = filepath.Join(home, ".contentdesk_gemini_usage")
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = defaultDailyLimit
	}

	return &Client{
		client:  client,
		model:   cfg.Model,
		prompts: p,
		usage:   &usageCounter{path: cfg.UsageFile, limit: cfg.DailyLimit},
	}, nil
}

func (c *Client) GenerateText(ctx context.Context, req llm.TextRequest) (*model.TextBundle, error) {
	prompt, err := c.prompts.RenderAgentic(prompts.AgenticParams{
		Topic:        req.Topic,
		Tone:         req.Tone,
		UserContext:  req.UserContext,
		PlatformList: llm.PlatformList(req.Platforms),
		WantsTitle:   llm.WantsTitle(req.Platforms),
	})
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: c.prompts.System.Agentic}},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema:   agenticSchema(req.Platforms),
	}

	content, err := c.call(ctx, prompt, config)
	if err != nil {
		return nil, err
	}
	return llm.DecodeAgentic([]byte(content), req.Platforms)
}

func agenticSchema(platforms []model.Platform) *genai.Schema {
	props := map[string]*genai.Schema{
		"analysis": {Type: genai.TypeObject, Properties: map[string]*genai.Schema{
			"audience":    {Type: genai.TypeString},
			"key_message": {Type: genai.TypeString},
		}},
		"critique": {Type: genai.TypeObject, Properties: map[string]*genai.Schema{
			"score":    {Type: genai.TypeInteger, Description: "0-100"},
			"feedback": {Type: genai.TypeString},
		}},
	}
	required := make([]string, 0, len(platforms))

	for _, p := range platforms {
		platform := &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"content": {Type: genai.TypeString, Description: "Post body"},
				"tags":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
			Required: []string{"content", "tags"},
		}
		if p == model.PlatformBlog {
			platform.Properties["title"] = &genai.Schema{Type: genai.TypeString}
			platform.Required = append(platform.Required, "title")
		}
		props[string(p)] = platform
		required = append(required, string(p))
	}

	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   required,
	}
}

func (c *Client) call(ctx context.Context, userPrompt string, config *genai.GenerateContentConfig) (string, error) {
	if err := c.usage.check(); err != nil {
		return "", err
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), config)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	c.usage.increment()

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response")
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", fmt.Errorf("empty response")
	}

	return text, nil
}

// usageCounter enforces a per-day request cap persisted as "YYYY-MM-DD:N".
type usageCounter struct {
	mu    sync.Mutex
	path  string
	limit int
	now   func() time.Time
}

func (u *usageCounter) today() string {
	now := time.Now
	if u.now != nil {
		now = u.now
	}
	return now().Format("2006-01-02")
}

func (u *usageCounter) check() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	date, count := u.read()
	if date != u.today() {
		return nil
	}
	if count >= u.limit {
		return fmt.Errorf("daily limit of %d requests reached, resets tomorrow", u.limit)
	}
	return nil
}

func (u *usageCounter) increment() {
	u.mu.Lock()
	defer u.mu.Unlock()

	date, count := u.read()
	today := u.today()
	if date != today {
		count = 0
	}
	count++

	_ = os.WriteFile(u.path, []byte(fmt.Sprintf("%s:%d", today, count)), 0644)
}

func (u *usageCounter) read() (string, int) {
	data, err := os.ReadFile(u.path)
	if err != nil {
		return "", 0
	}
	parts := strings.Split(strings.TrimSpace(string(data)), ":")
	if len(parts) != 2 {
		return "", 0
	}
	count, _ := strconv.Atoi(parts[1])
	return parts[0], count
}
