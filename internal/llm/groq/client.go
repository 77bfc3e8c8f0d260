package groq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conneroisu/groq-go"

	"contentdesk/internal/app/model"
	"contentdesk/internal/llm"
	"contentdesk/pkg/prompts"
)

var _ llm.TextGenerator = (*Client)(nil)

type Client struct {
	client  *groq.Client
	model   groq.ChatModel
	prompts *prompts.Prompts
}

func NewClient(apiKey, model string, p *prompts.Prompts) (*Client, error) {
	client, err := groq.NewClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("create groq client: %w", err)
	}

	return &Client{
		client:  client,
		model:   groq.ChatModel(model),
		prompts: p,
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

	content, err := c.generateJSON(ctx, c.prompts.System.Agentic, prompt)
	if err != nil {
		return nil, err
	}
	slog.Debug("groq agentic response", "model", c.model, "bytes", len(content))

	return llm.DecodeAgentic([]byte(content), req.Platforms)
}

func (c *Client) generateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := groq.ChatCompletionRequest{
		Model: c.model,
		Messages: []groq.ChatCompletionMessage{
			{Role: groq.RoleSystem, Content: systemPrompt},
			{Role: groq.RoleUser, Content: userPrompt},
		},
		ResponseFormat: &groq.ChatResponseFormat{Type: "json_object"},
	}

	resp, err := c.client.ChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty response")
	}

	return content, nil
}
