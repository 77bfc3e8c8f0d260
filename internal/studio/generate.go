package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"contentdesk/internal/app/model"
	"contentdesk/internal/draft"
	"contentdesk/internal/llm"
)

const (
	pathAgentic         = "/api/v1/content/generate-agentic"
	pathImages          = "/api/v1/images/generate"
	pathCardNewsPreview = "/api/v1/cardnews/preview"
	pathCardNewsRender  = "/api/v1/cardnews/render"
)

var (
	_ llm.TextGenerator = (*Client)(nil)
	_ draft.Previewer   = (*Client)(nil)
)

type agenticRequest struct {
	Topic       string   `json:"topic"`
	Tone        string   `json:"tone"`
	Platforms   []string `json:"platforms"`
	UserContext string   `json:"user_context,omitempty"`
}

// GenerateText makes one agentic call covering every requested platform.
func (c *Client) GenerateText(ctx context.Context, req llm.TextRequest) (*model.TextBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Text)
	defer cancel()

	platforms := make([]string, len(req.Platforms))
	for i, p := range req.Platforms {
		platforms[i] = string(p)
	}

	var raw []byte
	err := c.postJSON(ctx, c.http, pathAgentic, agenticRequest{
		Topic:       req.Topic,
		Tone:        req.Tone,
		Platforms:   platforms,
		UserContext: req.UserContext,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("generate text: %w", err)
	}

	return llm.DecodeAgentic(raw, req.Platforms)
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

type imageResponse struct {
	ImageURL string `json:"imageUrl"`
	URL      string `json:"url"`
}

// GenerateImage returns the URL of one generated image.
func (c *Client) GenerateImage(ctx context.Context, prompt, imageModel string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Image)
	defer cancel()

	var resp imageResponse
	if err := c.postJSON(ctx, c.http, pathImages, imageRequest{Prompt: prompt, Model: imageModel}, &resp); err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}

	url := resp.ImageURL
	if url == "" {
		url = resp.URL
	}
	if url == "" {
		return "", fmt.Errorf("generate image: response has no image url")
	}
	return url, nil
}

func (c *Client) Preview(ctx context.Context, req draft.PreviewRequest) (*draft.Preview, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Render)
	defer cancel()

	fields := map[string]string{
		"prompt":         req.Prompt,
		"generateImages": fmt.Sprintf("%t", req.GenerateImages),
		"aspectRatio":    req.AspectRatio,
	}
	if req.UserContext != "" {
		fields["userContext"] = req.UserContext
	}

	var resp draft.Preview
	if err := c.postMultipart(ctx, pathCardNewsPreview, fields, nil, &resp); err != nil {
		return nil, fmt.Errorf("card-news preview: %w", err)
	}
	for i := range resp.Pages {
		resp.Pages[i].Title = strings.TrimSpace(resp.Pages[i].Title)
	}
	return &resp, nil
}

type renderResponse struct {
	Cards []string `json:"cards"`
}

// Render turns a confirmed draft into final card images. This is the paid step.
func (c *Client) Render(ctx context.Context, final *draft.Final) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Render)
	defer cancel()

	pages, err := json.Marshal(final.Pages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pages: %w", err)
	}

	fields := map[string]string{
		"pages":          string(pages),
		"aspectRatio":    final.AspectRatio,
		"designTemplate": final.DesignTemplate,
	}
	if len(final.PreviewImages) > 0 {
		images, err := json.Marshal(final.PreviewImages)
		if err != nil {
			return nil, fmt.Errorf("failed to encode preview images: %w", err)
		}
		fields["previewImages"] = string(images)
	}

	var resp renderResponse
	if err := c.postMultipart(ctx, pathCardNewsRender, fields, nil, &resp); err != nil {
		return nil, fmt.Errorf("card-news render: %w", err)
	}
	if len(resp.Cards) == 0 {
		return nil, fmt.Errorf("card-news render: no cards returned")
	}
	return resp.Cards, nil
}
