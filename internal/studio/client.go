package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"contentdesk/internal/app/model"
	"contentdesk/pkg/httputil"
)

const (
	defaultTextTimeout   = 60 * time.Second
	defaultImageTimeout  = 90 * time.Second
	defaultRenderTimeout = 3 * time.Minute
	defaultSubmitTimeout = 5 * time.Minute
	defaultStatusTimeout = 30 * time.Second
	maxErrorBody         = 4096
)

type Timeouts struct {
	Text   time.Duration
	Image  time.Duration
	Render time.Duration
	Submit time.Duration
	Status time.Duration
}

type Options struct {
	BaseURL    string
	APIKey     string
	Timeouts   Timeouts
	HTTPClient *http.Client
	Retry      httputil.RetryConfig
}

// Client talks to the studio generation service. One-shot stage calls are
// made exactly once; bookkeeping calls (usage, sessions) go through a
// retrying client.
type Client struct {
	baseURL  string
	apiKey   string
	timeouts Timeouts
	http     httputil.Doer
	retry    httputil.Doer
}

// APIError is a non-2xx response from the studio service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("studio api error (%d): %s", e.StatusCode, e.Message)
}

// Is makes 429 and 5xx responses match model.ErrTransient.
func (e *APIError) Is(target error) bool {
	return target == model.ErrTransient && httputil.IsTransientStatus(e.StatusCode)
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	t := opts.Timeouts
	if t.Text <= 0 {
		t.Text = defaultTextTimeout
	}
	if t.Image <= 0 {
		t.Image = defaultImageTimeout
	}
	if t.Render <= 0 {
		t.Render = defaultRenderTimeout
	}
	if t.Submit <= 0 {
		t.Submit = defaultSubmitTimeout
	}
	if t.Status <= 0 {
		t.Status = defaultStatusTimeout
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		timeouts: t,
		http:     httpClient,
		retry:    httputil.NewRetryClient(httpClient, opts.Retry),
	}
}

type formFile struct {
	field    string
	filename string
	data     []byte
}

func (c *Client) postJSON(ctx context.Context, doer httputil.Doer, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(doer, req, out)
}

func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, files []formFile, out any) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(f.data); err != nil {
			return fmt.Errorf("failed to write form file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.do(c.http, req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(c.http, req, out)
}

func (c *Client) do(doer httputil.Doer, req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := doer.Do(req)
	if err != nil {
		if httputil.IsTransient(err) {
			return fmt.Errorf("%w: %s %s: %v", model.ErrTransient, req.Method, req.URL.Path, err)
		}
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", model.ErrTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = body
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage extracts the service's error string from the common envelopes.
func errorMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		for _, raw := range []json.RawMessage{envelope.Error, envelope.Detail} {
			if len(raw) == 0 {
				continue
			}
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		// the cut may land inside a multi-byte rune
		msg = strings.ToValidUTF8(msg[:maxErrorBody], "")
	}
	if msg == "" {
		msg = "empty response"
	}
	return msg
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, model.ErrTransient)
}
