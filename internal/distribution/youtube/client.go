package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"contentdesk/internal/distribution"
)

const (
	defaultUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos"
	categoryID       = "22"
	platform         = "youtube"
	maxTitleLength   = 100

	// CallbackAddr is where the local OAuth callback listener runs.
	CallbackAddr = "localhost:8085"
)

var ErrNotAuthenticated = errors.New("youtube: not authenticated, run `contentdesk auth youtube`")

var _ distribution.Uploader = (*Client)(nil)

type Options struct {
	Auth      *Auth
	UploadURL string
}

type Client struct {
	auth      *Auth
	uploadURL string
}

type Auth struct {
	config    *oauth2.Config
	token     *oauth2.Token
	tokenPath string
}

type uploadResponse struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type videoSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"categoryId"`
}

type videoStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
}

type videoMetadata struct {
	Snippet videoSnippet `json:"snippet"`
	Status  videoStatus  `json:"status"`
}

var scopes = []string{
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube",
}

func NewAuth(clientID, clientSecret, tokenPath string) *Auth {
	return &Auth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       scopes,
			RedirectURL:  "http://" + CallbackAddr + "/callback",
		},
		tokenPath: tokenPath,
	}
}

func NewClient(opts Options) *Client {
	uploadURL := opts.UploadURL
	if uploadURL == "" {
		uploadURL = defaultUploadURL
	}
	return &Client{auth: opts.Auth, uploadURL: uploadURL}
}

// Upload streams req.Video to YouTube as a multipart upload.
func (c *Client) Upload(ctx context.Context, req distribution.UploadRequest) (*distribution.UploadResponse, error) {
	if req.Video == nil {
		return nil, fmt.Errorf("upload: no video data")
	}

	httpClient, err := c.auth.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}

	metadataJSON, err := json.Marshal(videoMetadata{
		Snippet: videoSnippet{
			Title:       truncateTitle(req.Title),
			Description: req.Description,
			Tags:        req.Tags,
			CategoryID:  categoryID,
		},
		Status: videoStatus{PrivacyStatus: req.Privacy},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	filename := req.Filename
	if filename == "" {
		filename = "video.mp4"
	}

	// stream the body so large videos are never held in memory
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadBody(writer, metadataJSON, filename, req.Video))
	}()

	url := fmt.Sprintf("%s?uploadType=multipart&part=snippet,status", c.uploadURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var uploadResp uploadResponse
	if err := json.Unmarshal(respBody, &uploadResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &distribution.UploadResponse{
		ID:       uploadResp.ID,
		URL:      fmt.Sprintf("https://youtube.com/watch?v=%s", uploadResp.ID),
		Platform: platform,
	}, nil
}

func writeUploadBody(writer *multipart.Writer, metadata []byte, filename string, video io.Reader) error {
	metadataPart, err := writer.CreateFormField("snippet")
	if err != nil {
		return fmt.Errorf("failed to create metadata part: %w", err)
	}
	if _, err := metadataPart.Write(metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	videoPart, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create video part: %w", err)
	}
	if _, err := io.Copy(videoPart, video); err != nil {
		return fmt.Errorf("failed to copy video: %w", err)
	}
	return writer.Close()
}

func truncateTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength])
	}
	return title
}

func (c *Client) Platform() string {
	return platform
}

func (c *Client) Auth() *Auth {
	return c.auth
}

func (a *Auth) TokenPath() string {
	return a.tokenPath
}

func (a *Auth) LoadToken() error {
	data, err := os.ReadFile(a.tokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotAuthenticated
	}
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}

	a.token = &token
	return nil
}

func (a *Auth) SaveToken() error {
	data, err := json.MarshalIndent(a.token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(a.tokenPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

func (a *Auth) GetAuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (a *Auth) Exchange(ctx context.Context, code string) error {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code: %w", err)
	}

	a.token = token
	return a.SaveToken()
}

func (a *Auth) Client(ctx context.Context) (*http.Client, error) {
	if a.token == nil {
		if err := a.LoadToken(); err != nil {
			return nil, err
		}
	}

	return a.config.Client(ctx, a.token), nil
}

func (a *Auth) IsAuthenticated() bool {
	if a.token == nil {
		if err := a.LoadToken(); err != nil {
			return false
		}
	}
	return a.token != nil && a.token.Valid()
}
