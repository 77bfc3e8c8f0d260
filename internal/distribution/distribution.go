package distribution

import (
	"context"
	"io"
)

// UploadRequest describes one finished video to publish. Video is read once.
type UploadRequest struct {
	Video       io.Reader
	Filename    string
	Title       string
	Description string
	Tags        []string
	Privacy     string
}

type UploadResponse struct {
	ID       string
	URL      string
	Platform string
}

type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error)
	Platform() string
}
