package model

import (
	"slices"
	"strings"
	"sync"
	"time"
)

type ContentType string

const (
	ContentText      ContentType = "text"
	ContentImage     ContentType = "image"
	ContentBoth      ContentType = "both"
	ContentShortform ContentType = "shortform"
)

type Platform string

const (
	PlatformBlog    Platform = "blog"
	PlatformSNS     Platform = "sns"
	PlatformX       Platform = "x"
	PlatformThreads Platform = "threads"
)

var AllPlatforms = []Platform{PlatformBlog, PlatformSNS, PlatformX, PlatformThreads}

type ImageFormat string

const (
	FormatAIImage  ImageFormat = "ai-image"
	FormatCardNews ImageFormat = "cardnews"
)

type VideoTier string

const (
	TierShort    VideoTier = "short"
	TierStandard VideoTier = "standard"
	TierPremium  VideoTier = "premium"
)

const (
	MinImageCount = 1
	MaxImageCount = 8
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type GenerationRequest struct {
	Topic          string
	ContentType    ContentType
	Platforms      []Platform
	ImageFormat    ImageFormat
	ImageCount     int
	VideoTier      VideoTier
	ReferenceImage *Attachment

	Tone               string
	UserContext        string
	ImageModel         string
	ProductDescription string
}

func (r GenerationRequest) WantsText() bool {
	return r.ContentType == ContentText || r.ContentType == ContentBoth
}

func (r GenerationRequest) WantsImages() bool {
	return r.ContentType == ContentImage || r.ContentType == ContentBoth
}

func (r GenerationRequest) WantsVideo() bool {
	return r.ContentType == ContentShortform
}

func (r GenerationRequest) HasPlatform(p Platform) bool {
	return slices.Contains(r.Platforms, p)
}

// Validate rejects requests that must never reach a collaborator.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return &ValidationError{Field: "topic", Message: "topic is required"}
	}

	switch r.ContentType {
	case ContentText, ContentBoth:
		if len(r.Platforms) == 0 {
			return &ValidationError{Field: "platforms", Message: "select at least one platform"}
		}
	case ContentImage, ContentShortform:
	default:
		return &ValidationError{Field: "contentType", Message: "unknown content type " + string(r.ContentType)}
	}

	for _, p := range r.Platforms {
		if !slices.Contains(AllPlatforms, p) {
			return &ValidationError{Field: "platforms", Message: "unknown platform " + string(p)}
		}
	}

	if r.WantsImages() {
		if r.ImageFormat != FormatAIImage && r.ImageFormat != FormatCardNews {
			return &ValidationError{Field: "imageFormat", Message: "unknown image format " + string(r.ImageFormat)}
		}
		if r.ImageCount < MinImageCount || r.ImageCount > MaxImageCount {
			return &ValidationError{Field: "imageCount", Message: "image count must be between 1 and 8"}
		}
	}

	if r.WantsVideo() {
		switch r.VideoTier {
		case TierShort, TierStandard, TierPremium:
		default:
			return &ValidationError{Field: "videoTier", Message: "unknown video tier " + string(r.VideoTier)}
		}
		if r.ReferenceImage == nil || len(r.ReferenceImage.Data) == 0 {
			return &ValidationError{Field: "referenceImage", Message: "short-form video requires one reference image"}
		}
	}

	return nil
}

type PlatformText struct {
	Title   string   `json:"title,omitempty"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// TextBundle is the normalised output of one agentic text call.
type TextBundle struct {
	Platforms map[Platform]PlatformText `json:"platforms"`
	Analysis  map[string]any            `json:"analysis,omitempty"`
	Critique  map[string]any            `json:"critique,omitempty"`
}

type GeneratedImage struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}

type VideoResult struct {
	URL          string    `json:"url,omitempty"`
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	Step         string    `json:"step,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// GenerationResult is produced once per request. Only the video field changes
// after creation, as poll events arrive; use Snapshot to read it concurrently.
type GenerationResult struct {
	mu sync.RWMutex

	ID        string
	Request   GenerationRequest
	Text      map[Platform]PlatformText
	Analysis  map[string]any
	Critique  map[string]any
	Images    []GeneratedImage
	Cards     []string
	Video     *VideoResult
	Failures  []string
	Cost      int
	CreatedAt time.Time
}

func NewGenerationResult(id string, req GenerationRequest) *GenerationResult {
	return &GenerationResult{
		ID:        id,
		Request:   req,
		Text:      make(map[Platform]PlatformText),
		CreatedAt: time.Now(),
	}
}

func (r *GenerationResult) UpdateVideo(fn func(v *VideoResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Video == nil {
		r.Video = &VideoResult{}
	}
	fn(r.Video)
}

func (r *GenerationResult) SetCost(cost int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cost = cost
}

func (r *GenerationResult) AddFailure(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, msg)
}

// PaidArtifacts counts images, cards, and a completed video.
func (r *GenerationResult) PaidArtifacts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.Images) + len(r.Cards)
	if r.Video != nil && r.Video.Status == JobCompleted && r.Video.URL != "" {
		n++
	}
	return n
}

type ResultSnapshot struct {
	ID        string                    `json:"id"`
	Topic     string                    `json:"topic"`
	Type      ContentType               `json:"content_type"`
	Text      map[Platform]PlatformText `json:"text,omitempty"`
	Analysis  map[string]any            `json:"analysis,omitempty"`
	Critique  map[string]any            `json:"critique,omitempty"`
	Images    []GeneratedImage          `json:"images"`
	Cards     []string                  `json:"cards,omitempty"`
	Video     *VideoResult              `json:"video,omitempty"`
	Failures  []string                  `json:"failures,omitempty"`
	Cost      int                       `json:"cost"`
	CreatedAt time.Time                 `json:"created_at"`
}

func (r *GenerationResult) Snapshot() ResultSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := ResultSnapshot{
		ID:        r.ID,
		Topic:     r.Request.Topic,
		Type:      r.Request.ContentType,
		Text:      make(map[Platform]PlatformText, len(r.Text)),
		Analysis:  r.Analysis,
		Critique:  r.Critique,
		Images:    slices.Clone(r.Images),
		Cards:     slices.Clone(r.Cards),
		Failures:  slices.Clone(r.Failures),
		Cost:      r.Cost,
		CreatedAt: r.CreatedAt,
	}
	if snap.Images == nil {
		snap.Images = []GeneratedImage{}
	}
	for p, t := range r.Text {
		snap.Text[p] = t
	}
	if r.Video != nil {
		v := *r.Video
		snap.Video = &v
	}
	return snap
}

// SessionRecord is the persisted projection of a GenerationResult.
type SessionRecord struct {
	ResultID    string                    `json:"result_id"`
	Topic       string                    `json:"topic"`
	ContentType ContentType               `json:"content_type"`
	Platforms   []Platform                `json:"platforms,omitempty"`
	ImageFormat ImageFormat               `json:"image_format,omitempty"`
	ImageCount  int                       `json:"image_count,omitempty"`
	VideoTier   VideoTier                 `json:"video_tier,omitempty"`
	Text        map[Platform]PlatformText `json:"text,omitempty"`
	Images      []GeneratedImage          `json:"images,omitempty"`
	Cards       []string                  `json:"cards,omitempty"`
	Video       *VideoResult              `json:"video,omitempty"`
	Cost        int                       `json:"cost"`
	CreatedAt   time.Time                 `json:"created_at"`
}

func NewSessionRecord(r *GenerationResult) SessionRecord {
	snap := r.Snapshot()
	req := r.Request
	return SessionRecord{
		ResultID:    snap.ID,
		Topic:       req.Topic,
		ContentType: req.ContentType,
		Platforms:   slices.Clone(req.Platforms),
		ImageFormat: req.ImageFormat,
		ImageCount:  req.ImageCount,
		VideoTier:   req.VideoTier,
		Text:        snap.Text,
		Images:      snap.Images,
		Cards:       snap.Cards,
		Video:       snap.Video,
		Cost:        snap.Cost,
		CreatedAt:   snap.CreatedAt,
	}
}
