package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"contentdesk/internal/app/model"
	"contentdesk/internal/credits"
	"contentdesk/internal/distribution"
	"contentdesk/internal/draft"
	"contentdesk/internal/jobs"
	"contentdesk/internal/llm"
	"contentdesk/internal/studio"
	"contentdesk/pkg/prompts"
)

const (
	settleTimeout      = 30 * time.Second
	usageReferenceType = "generation"
)

// Pipeline runs the stages a request asks for, in the fixed order
// text, then images or card-news, then video.
type Pipeline struct {
	service *Service
}

// GenerateOptions carries what a request needs beyond its own fields.
type GenerateOptions struct {
	// Draft is the confirmed card-news draft. Required for cardnews.
	Draft *draft.Final
	// OnVideo receives every poll event of a shortform job.
	OnVideo jobs.Observer
}

// Generation is the outcome of Generate. For shortform, Result keeps
// changing as poll events arrive and Token stops the local poll loop.
type Generation struct {
	Result *model.GenerationResult
	Quote  int
	Token  *jobs.CancelToken
}

type PublishRequest struct {
	VideoURL    string
	Title       string
	Description string
	Tags        []string
	Privacy     string
}

type generationContext struct {
	ctx      context.Context
	pipeline *Pipeline
	request  model.GenerationRequest
	result   *model.GenerationResult
	opts     GenerateOptions
}

func NewPipeline(service *Service) *Pipeline {
	return &Pipeline{service: service}
}

// Quote returns the credit cost of req as Generate would charge it up front.
func (pipeline *Pipeline) Quote(req model.GenerationRequest, final *draft.Final) int {
	return pipeline.service.Ledger().Pricing().Cost(pipeline.withDefaults(req, final))
}

// Generate validates req, checks the balance, and runs the stages. Validation
// errors, credit errors and a failed text stage return a nil Generation.
// Later stage failures return the Generation too, holding whatever the
// earlier stages produced.
func (pipeline *Pipeline) Generate(ctx context.Context, req model.GenerationRequest, opts GenerateOptions) (*Generation, error) {
	req = pipeline.withDefaults(req, opts.Draft)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.WantsImages() && req.ImageFormat == model.FormatCardNews && opts.Draft == nil {
		return nil, &model.ValidationError{Field: "draft", Message: "card-news needs a confirmed draft"}
	}

	quote := pipeline.service.Ledger().Pricing().Cost(req)
	if err := pipeline.reserve(ctx, quote); err != nil {
		return nil, err
	}

	generation := &generationContext{
		ctx:      ctx,
		pipeline: pipeline,
		request:  req,
		result:   model.NewGenerationResult(uuid.NewString(), req),
		opts:     opts,
	}
	out := &Generation{Result: generation.result, Quote: quote}

	state := pipeline.service.State()
	if err := state.Begin(ctx, generation.result.ID, quote); err != nil {
		slog.Warn("failed to write in-progress marker", "error", err)
	}

	slog.Info("Starting generation",
		"result_id", generation.result.ID,
		"content_type", req.ContentType,
		"quote", quote,
	)

	if req.WantsText() {
		slog.Info("Generating text...", "platforms", llm.PlatformList(req.Platforms))
		if err := generation.generateText(); err != nil {
			generation.finish()
			return nil, err
		}
	}

	var stageErr error
	if req.WantsImages() {
		switch req.ImageFormat {
		case model.FormatAIImage:
			slog.Info("Generating images...", "count", req.ImageCount)
			stageErr = generation.generateImages()
		case model.FormatCardNews:
			slog.Info("Rendering card-news...", "pages", len(opts.Draft.Pages))
			stageErr = generation.renderCardNews()
		}
	}

	if req.WantsVideo() {
		slog.Info("Submitting video job...", "tier", req.VideoTier)
		token, err := generation.startVideo(quote)
		if err != nil {
			generation.finish()
			return out, err
		}
		out.Token = token
		return out, nil
	}

	generation.settle(generation.charge(), true)
	generation.finish()
	return out, stageErr
}

// Watch re-attaches to a video job. A job submitted by this process keeps
// feeding the generation that owns it, which is billed on completion. A job
// from an earlier process is billed through the in-progress marker when it
// belongs to it.
func (pipeline *Pipeline) Watch(ctx context.Context, jobID string, observer jobs.Observer) *jobs.CancelToken {
	if owner, ok := pipeline.service.videoOwner(jobID); ok {
		return pipeline.service.Poller().Reattach(ctx, jobID, func(ev jobs.Event) {
			owner(ev)
			if observer != nil {
				observer(ev)
			}
		})
	}

	marker, ok := pipeline.service.State().Marker()
	owned := ok && marker.JobID == jobID

	return pipeline.service.Poller().Reattach(ctx, jobID, func(ev jobs.Event) {
		if owned && ev.Terminal() {
			settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
			if ev.Kind == jobs.EventCompleted && ev.Job.ResultURL != "" {
				pipeline.debit(settleCtx, marker.ResultID, marker.Cost, "shortform video "+jobID)
			}
			if err := pipeline.service.State().Finish(settleCtx, marker.ResultID); err != nil {
				slog.Warn("failed to clear in-progress marker", "error", err)
			}
			cancel()
		}
		if observer != nil {
			observer(ev)
		}
	})
}

// Publish downloads a finished video and uploads it to the configured
// platform.
func (pipeline *Pipeline) Publish(ctx context.Context, req PublishRequest) (*distribution.UploadResponse, error) {
	publisher := pipeline.service.Publisher()
	if publisher == nil {
		return nil, errors.New("publishing is not configured (missing YOUTUBE_CLIENT_ID or YOUTUBE_CLIENT_SECRET)")
	}
	if req.VideoURL == "" {
		return nil, errors.New("video url is required")
	}

	tmp, err := os.CreateTemp("", "contentdesk-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	slog.Info("Downloading video...", "url", req.VideoURL)
	size, err := pipeline.service.Downloader().Download(ctx, req.VideoURL, tmp)
	if err != nil {
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind video: %w", err)
	}

	cfg := pipeline.service.Config()
	tags := req.Tags
	if len(tags) == 0 {
		tags = cfg.YouTube.DefaultTags
	}
	privacy := req.Privacy
	if privacy == "" {
		privacy = cfg.YouTube.PrivacyStatus
	}

	slog.Info("Uploading video...", "platform", publisher.Platform(), "bytes", size)
	resp, err := publisher.Upload(ctx, distribution.UploadRequest{
		Video:       tmp,
		Filename:    videoFilename(req.VideoURL),
		Title:       req.Title,
		Description: req.Description,
		Tags:        tags,
		Privacy:     privacy,
	})
	if err != nil {
		return nil, fmt.Errorf("upload video: %w", err)
	}
	return resp, nil
}

func (pipeline *Pipeline) withDefaults(req model.GenerationRequest, final *draft.Final) model.GenerationRequest {
	cfg := pipeline.service.Config()
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Tone == "" && cfg != nil {
		req.Tone = cfg.Text.Tone
	}
	if req.ImageModel == "" && cfg != nil {
		req.ImageModel = cfg.Studio.ImageModel
	}
	if req.WantsImages() && req.ImageFormat == "" {
		req.ImageFormat = model.FormatAIImage
	}
	// a confirmed draft fixes the number of cards
	if req.WantsImages() && req.ImageFormat == model.FormatCardNews && final != nil {
		req.ImageCount = len(final.Pages)
	}
	return req
}

// reserve checks the balance for paid requests, reading it first if the
// ledger has not been hydrated yet.
func (pipeline *Pipeline) reserve(ctx context.Context, quote int) error {
	if quote == 0 {
		return nil
	}
	ledger := pipeline.service.Ledger()
	if !ledger.Hydrated() {
		if _, err := ledger.Hydrate(ctx); err != nil {
			return err
		}
	}
	return ledger.Reserve(quote)
}

func (pipeline *Pipeline) debit(ctx context.Context, resultID string, amount int, description string) {
	err := pipeline.service.Ledger().Debit(ctx, credits.UsageRequest{
		Amount:        amount,
		Description:   description,
		ReferenceType: usageReferenceType,
		ReferenceID:   resultID,
	})
	if err != nil {
		slog.Warn("credit usage not recorded, will reconcile", "result_id", resultID, "error", err)
	}
}

func (generation *generationContext) generateText() error {
	req := generation.request
	bundle, err := generation.pipeline.service.Text().GenerateText(generation.ctx, llm.TextRequest{
		Topic:       req.Topic,
		Tone:        req.Tone,
		Platforms:   req.Platforms,
		UserContext: req.UserContext,
	})
	if err != nil {
		return &model.StageFailure{Stage: model.StageText, Err: err}
	}

	result := generation.result
	for _, p := range req.Platforms {
		if text, ok := bundle.Platforms[p]; ok {
			result.Text[p] = text
		}
	}
	result.Analysis = bundle.Analysis
	result.Critique = bundle.Critique

	for _, p := range llm.Missing(bundle, req.Platforms) {
		slog.Warn("text response missing platform", "platform", p)
		result.AddFailure(fmt.Sprintf("text: no copy returned for %s", p))
	}
	return nil
}

// generateImages calls the image collaborator once per requested image, one
// at a time. Failed attempts are folded into a PartialBatchFailure.
func (generation *generationContext) generateImages() error {
	req := generation.request
	p := generation.pipeline.service.Prompts()

	var (
		images   []model.GeneratedImage
		failures []error
	)
	for i := range req.ImageCount {
		prompt, err := p.RenderImage(prompts.ImageParams{
			Topic:       req.Topic,
			Tone:        req.Tone,
			UserContext: req.UserContext,
			Index:       i + 1,
			Count:       req.ImageCount,
		})
		if err != nil {
			return &model.StageFailure{Stage: model.StageImage, Err: fmt.Errorf("render image prompt: %w", err)}
		}

		imageURL, err := generation.pipeline.service.Images().GenerateImage(generation.ctx, prompt, req.ImageModel)
		if err != nil {
			slog.Warn("image generation failed", "index", i+1, "of", req.ImageCount, "error", err)
			failures = append(failures, fmt.Errorf("image %d: %w", i+1, err))
			continue
		}
		slog.Debug("image generated", "index", i+1, "url", imageURL)
		images = append(images, model.GeneratedImage{URL: imageURL, Prompt: prompt})
	}

	generation.result.Images = images
	if len(failures) == 0 {
		return nil
	}

	batch := &model.PartialBatchFailure{
		Requested: req.ImageCount,
		Succeeded: len(images),
		Errors:    failures,
	}
	generation.result.AddFailure(batch.Error())
	if len(images) == 0 {
		return &model.StageFailure{Stage: model.StageImage, Err: batch}
	}
	slog.Warn("partial image batch", "succeeded", batch.Succeeded, "requested", batch.Requested)
	return nil
}

func (generation *generationContext) renderCardNews() error {
	cards, err := generation.pipeline.service.Renderer().Render(generation.ctx, generation.opts.Draft)
	if err != nil {
		generation.result.AddFailure(fmt.Sprintf("card-news: %v", err))
		return &model.StageFailure{Stage: model.StageCardNews, Err: err}
	}
	generation.result.Cards = cards
	return nil
}

// startVideo submits the job, saves the session once with no cost yet, and
// hands the job to the poller. The quote is debited only when the job
// completes.
func (generation *generationContext) startVideo(quote int) (*jobs.CancelToken, error) {
	req := generation.request
	svc := generation.pipeline.service

	job, err := svc.Videos().SubmitVideo(generation.ctx, studio.VideoSubmission{
		ProductName:        req.Topic,
		ProductDescription: req.ProductDescription,
		Tier:               req.VideoTier,
		Image:              *req.ReferenceImage,
	})
	if err != nil {
		generation.result.AddFailure(fmt.Sprintf("video: %v", err))
		return nil, &model.StageFailure{Stage: model.StageVideo, Err: err}
	}

	result := generation.result
	result.UpdateVideo(func(v *model.VideoResult) {
		v.JobID = job.ID
		v.Status = job.Status
		v.Progress = job.Progress
		v.Step = job.CurrentStep
	})
	slog.Info("Video job submitted", "job_id", job.ID)

	if err := svc.State().AttachJob(generation.ctx, result.ID, job.ID); err != nil {
		slog.Warn("failed to write in-progress marker", "error", err)
	}
	generation.settle(0, false)

	observer := generation.videoObserver(job.ID, quote)
	svc.adoptVideo(job.ID, observer)
	return svc.Poller().Track(generation.ctx, job.ID, observer), nil
}

func (generation *generationContext) videoObserver(jobID string, quote int) jobs.Observer {
	result := generation.result
	pipeline := generation.pipeline
	next := generation.opts.OnVideo

	return func(ev jobs.Event) {
		result.UpdateVideo(func(v *model.VideoResult) {
			v.Status = ev.Job.Status
			v.Progress = ev.Job.Progress
			v.Step = ev.Job.CurrentStep
			switch ev.Kind {
			case jobs.EventCompleted:
				v.URL = ev.Job.ResultURL
			case jobs.EventFailed:
				v.ErrorMessage = ev.Job.ErrorMessage
			}
		})

		if ev.Terminal() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(generation.ctx), settleTimeout)
			switch ev.Kind {
			case jobs.EventCompleted:
				if result.PaidArtifacts() > 0 {
					result.SetCost(quote)
					pipeline.debit(ctx, result.ID, quote, generation.describe())
				} else {
					slog.Warn("video job completed without a result url", "job_id", ev.Job.ID)
				}
			case jobs.EventFailed:
				failure := &model.RemoteJobFailure{JobID: ev.Job.ID, Message: ev.Job.ErrorMessage}
				slog.Error("video job failed", "job_id", ev.Job.ID, "error", failure.Message)
				result.AddFailure(failure.Error())
			}
			pipeline.service.releaseVideo(jobID)
			pipeline.service.Persister().Refresh(ctx, result)
			if err := pipeline.service.State().Finish(ctx, result.ID); err != nil {
				slog.Warn("failed to clear in-progress marker", "error", err)
			}
			cancel()
		}

		if next != nil {
			next(ev)
		}
	}
}

// charge is what the finished stages cost under the configured pricing.
func (generation *generationContext) charge() int {
	if generation.result.PaidArtifacts() == 0 {
		return 0
	}
	pricing := generation.pipeline.service.Ledger().Pricing()
	return pricing.Charge(generation.request, len(generation.result.Images))
}

// settle persists the result once and, when bill is set, debits amount once.
// A result with nothing in it is neither saved nor billed.
func (generation *generationContext) settle(amount int, bill bool) {
	result := generation.result
	snap := result.Snapshot()
	if len(snap.Text) == 0 && len(snap.Images) == 0 && len(snap.Cards) == 0 && snap.Video == nil {
		slog.Warn("nothing produced, skipping save", "result_id", result.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(generation.ctx), settleTimeout)
	defer cancel()

	result.SetCost(amount)
	if err := generation.pipeline.service.Persister().Save(ctx, result); err != nil {
		slog.Warn("result kept without a saved session", "error", err)
	}
	if bill && amount > 0 {
		generation.pipeline.debit(ctx, result.ID, amount, generation.describe())
	}
}

func (generation *generationContext) finish() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(generation.ctx), settleTimeout)
	defer cancel()
	if err := generation.pipeline.service.State().Finish(ctx, generation.result.ID); err != nil {
		slog.Warn("failed to clear in-progress marker", "error", err)
	}
}

func (generation *generationContext) describe() string {
	req := generation.request
	switch {
	case req.WantsVideo():
		return fmt.Sprintf("shortform video (%s): %s", req.VideoTier, req.Topic)
	case req.ImageFormat == model.FormatCardNews:
		return fmt.Sprintf("card-news x%d: %s", req.ImageCount, req.Topic)
	default:
		return fmt.Sprintf("ai-image x%d: %s", req.ImageCount, req.Topic)
	}
}

func videoFilename(videoURL string) string {
	u, err := url.Parse(videoURL)
	if err != nil {
		return "video.mp4"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "video.mp4"
	}
	if path.Ext(name) == "" {
		name += ".mp4"
	}
	return name
}
