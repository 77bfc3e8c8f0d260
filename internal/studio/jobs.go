package studio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"contentdesk/internal/app/model"
	"contentdesk/internal/jobs"
)

const pathVideoJobs = "/api/v1/videos/jobs"

var _ jobs.Fetcher = (*Client)(nil)

type VideoSubmission struct {
	ProductName        string
	ProductDescription string
	Tier               model.VideoTier
	Image              model.Attachment
}

// jobResponse accepts the progress and result fields under either of the
// names the service has used.
type jobResponse struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id"`
	Status       model.JobStatus `json:"status"`
	Progress     *int            `json:"progress"`
	ProgressPct  *int            `json:"progress_percent"`
	CurrentStep  string          `json:"current_step"`
	VideoURL     string          `json:"video_url"`
	ResultURL    string          `json:"result_url"`
	ErrorMessage string          `json:"error_message"`
	Error        string          `json:"error"`
}

func (r jobResponse) toJob() model.Job {
	job := model.Job{
		ID:           r.ID,
		Status:       r.Status,
		CurrentStep:  r.CurrentStep,
		ResultURL:    r.VideoURL,
		ErrorMessage: r.ErrorMessage,
		UpdatedAt:    time.Now(),
	}
	if job.ID == "" {
		job.ID = r.JobID
	}
	if job.ResultURL == "" {
		job.ResultURL = r.ResultURL
	}
	if job.ErrorMessage == "" {
		job.ErrorMessage = r.Error
	}
	switch {
	case r.Progress != nil:
		job.Progress = *r.Progress
	case r.ProgressPct != nil:
		job.Progress = *r.ProgressPct
	}
	return job
}

// SubmitVideo creates a remote video job. The job keeps running on the
// service regardless of what the caller does afterwards.
func (c *Client) SubmitVideo(ctx context.Context, sub VideoSubmission) (model.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Submit)
	defer cancel()

	fields := map[string]string{
		"product_name": sub.ProductName,
		"tier":         string(sub.Tier),
	}
	if sub.ProductDescription != "" {
		fields["product_description"] = sub.ProductDescription
	}

	filename := sub.Image.Filename
	if filename == "" {
		filename = "reference.png"
	}
	files := []formFile{{field: "image", filename: filepath.Base(filename), data: sub.Image.Data}}

	var resp jobResponse
	if err := c.postMultipart(ctx, pathVideoJobs, fields, files, &resp); err != nil {
		return model.Job{}, fmt.Errorf("submit video job: %w", err)
	}

	job := resp.toJob()
	if job.ID == "" {
		return model.Job{}, fmt.Errorf("submit video job: response has no job id")
	}
	if job.Status == "" {
		job.Status = model.JobPending
	}
	job.Normalize()
	return job, nil
}

func (c *Client) JobStatus(ctx context.Context, jobID string) (model.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Status)
	defer cancel()

	var resp jobResponse
	if err := c.get(ctx, pathVideoJobs+"/"+url.PathEscape(jobID), &resp); err != nil {
		return model.Job{}, fmt.Errorf("job status %s: %w", jobID, err)
	}
	return resp.toJob(), nil
}

type jobListResponse struct {
	Jobs []jobResponse `json:"jobs"`
}

// ListJobs returns recent video jobs, newest first as the service orders them.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]model.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Status)
	defer cancel()

	path := pathVideoJobs
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp jobListResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("list video jobs: %w", err)
	}

	out := make([]model.Job, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		out = append(out, j.toJob())
	}
	return out, nil
}

// Download copies a finished artifact (a video result URL) into w. Relative
// URLs resolve against the studio base URL.
func (c *Client) Download(ctx context.Context, resultURL string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Submit)
	defer cancel()

	target := resultURL
	if u, err := url.Parse(resultURL); err == nil && !u.IsAbs() {
		target = c.baseURL + "/" + strings.TrimLeft(resultURL, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.retry.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", resultURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", resultURL, err)
	}
	return n, nil
}
