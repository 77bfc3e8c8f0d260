package model

import "time"

type JobStatus string

const (
	JobPending          JobStatus = "pending"
	JobPlanning         JobStatus = "planning"
	JobGeneratingImages JobStatus = "generating_images"
	JobGeneratingVideos JobStatus = "generating_videos"
	JobComposing        JobStatus = "composing"
	JobCompleted        JobStatus = "completed"
	JobFailed           JobStatus = "failed"
)

var statusRank = map[JobStatus]int{
	JobPending:          0,
	JobPlanning:         1,
	JobGeneratingImages: 2,
	JobGeneratingVideos: 3,
	JobComposing:        4,
	JobCompleted:        5,
	JobFailed:           5,
}

var statusProgress = map[JobStatus]int{
	JobPending:          10,
	JobPlanning:         15,
	JobGeneratingImages: 40,
	JobGeneratingVideos: 70,
	JobComposing:        92,
	JobCompleted:        100,
}

// Rank orders statuses along the forward chain. Unknown statuses rank -1.
func (s JobStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

func (s JobStatus) Known() bool {
	_, ok := statusRank[s]
	return ok
}

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// FallbackProgress is used only when a poll response carries no percentage.
// A failed job never maps to 100.
func (s JobStatus) FallbackProgress() int {
	return statusProgress[s]
}

type Job struct {
	ID           string    `json:"id"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	CurrentStep  string    `json:"current_step,omitempty"`
	ResultURL    string    `json:"result_url,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Normalize clamps progress and fills it from the status when absent.
func (j *Job) Normalize() {
	if j.Progress <= 0 {
		j.Progress = j.Status.FallbackProgress()
	}
	if j.Progress > 100 {
		j.Progress = 100
	}
	if j.Status == JobFailed && j.Progress >= 100 {
		j.Progress = 99
	}
}
