package model

import (
	"errors"
	"fmt"
)

// ErrTransient marks collaborator transport failures: timeouts, refused
// connections and 5xx responses.
var ErrTransient = errors.New("transient network error")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type InsufficientCreditError struct {
	Balance   int
	Cost      int
	Shortfall int
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d (short %d)", e.Cost, e.Balance, e.Shortfall)
}

type Stage string

const (
	StageText     Stage = "text"
	StageImage    Stage = "image"
	StageCardNews Stage = "cardnews"
	StageVideo    Stage = "video"
)

// StageFailure is a one-shot stage call that failed after a single attempt.
type StageFailure struct {
	Stage Stage
	Err   error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

type RemoteJobFailure struct {
	JobID   string
	Message string
}

func (e *RemoteJobFailure) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

type PersistenceFailure struct {
	ResultID string
	Err      error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("save session %s: %v", e.ResultID, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

type PartialBatchFailure struct {
	Requested int
	Succeeded int
	Errors    []error
}

func (e *PartialBatchFailure) Error() string {
	return fmt.Sprintf("%d of %d images generated", e.Succeeded, e.Requested)
}

func (e *PartialBatchFailure) Unwrap() []error { return e.Errors }
