package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"contentdesk/internal/credits"
	"contentdesk/internal/storage"
)

const markerKey = "state/analysis.json"

const (
	MarkerAnalyzing = "analyzing"
	MarkerRendering = "rendering_video"
)

// Marker records a generation that was in progress when the process last
// wrote it. A shortform run keeps its marker until the job is terminal.
type Marker struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	ResultID  string    `json:"result_id"`
	JobID     string    `json:"job_id,omitempty"`
	Cost      int       `json:"cost,omitempty"`
}

// State is the process-wide mutable state: the credit ledger and the
// in-progress marker. Hydrate it once at start-up.
type State struct {
	mu     sync.Mutex
	store  storage.Store
	ledger *credits.Ledger
	marker *Marker
}

func NewState(store storage.Store, ledger *credits.Ledger) *State {
	return &State{store: store, ledger: ledger}
}

func (s *State) Ledger() *credits.Ledger {
	return s.ledger
}

// Hydrate restores the marker and reads the remote balance. A balance that
// cannot be read is logged; paid requests will retry the read.
func (s *State) Hydrate(ctx context.Context) error {
	data, err := s.store.Read(ctx, markerKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("read marker: %w", err)
	default:
		var m Marker
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn("discarding unreadable marker", "error", err)
		} else {
			s.mu.Lock()
			s.marker = &m
			s.mu.Unlock()
			slog.Info("restored in-progress marker", "status", m.Status, "result_id", m.ResultID, "job_id", m.JobID)
		}
	}

	if _, err := s.ledger.Hydrate(ctx); err != nil {
		slog.Warn("credit balance unavailable", "error", err)
	}
	return nil
}

func (s *State) Marker() (Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marker == nil {
		return Marker{}, false
	}
	return *s.marker, true
}

func (s *State) Begin(ctx context.Context, resultID string, cost int) error {
	return s.write(ctx, Marker{
		Status:    MarkerAnalyzing,
		StartedAt: time.Now().UTC(),
		ResultID:  resultID,
		Cost:      cost,
	})
}

// AttachJob moves the marker for resultID to the video phase.
func (s *State) AttachJob(ctx context.Context, resultID, jobID string) error {
	m, ok := s.Marker()
	if !ok || m.ResultID != resultID {
		m = Marker{StartedAt: time.Now().UTC(), ResultID: resultID}
	}
	m.Status = MarkerRendering
	m.JobID = jobID
	return s.write(ctx, m)
}

// Finish clears the marker if it still belongs to resultID.
func (s *State) Finish(ctx context.Context, resultID string) error {
	s.mu.Lock()
	owned := s.marker != nil && s.marker.ResultID == resultID
	s.mu.Unlock()
	if !owned {
		return nil
	}
	return s.Clear(ctx)
}

func (s *State) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.marker = nil
	s.mu.Unlock()

	if err := s.store.Delete(ctx, markerKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("clear marker: %w", err)
	}
	return nil
}

func (s *State) write(ctx context.Context, m Marker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	if err := s.store.Write(ctx, markerKey, data); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	s.mu.Lock()
	s.marker = &m
	s.mu.Unlock()
	return nil
}
