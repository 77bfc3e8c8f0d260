package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"contentdesk/internal/app/model"
	"contentdesk/internal/queue"
	"contentdesk/internal/storage"
)

const (
	pendingSessionsFile = "pending_sessions.json"
	sessionsPrefix      = "sessions/"
)

// SessionSaver is the remote session store.
type SessionSaver interface {
	SaveSession(ctx context.Context, record model.SessionRecord) error
}

type PendingSession struct {
	Record    model.SessionRecord `json:"record"`
	QueuedAt  time.Time           `json:"queued_at"`
	LastError string              `json:"last_error,omitempty"`
}

type PersisterOptions struct {
	Saver   SessionSaver
	Archive storage.Store
	DataDir string
}

// Persister saves each generation result at most once. A failed save leaves
// the result unsaved and queues it for Reconcile.
type Persister struct {
	mu       sync.Mutex
	saved    map[string]bool
	inflight map[string]bool

	saver   SessionSaver
	archive storage.Store
	pending *queue.Persistent[PendingSession]
}

func NewPersister(opts PersisterOptions) (*Persister, error) {
	pending, err := queue.NewPersistent[PendingSession](opts.DataDir, pendingSessionsFile, 0)
	if err != nil {
		return nil, fmt.Errorf("open pending sessions: %w", err)
	}

	return &Persister{
		saved:    make(map[string]bool),
		inflight: make(map[string]bool),
		saver:    opts.Saver,
		archive:  opts.Archive,
		pending:  pending,
	}, nil
}

func (p *Persister) Saved(resultID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved[resultID]
}

// Save stores the session record for r. Calling it again for a result that
// was saved, or is being saved, does nothing. The returned
// *model.PersistenceFailure is informational; the result stays usable.
func (p *Persister) Save(ctx context.Context, r *model.GenerationResult) error {
	p.mu.Lock()
	if p.saved[r.ID] || p.inflight[r.ID] {
		p.mu.Unlock()
		slog.Debug("session already saved", "result_id", r.ID)
		return nil
	}
	p.inflight[r.ID] = true
	p.mu.Unlock()

	record := model.NewSessionRecord(r)
	err := p.saver.SaveSession(ctx, record)

	p.mu.Lock()
	delete(p.inflight, r.ID)
	if err == nil {
		p.saved[r.ID] = true
	}
	p.mu.Unlock()

	if err != nil {
		slog.Warn("session save failed, queued for retry", "result_id", r.ID, "error", err)
		p.enqueue(record, err)
		return &model.PersistenceFailure{ResultID: r.ID, Err: err}
	}

	if _, qerr := p.pending.FindAndRemove(func(ps PendingSession) bool { return ps.Record.ResultID == r.ID }); qerr != nil {
		slog.Warn("failed to update pending sessions", "error", qerr)
	}
	p.mirror(ctx, record)
	slog.Info("session saved", "result_id", r.ID)
	return nil
}

// Refresh rewrites the archived record of a result that changed after its
// save, such as a video job reaching a terminal state. A result still waiting
// in the retry queue has its queued record replaced instead. The remote
// session is not saved again.
func (p *Persister) Refresh(ctx context.Context, r *model.GenerationResult) {
	record := model.NewSessionRecord(r)
	if p.Saved(r.ID) {
		p.mirror(ctx, record)
		return
	}

	queued, err := p.pending.FindAndRemove(func(ps PendingSession) bool { return ps.Record.ResultID == r.ID })
	if err != nil {
		slog.Warn("failed to update pending sessions", "error", err)
	}
	if queued == nil {
		return
	}
	queued.Record = record
	if err := p.pending.Add(*queued); err != nil {
		slog.Error("failed to queue session", "result_id", r.ID, "error", err)
	}
}

func (p *Persister) PendingSessions() []PendingSession {
	return p.pending.List()
}

// Reconcile retries queued saves and returns how many succeeded.
func (p *Persister) Reconcile(ctx context.Context) (int, error) {
	if p.pending.Len() == 0 {
		return 0, nil
	}

	var stored []model.SessionRecord
	done, err := p.pending.Drain(func(ps PendingSession) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.Saved(ps.Record.ResultID) {
			return nil
		}
		if err := p.saver.SaveSession(ctx, ps.Record); err != nil {
			return err
		}
		p.mu.Lock()
		p.saved[ps.Record.ResultID] = true
		p.mu.Unlock()
		stored = append(stored, ps.Record)
		return nil
	})

	for _, record := range stored {
		p.mirror(ctx, record)
	}
	if done > 0 {
		slog.Info("reconciled pending sessions", "count", done, "remaining", p.pending.Len())
	}
	if err != nil {
		return done, fmt.Errorf("reconcile sessions: %w", err)
	}
	return done, nil
}

// History returns archived sessions, newest first.
func (p *Persister) History(ctx context.Context) ([]model.SessionRecord, error) {
	if p.archive == nil {
		return nil, nil
	}

	keys, err := p.archive.List(ctx, sessionsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	records := make([]model.SessionRecord, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		data, err := p.archive.Read(ctx, key)
		if err != nil {
			slog.Warn("skipping unreadable session", "key", key, "error", err)
			continue
		}
		var record model.SessionRecord
		if err := json.Unmarshal(data, &record); err != nil {
			slog.Warn("skipping malformed session", "key", key, "error", err)
			continue
		}
		records = append(records, record)
	}

	slices.SortFunc(records, func(a, b model.SessionRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return records, nil
}

func (p *Persister) enqueue(record model.SessionRecord, cause error) {
	if _, err := p.pending.FindAndRemove(func(ps PendingSession) bool { return ps.Record.ResultID == record.ResultID }); err != nil {
		slog.Warn("failed to update pending sessions", "error", err)
	}
	if err := p.pending.Add(PendingSession{Record: record, QueuedAt: time.Now(), LastError: cause.Error()}); err != nil {
		slog.Error("failed to queue session", "result_id", record.ResultID, "error", err)
	}
}

func (p *Persister) mirror(ctx context.Context, record model.SessionRecord) {
	if p.archive == nil {
		return
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		slog.Warn("failed to encode session", "result_id", record.ResultID, "error", err)
		return
	}
	if err := p.archive.Write(ctx, sessionsPrefix+record.ResultID+".json", data); err != nil {
		slog.Warn("failed to archive session", "result_id", record.ResultID, "error", err)
	}
}
