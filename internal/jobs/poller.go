package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"contentdesk/internal/app/model"
)

const (
	DefaultInterval       = 3 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Fetcher reads the current projection of a remote job.
type Fetcher interface {
	JobStatus(ctx context.Context, jobID string) (model.Job, error)
}

type EventKind int

const (
	EventProgress EventKind = iota
	EventCompleted
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "progress"
	}
}

type Event struct {
	Kind EventKind
	Job  model.Job
}

func (e Event) Terminal() bool {
	return e.Kind != EventProgress
}

type Observer func(Event)

type Options struct {
	Fetcher        Fetcher
	Interval       time.Duration
	RequestTimeout time.Duration
}

// Poller drives remote jobs to a terminal state. At most one loop polls a
// given job id; starting another cancels the previous one, and a cancelled
// loop never emits a terminal event.
type Poller struct {
	fetcher        Fetcher
	interval       time.Duration
	requestTimeout time.Duration

	mu       sync.Mutex
	loops    map[string]*loop
	terminal map[string]model.Job
}

type loop struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	last   model.Job
}

func NewPoller(opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	return &Poller{
		fetcher:        opts.Fetcher,
		interval:       opts.Interval,
		requestTimeout: opts.RequestTimeout,
		loops:          make(map[string]*loop),
		terminal:       make(map[string]model.Job),
	}
}

// Track polls jobID immediately and then on every interval until the job is
// terminal or the returned token is cancelled.
func (p *Poller) Track(ctx context.Context, jobID string, observer Observer) *CancelToken {
	if job, ok := p.Terminal(jobID); ok {
		slog.Debug("job already terminal, not polling", "job_id", jobID, "status", job.Status)
		return closedToken(jobID)
	}

	l, loopCtx := p.register(ctx, jobID)
	go p.run(loopCtx, l, observer, false)
	return &CancelToken{id: jobID, cancel: l.cancel, done: l.done}
}

// Reattach subscribes to a job that may already be in flight. It reads the
// current status once; a terminal job emits its final event and no loop is
// started, otherwise polling resumes one interval later.
func (p *Poller) Reattach(ctx context.Context, jobID string, observer Observer) *CancelToken {
	if job, ok := p.Terminal(jobID); ok {
		slog.Debug("job already terminal, not polling", "job_id", jobID, "status", job.Status)
		return closedToken(jobID)
	}

	job, err := p.fetch(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil || !retryable(err) {
			slog.Error("re-attach status fetch failed, not polling", "job_id", jobID, "error", err)
			return closedToken(jobID)
		}
		slog.Warn("re-attach status fetch failed, resuming polling", "job_id", jobID, "error", err)
	}

	l, loopCtx := p.register(ctx, jobID)

	if err == nil {
		if p.deliver(l, job, observer) {
			l.cancel()
			close(l.done)
			p.release(l)
			return &CancelToken{id: jobID, cancel: l.cancel, done: l.done}
		}
	}

	go p.run(loopCtx, l, observer, true)
	return &CancelToken{id: jobID, cancel: l.cancel, done: l.done}
}

// Terminal returns the final projection of a job this poller saw finish.
func (p *Poller) Terminal(jobID string) (model.Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.terminal[jobID]
	return job, ok
}

func (p *Poller) Active(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.loops[jobID]
	return ok
}

// Close cancels every running loop. Remote jobs are left untouched.
func (p *Poller) Close() {
	p.mu.Lock()
	loops := make([]*loop, 0, len(p.loops))
	for _, l := range p.loops {
		loops = append(loops, l)
	}
	p.mu.Unlock()

	for _, l := range loops {
		l.cancel()
		<-l.done
	}
}

func (p *Poller) register(ctx context.Context, jobID string) (*loop, context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	l := &loop{
		id:     jobID,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	prev := p.loops[jobID]
	p.loops[jobID] = l
	p.mu.Unlock()

	if prev != nil {
		slog.Debug("superseding existing poll loop", "job_id", jobID)
		prev.cancel()
	}
	return l, loopCtx
}

func (p *Poller) release(l *loop) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loops[l.id] == l {
		delete(p.loops, l.id)
	}
}

func (p *Poller) run(ctx context.Context, l *loop, observer Observer, delayFirst bool) {
	defer close(l.done)
	defer p.release(l)

	if !delayFirst && p.poll(ctx, l, observer) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("poll loop stopped", "job_id", l.id, "reason", ctx.Err())
			return
		case <-ticker.C:
			if p.poll(ctx, l, observer) {
				return
			}
		}
	}
}

// poll performs one fetch and reports whether the loop should stop.
// Only transport failures are retried; any other error ends the loop
// without a terminal event.
func (p *Poller) poll(ctx context.Context, l *loop, observer Observer) bool {
	job, err := p.fetch(ctx, l.id)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		if !retryable(err) {
			slog.Error("job status poll failed, giving up", "job_id", l.id, "error", err)
			return true
		}
		slog.Warn("job status poll failed, retrying", "job_id", l.id, "error", err)
		return false
	}
	return p.deliver(l, job, observer)
}

func retryable(err error) bool {
	return errors.Is(err, model.ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

func (p *Poller) fetch(ctx context.Context, jobID string) (model.Job, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	job, err := p.fetcher.JobStatus(reqCtx, jobID)
	if err != nil {
		return model.Job{}, err
	}
	if job.ID == "" {
		job.ID = jobID
	}
	job.Normalize()
	return job, nil
}

// deliver applies a poll response to the loop state and notifies the
// observer. It returns true once the loop must stop.
func (p *Poller) deliver(l *loop, job model.Job, observer Observer) bool {
	if !job.Status.Known() {
		slog.Warn("ignoring unknown job status", "job_id", l.id, "status", job.Status)
		return false
	}
	if l.last.Status != "" && job.Status.Rank() < l.last.Status.Rank() {
		slog.Debug("ignoring status regression", "job_id", l.id, "from", l.last.Status, "to", job.Status)
		return false
	}

	if job.Status.IsTerminal() {
		p.mu.Lock()
		if p.loops[l.id] != l {
			p.mu.Unlock()
			return true
		}
		if _, seen := p.terminal[l.id]; seen {
			p.mu.Unlock()
			return true
		}
		p.terminal[l.id] = job
		p.mu.Unlock()

		l.last = job
		kind := EventCompleted
		if job.Status == model.JobFailed {
			kind = EventFailed
		}
		slog.Info("job finished", "job_id", l.id, "status", job.Status)
		if observer != nil {
			observer(Event{Kind: kind, Job: job})
		}
		return true
	}

	if job.Progress < l.last.Progress && job.Status == l.last.Status {
		job.Progress = l.last.Progress
	}
	changed := job.Status != l.last.Status || job.Progress != l.last.Progress || job.CurrentStep != l.last.CurrentStep
	l.last = job

	if !changed || observer == nil {
		return false
	}

	p.mu.Lock()
	current := p.loops[l.id] == l
	p.mu.Unlock()
	if !current {
		return true
	}
	observer(Event{Kind: EventProgress, Job: job})
	return false
}

// CancelToken is the only handle that stops a poll loop.
type CancelToken struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

func closedToken(jobID string) *CancelToken {
	done := make(chan struct{})
	close(done)
	return &CancelToken{id: jobID, cancel: func() {}, done: done}
}

func (t *CancelToken) JobID() string { return t.id }

// Cancel stops local polling. The remote job keeps running.
func (t *CancelToken) Cancel() {
	t.cancel()
}

func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the loop exits or ctx ends.
func (t *CancelToken) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
