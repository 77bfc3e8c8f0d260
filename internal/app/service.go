package app

import (
	"context"
	"io"
	"sync"

	"contentdesk/internal/app/model"
	"contentdesk/internal/credits"
	"contentdesk/internal/distribution"
	"contentdesk/internal/draft"
	"contentdesk/internal/jobs"
	"contentdesk/internal/llm"
	"contentdesk/internal/studio"
	"contentdesk/pkg/config"
	"contentdesk/pkg/prompts"
)

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, imageModel string) (string, error)
}

type CardRenderer interface {
	Render(ctx context.Context, final *draft.Final) ([]string, error)
}

type VideoSubmitter interface {
	SubmitVideo(ctx context.Context, sub studio.VideoSubmission) (model.Job, error)
}

type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

type Service struct {
	cfg        *config.Config
	prompts    *prompts.Prompts
	text       llm.TextGenerator
	images     ImageGenerator
	renderer   CardRenderer
	previewer  draft.Previewer
	videos     VideoSubmitter
	downloader Downloader
	poller     *jobs.Poller
	persister  *Persister
	state      *State
	publisher  distribution.Uploader
	closers    []io.Closer

	ownersMu sync.Mutex
	owners   map[string]jobs.Observer
}

type ServiceOptions struct {
	Config     *config.Config
	Prompts    *prompts.Prompts
	Text       llm.TextGenerator
	Images     ImageGenerator
	Renderer   CardRenderer
	Previewer  draft.Previewer
	Videos     VideoSubmitter
	Downloader Downloader
	Poller     *jobs.Poller
	Persister  *Persister
	State      *State
	Publisher  distribution.Uploader
	Closers    []io.Closer
}

func NewService(opts ServiceOptions) *Service {
	return &Service{
		cfg:        opts.Config,
		prompts:    opts.Prompts,
		text:       opts.Text,
		images:     opts.Images,
		renderer:   opts.Renderer,
		previewer:  opts.Previewer,
		videos:     opts.Videos,
		downloader: opts.Downloader,
		poller:     opts.Poller,
		persister:  opts.Persister,
		state:      opts.State,
		publisher:  opts.Publisher,
		closers:    opts.Closers,
		owners:     make(map[string]jobs.Observer),
	}
}

func (s *Service) Config() *config.Config { return s.cfg }
func (s *Service) Prompts() *prompts.Prompts { return s.prompts }
func (s *Service) Text() llm.TextGenerator { return s.text }
func (s *Service) Images() ImageGenerator { return s.images }
func (s *Service) Renderer() CardRenderer { return s.renderer }
func (s *Service) Videos() VideoSubmitter { return s.videos }
func (s *Service) Downloader() Downloader { return s.downloader }
func (s *Service) Poller() *jobs.Poller { return s.poller }
func (s *Service) Persister() *Persister { return s.persister }
func (s *Service) State() *State { return s.state }
func (s *Service) Publisher() distribution.Uploader { return s.publisher }

func (s *Service) Ledger() *credits.Ledger {
	if s.state == nil {
		return nil
	}
	return s.state.Ledger()
}

// NewEditor starts a card-news draft session using the configured defaults.
func (s *Service) NewEditor() *draft.Editor {
	opts := draft.Options{Previewer: s.previewer}
	if s.cfg != nil {
		opts.AspectRatio = s.cfg.Draft.AspectRatio
		opts.DesignTemplate = s.cfg.Draft.DesignTemplate
	}
	return draft.NewEditor(opts)
}

// Reconcile retries queued debits and session saves.
func (s *Service) Reconcile(ctx context.Context) (debits, sessions int, err error) {
	debits, debitErr := s.Ledger().Reconcile(ctx)
	sessions, sessionErr := s.persister.Reconcile(ctx)
	if debitErr != nil {
		return debits, sessions, debitErr
	}
	return debits, sessions, sessionErr
}

// adoptVideo records the observer of the generation that submitted jobID so
// a later re-attach keeps updating and billing that generation.
func (s *Service) adoptVideo(jobID string, observer jobs.Observer) {
	s.ownersMu.Lock()
	defer s.ownersMu.Unlock()
	s.owners[jobID] = observer
}

func (s *Service) videoOwner(jobID string) (jobs.Observer, bool) {
	s.ownersMu.Lock()
	defer s.ownersMu.Unlock()
	observer, ok := s.owners[jobID]
	return observer, ok
}

func (s *Service) releaseVideo(jobID string) {
	s.ownersMu.Lock()
	defer s.ownersMu.Unlock()
	delete(s.owners, jobID)
}

// Close stops local polling and releases clients. Remote jobs keep running.
func (s *Service) Close() error {
	if s.poller != nil {
		s.poller.Close()
	}
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
