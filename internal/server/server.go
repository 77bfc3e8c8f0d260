package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"contentdesk/internal/app"
	"contentdesk/internal/app/model"
	"contentdesk/internal/jobs"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	AllowedOrigins []string
}

// Server exposes the pipeline over HTTP. Results and watch tokens live in
// memory for the life of the process.
type Server struct {
	service  *app.Service
	pipeline *app.Pipeline
	handler  http.Handler

	mu      sync.Mutex
	results map[string]*model.GenerationResult
	watches map[string]*jobs.CancelToken
	jobs    map[string]model.Job
}

func New(service *app.Service, opts Options) *Server {
	s := &Server{
		service:  service,
		pipeline: app.NewPipeline(service),
		results:  make(map[string]*model.GenerationResult),
		watches:  make(map[string]*jobs.CancelToken),
		jobs:     make(map[string]model.Job),
	}
	s.handler = s.routes(opts)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestLogger)

	r.Get("/v1/healthz", s.health)

	r.Route("/v1/generations", func(r chi.Router) {
		r.Post("/", s.createGeneration)
		r.Get("/{id}", s.getGeneration)
	})

	r.Route("/v1/jobs/{id}", func(r chi.Router) {
		r.Get("/", s.getJob)
		r.Post("/watch", s.watchJob)
		r.Delete("/watch", s.unwatchJob)
	})

	r.Get("/v1/credits", s.credits)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
// Local poll loops are stopped on the way out; remote jobs keep running.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.cancelWatches()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) remember(r *model.GenerationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.ID] = r
}

func (s *Server) result(id string) (*model.GenerationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	return r, ok
}

func (s *Server) track(jobID string, token *jobs.CancelToken) {
	s.mu.Lock()
	prev := s.watches[jobID]
	s.watches[jobID] = token
	s.mu.Unlock()
	if prev != nil && prev != token {
		prev.Cancel()
	}

	go func() {
		<-token.Done()
		s.mu.Lock()
		if s.watches[jobID] == token {
			delete(s.watches, jobID)
		}
		s.mu.Unlock()
	}()
}

func (s *Server) observe(ev jobs.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[ev.Job.ID] = ev.Job
}

func (s *Server) cancelWatches() {
	s.mu.Lock()
	tokens := make([]*jobs.CancelToken, 0, len(s.watches))
	for _, t := range s.watches {
		tokens = append(tokens, t)
	}
	s.mu.Unlock()

	for _, t := range tokens {
		t.Cancel()
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
