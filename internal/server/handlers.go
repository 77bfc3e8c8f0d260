package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"contentdesk/internal/app"
	"contentdesk/internal/app/model"
	"contentdesk/internal/credits"
	"contentdesk/internal/draft"
)

const maxBodyBytes = 20 << 20

type referenceImage struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

type generationRequest struct {
	Topic              string            `json:"topic"`
	ContentType        model.ContentType `json:"contentType"`
	Platforms          []model.Platform  `json:"platforms"`
	ImageFormat        model.ImageFormat `json:"imageFormat"`
	ImageCount         int               `json:"imageCount"`
	VideoTier          model.VideoTier   `json:"videoTier"`
	Tone               string            `json:"tone"`
	UserContext        string            `json:"userContext"`
	ImageModel         string            `json:"imageModel"`
	ProductDescription string            `json:"productDescription"`
	ReferenceImage     *referenceImage   `json:"referenceImage"`
	Draft              *draft.Final      `json:"draft"`
}

func (g generationRequest) toModel() model.GenerationRequest {
	req := model.GenerationRequest{
		Topic:              g.Topic,
		ContentType:        g.ContentType,
		Platforms:          g.Platforms,
		ImageFormat:        g.ImageFormat,
		ImageCount:         g.ImageCount,
		VideoTier:          g.VideoTier,
		Tone:               g.Tone,
		UserContext:        g.UserContext,
		ImageModel:         g.ImageModel,
		ProductDescription: g.ProductDescription,
	}
	if g.ReferenceImage != nil {
		req.ReferenceImage = &model.Attachment{
			Filename:    g.ReferenceImage.Filename,
			ContentType: g.ReferenceImage.ContentType,
			Data:        g.ReferenceImage.Data,
		}
	}
	return req
}

type generationResponse struct {
	Result model.ResultSnapshot `json:"result"`
	Quote  int                  `json:"quote"`
	JobID  string               `json:"jobId,omitempty"`
	Error  string               `json:"error,omitempty"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	Shortfall int    `json:"shortfall,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createGeneration(w http.ResponseWriter, r *http.Request) {
	var body generationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "invalid payload"})
		return
	}
	req := body.toModel()

	ctx := r.Context()
	opts := app.GenerateOptions{Draft: body.Draft}
	if req.WantsVideo() {
		// the poll loop outlives the request
		ctx = context.WithoutCancel(ctx)
		opts.OnVideo = s.observe
	}

	gen, err := s.pipeline.Generate(ctx, req, opts)
	if gen == nil {
		s.failGeneration(w, err)
		return
	}
	s.remember(gen.Result)

	resp := generationResponse{Result: gen.Result.Snapshot(), Quote: gen.Quote}
	if err != nil {
		resp.Error = err.Error()
	}

	if gen.Token != nil {
		resp.JobID = gen.Token.JobID()
		s.track(resp.JobID, gen.Token)
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) failGeneration(w http.ResponseWriter, err error) {
	var (
		validation *model.ValidationError
		credit     *model.InsufficientCreditError
		stage      *model.StageFailure
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: validation.Message, Field: validation.Field})
	case errors.As(err, &credit):
		writeError(w, http.StatusPaymentRequired, errorBody{Code: "insufficient_credits", Message: credit.Error(), Shortfall: credit.Shortfall})
	case errors.As(err, &stage):
		writeError(w, http.StatusBadGateway, errorBody{Code: "stage_failed", Message: stage.Error()})
	default:
		slog.Error("generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "generation failed"})
	}
}

func (s *Server) getGeneration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, ok := s.result(id)
	if !ok {
		writeError(w, http.StatusNotFound, errorBody{Code: "not_found", Message: "generation not found"})
		return
	}
	writeJSON(w, http.StatusOK, result.Snapshot())
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	job, ok := s.jobs[id]
	_, watching := s.watches[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, errorBody{Code: "not_found", Message: "no status seen for job"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job, "watching": watching})
}

func (s *Server) watchJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	token := s.pipeline.Watch(context.WithoutCancel(r.Context()), id, s.observe)

	select {
	case <-token.Done():
		// terminal on the first read, or already seen finishing
		s.mu.Lock()
		job, ok := s.jobs[id]
		s.mu.Unlock()
		if !ok {
			if j, seen := s.service.Poller().Terminal(id); seen {
				job, ok = j, true
			}
		}
		if !ok {
			// the status read failed for good, usually an unknown job
			writeError(w, http.StatusNotFound, errorBody{Code: "not_found", Message: "job status unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobId": id, "watching": false, "job": job})
	default:
		s.track(id, token)
		writeJSON(w, http.StatusAccepted, map[string]any{"jobId": id, "watching": true})
	}
}

func (s *Server) unwatchJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	token, ok := s.watches[id]
	delete(s.watches, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, errorBody{Code: "not_found", Message: "job is not being watched"})
		return
	}
	token.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

type creditsResponse struct {
	Balance  int            `json:"balance"`
	Hydrated bool           `json:"hydrated"`
	Quote    *int           `json:"quote,omitempty"`
	Tiers    []credits.Tier `json:"tiers"`
}

func (s *Server) credits(w http.ResponseWriter, r *http.Request) {
	ledger := s.service.Ledger()
	if !ledger.Hydrated() {
		if _, err := ledger.Hydrate(r.Context()); err != nil {
			slog.Warn("credit balance unavailable", "error", err)
		}
	}

	resp := creditsResponse{
		Balance:  ledger.Balance(),
		Hydrated: ledger.Hydrated(),
		Tiers:    ledger.Pricing().TierList(),
	}

	q := r.URL.Query()
	if ct := q.Get("contentType"); ct != "" {
		req := model.GenerationRequest{
			ContentType: model.ContentType(ct),
			ImageFormat: model.ImageFormat(q.Get("imageFormat")),
			VideoTier:   model.VideoTier(q.Get("videoTier")),
		}
		if n := q.Get("imageCount"); n != "" {
			count, err := strconv.Atoi(n)
			if err != nil {
				writeError(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "imageCount must be a number", Field: "imageCount"})
				return
			}
			req.ImageCount = count
		}
		quote := s.pipeline.Quote(req, nil)
		resp.Quote = &quote
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, body errorBody) {
	writeJSON(w, code, map[string]errorBody{"error": body})
}
