package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"contentdesk/internal/app"
	"contentdesk/internal/app/model"
	"contentdesk/internal/credits"
	"contentdesk/internal/jobs"
	"contentdesk/internal/llm"
	"contentdesk/internal/storage"
	"contentdesk/internal/studio"
	"contentdesk/pkg/config"
	"contentdesk/pkg/prompts"
)

type fakeStudio struct {
	mu      sync.Mutex
	balance int
	used    []int
	saved   int
	jobs    map[string][]model.Job
}

func (f *fakeStudio) GenerateText(_ context.Context, req llm.TextRequest) (*model.TextBundle, error) {
	bundle := &model.TextBundle{Platforms: make(map[model.Platform]model.PlatformText)}
	for _, p := range req.Platforms {
		bundle.Platforms[p] = model.PlatformText{Content: "copy"}
	}
	return bundle, nil
}

func (f *fakeStudio) GenerateImage(_ context.Context, _, _ string) (string, error) {
	return "https://cdn.example.com/img.png", nil
}

func (f *fakeStudio) SubmitVideo(_ context.Context, _ studio.VideoSubmission) (model.Job, error) {
	return model.Job{ID: "job-1", Status: model.JobPending}, nil
}

func (f *fakeStudio) JobStatus(_ context.Context, jobID string) (model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	script := f.jobs[jobID]
	if len(script) == 0 {
		return model.Job{}, errors.New("not found")
	}
	job := script[0]
	if len(script) > 1 {
		f.jobs[jobID] = script[1:]
	}
	return job, nil
}

func (f *fakeStudio) Balance(_ context.Context) (int, error) {
	return f.balance, nil
}

func (f *fakeStudio) Use(_ context.Context, usage credits.UsageRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used = append(f.used, usage.Amount)
	return nil
}

func (f *fakeStudio) SaveSession(_ context.Context, _ model.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	return nil
}

func newTestServer(t *testing.T, balance int) (*httptest.Server, *fakeStudio) {
	t.Helper()

	fake := &fakeStudio{balance: balance, jobs: make(map[string][]model.Job)}
	dataDir := t.TempDir()

	p, err := prompts.Default()
	if err != nil {
		t.Fatalf("prompts.Default() error: %v", err)
	}
	ledger, err := credits.NewLedger(credits.LedgerOptions{Biller: fake, DataDir: dataDir})
	if err != nil {
		t.Fatalf("NewLedger() error: %v", err)
	}
	store := storage.NewLocalStorage(t.TempDir())
	persister, err := app.NewPersister(app.PersisterOptions{Saver: fake, Archive: store, DataDir: dataDir})
	if err != nil {
		t.Fatalf("NewPersister() error: %v", err)
	}

	svc := app.NewService(app.ServiceOptions{
		Config:    &config.Config{},
		Prompts:   p,
		Text:      fake,
		Images:    fake,
		Videos:    fake,
		Poller:    jobs.NewPoller(jobs.Options{Fetcher: fake, Interval: time.Millisecond, RequestTimeout: time.Second}),
		Persister: persister,
		State:     app.NewState(store, ledger),
	})
	t.Cleanup(func() { _ = svc.Close() })

	server := httptest.NewServer(New(svc, Options{}).Handler())
	t.Cleanup(server.Close)
	return server, fake
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, 0)

	resp, err := http.Get(server.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCreateGeneration(t *testing.T) {
	tests := []struct {
		name       string
		balance    int
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "textOnly",
			body:       map[string]any{"topic": "menu", "contentType": "text", "platforms": []string{"blog"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "images",
			balance:    10,
			body:       map[string]any{"topic": "menu", "contentType": "image", "imageCount": 2},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missingTopic",
			body:       map[string]any{"contentType": "text", "platforms": []string{"blog"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "insufficientCredits",
			balance:    1,
			body:       map[string]any{"topic": "menu", "contentType": "image", "imageCount": 3},
			wantStatus: http.StatusPaymentRequired,
			wantCode:   "insufficient_credits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, tt.balance)

			resp := postJSON(t, server.URL+"/v1/generations", tt.body)
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantCode != "" {
				var body struct {
					Error errorBody `json:"error"`
				}
				_ = json.NewDecoder(resp.Body).Decode(&body)
				if body.Error.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", body.Error.Code, tt.wantCode)
				}
				return
			}

			var out generationResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatalf("decode: %v", err)
			}

			got, err := http.Get(server.URL + "/v1/generations/" + out.Result.ID)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer got.Body.Close()
			if got.StatusCode != http.StatusOK {
				t.Errorf("GET status = %d, want 200", got.StatusCode)
			}
		})
	}
}

func TestCreateShortformReturnsAccepted(t *testing.T) {
	server, fake := newTestServer(t, 50)
	fake.jobs["job-1"] = []model.Job{
		{ID: "job-1", Status: model.JobComposing},
		{ID: "job-1", Status: model.JobCompleted, ResultURL: "https://cdn.example.com/v.mp4"},
	}

	resp := postJSON(t, server.URL+"/v1/generations", map[string]any{
		"topic":          "cold brew",
		"contentType":    "shortform",
		"videoTier":      "short",
		"referenceImage": map[string]any{"filename": "ref.png", "contentType": "image/png", "data": []byte{1, 2, 3}},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var out generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.JobID != "job-1" {
		t.Errorf("JobID = %q, want job-1", out.JobID)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fake.mu.Lock()
		used := len(fake.used)
		fake.mu.Unlock()
		if used > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.used) != 1 || fake.used[0] != 10 {
		t.Errorf("debits = %v, want [10]", fake.used)
	}
	if fake.saved != 1 {
		t.Errorf("sessions saved = %d, want 1", fake.saved)
	}
}

func TestGetGenerationNotFound(t *testing.T) {
	server, _ := newTestServer(t, 0)

	resp, err := http.Get(server.URL + "/v1/generations/missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestWatchJob(t *testing.T) {
	server, fake := newTestServer(t, 0)

	t.Run("terminalOnFirstRead", func(t *testing.T) {
		fake.jobs["done"] = []model.Job{{ID: "done", Status: model.JobFailed, ErrorMessage: "boom"}}

		resp := postJSON(t, server.URL+"/v1/jobs/done/watch", nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body struct {
			Watching bool      `json:"watching"`
			Job      model.Job `json:"job"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Watching || body.Job.Status != model.JobFailed {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("unknownJob", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/v1/jobs/bogus/watch", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("cancelRunning", func(t *testing.T) {
		fake.jobs["slow"] = []model.Job{{ID: "slow", Status: model.JobGeneratingImages}}

		resp := postJSON(t, server.URL+"/v1/jobs/slow/watch", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", resp.StatusCode)
		}

		req, _ := http.NewRequest(http.MethodDelete, server.URL+"/v1/jobs/slow/watch", nil)
		del, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE: %v", err)
		}
		del.Body.Close()
		if del.StatusCode != http.StatusNoContent {
			t.Errorf("DELETE status = %d, want 204", del.StatusCode)
		}

		again, _ := http.DefaultClient.Do(req)
		again.Body.Close()
		if again.StatusCode != http.StatusNotFound {
			t.Errorf("second DELETE status = %d, want 404", again.StatusCode)
		}
	})
}

func TestCredits(t *testing.T) {
	server, _ := newTestServer(t, 42)

	tests := []struct {
		name      string
		query     string
		wantQuote *int
		status    int
	}{
		{name: "balanceOnly", query: "", status: http.StatusOK},
		{name: "imageQuote", query: "?contentType=image&imageCount=4", wantQuote: ptr(8), status: http.StatusOK},
		{name: "tierQuote", query: "?contentType=shortform&videoTier=premium", wantQuote: ptr(40), status: http.StatusOK},
		{name: "textIsFree", query: "?contentType=text", wantQuote: ptr(0), status: http.StatusOK},
		{name: "badCount", query: "?contentType=image&imageCount=many", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + "/v1/credits" + tt.query)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}

			var body creditsResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Balance != 42 || !body.Hydrated {
				t.Errorf("balance = %d hydrated = %v", body.Balance, body.Hydrated)
			}
			if len(body.Tiers) != 3 {
				t.Errorf("len(Tiers) = %d, want 3", len(body.Tiers))
			}
			switch {
			case tt.wantQuote == nil && body.Quote != nil:
				t.Errorf("Quote = %d, want none", *body.Quote)
			case tt.wantQuote != nil && (body.Quote == nil || *body.Quote != *tt.wantQuote):
				t.Errorf("Quote = %v, want %d", body.Quote, *tt.wantQuote)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	server, _ := newTestServer(t, 0)

	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/v1/generations", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}

func ptr(n int) *int { return &n }
