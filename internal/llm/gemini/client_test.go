package gemini

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"contentdesk/internal/app/model"
)

func TestAgenticSchema(t *testing.T) {
	schema := agenticSchema([]model.Platform{model.PlatformBlog, model.PlatformX})

	if !slices.Equal(schema.Required, []string{"blog", "x"}) {
		t.Errorf("Required = %v", schema.Required)
	}
	if _, ok := schema.Properties["blog"].Properties["title"]; !ok {
		t.Error("blog schema should carry a title")
	}
	if _, ok := schema.Properties["x"].Properties["title"]; ok {
		t.Error("x schema should not carry a title")
	}
	if _, ok := schema.Properties["sns"]; ok {
		t.Error("unrequested platform in schema")
	}
}

func TestUsageCounter(t *testing.T) {
	day := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "usage")

	tests := []struct {
		name    string
		seed    string
		limit   int
		wantErr bool
	}{
		{name: "noFile", limit: 2},
		{name: "underLimit", seed: "2026-03-02:1", limit: 2},
		{name: "atLimit", seed: "2026-03-02:2", limit: 2, wantErr: true},
		{name: "yesterdayResets", seed: "2026-03-01:99", limit: 2},
		{name: "garbage", seed: "nonsense", limit: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = os.Remove(path)
			if tt.seed != "" {
				if err := os.WriteFile(path, []byte(tt.seed), 0644); err != nil {
					t.Fatal(err)
				}
			}
			u := &usageCounter{path: path, limit: tt.limit, now: func() time.Time { return day }}
			if err := u.check(); (err != nil) != tt.wantErr {
				t.Errorf("check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	_ = os.WriteFile(path, []byte("2026-03-01:40"), 0644)
	u := &usageCounter{path: path, limit: 5, now: func() time.Time { return day }}
	u.increment()
	data, _ := os.ReadFile(path)
	if string(data) != "2026-03-02:1" {
		t.Errorf("after increment = %q, want counter reset for the new day", data)
	}
}
