package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFallsBackToBuiltIn(t *testing.T) {
	originalWd, _ := os.Getwd()
	defer func() { _ = os.Chdir(originalWd) }()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	p, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.System.Agentic == "" || p.Agentic.Generate == "" || p.Image.Generate == "" {
		t.Errorf("built-in prompts incomplete: %+v", p)
	}
}

func TestLoadFromOverridesOnlyGivenKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := `
system:
  agentic: "Custom agentic system"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if p.System.Agentic != "Custom agentic system" {
		t.Errorf("System.Agentic = %q", p.System.Agentic)
	}
	if p.Agentic.Generate == "" {
		t.Error("unspecified prompts should keep built-in values")
	}
}

func TestLoadFromErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		create  bool
	}{
		{name: "missingFile", create: false},
		{name: "invalidYAML", content: "system: [unclosed", create: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prompts.yaml")
			if tt.create {
				if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := LoadFrom(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRenderAgentic(t *testing.T) {
	p, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		params     AgenticParams
		wantSubstr []string
		notSubstr  []string
	}{
		{
			name:       "withBlogTitle",
			params:     AgenticParams{Topic: "new menu launch", Tone: "friendly", PlatformList: "blog, x", WantsTitle: true},
			wantSubstr: []string{"new menu launch", "friendly", "blog, x", `"title"`},
		},
		{
			name:       "snsOnlyWithContext",
			params:     AgenticParams{Topic: "spring sale", Tone: "bold", PlatformList: "sns", UserContext: "bakery in Seoul"},
			wantSubstr: []string{"spring sale", "bakery in Seoul"},
			notSubstr:  []string{`"title"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.RenderAgentic(tt.params)
			if err != nil {
				t.Fatalf("RenderAgentic() error = %v", err)
			}
			for _, s := range tt.wantSubstr {
				if !strings.Contains(got, s) {
					t.Errorf("missing %q in %q", s, got)
				}
			}
			for _, s := range tt.notSubstr {
				if strings.Contains(got, s) {
					t.Errorf("unexpected %q in %q", s, got)
				}
			}
		})
	}
}

func TestRenderImage(t *testing.T) {
	p, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.RenderImage(ImageParams{Topic: "latte art", Index: 2, Count: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "latte art") || !strings.Contains(got, "Variation 2 of 3") {
		t.Errorf("RenderImage() = %q", got)
	}
}

func TestRenderInvalidTemplate(t *testing.T) {
	p := &Prompts{Image: ImagePrompts{Generate: "{{.Topic"}}
	if _, err := p.RenderImage(ImageParams{}); err == nil {
		t.Error("expected template parse error")
	}
}
