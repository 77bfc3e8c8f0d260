package llm

import (
	"testing"

	"contentdesk/internal/app/model"
)

func TestDecodeAgentic(t *testing.T) {
	all := []model.Platform{model.PlatformBlog, model.PlatformSNS, model.PlatformX, model.PlatformThreads}

	tests := []struct {
		name      string
		body      string
		requested []model.Platform
		want      map[model.Platform]model.PlatformText
		wantErr   bool
	}{
		{
			name:      "canonicalShape",
			body:      `{"blog":{"title":"Spring menu","content":"Body","tags":["cafe","#spring"]},"analysis":{"audience":"locals"}}`,
			requested: []model.Platform{model.PlatformBlog},
			want: map[model.Platform]model.PlatformText{
				model.PlatformBlog: {Title: "Spring menu", Content: "Body", Tags: []string{"cafe", "spring"}},
			},
		},
		{
			name:      "titleAsObjectAndHashtags",
			body:      `{"blog":{"title":{"main":"Main title","sub":"x"},"content":"Body","hashtags":"#a #b, #a"}}`,
			requested: []model.Platform{model.PlatformBlog},
			want: map[model.Platform]model.PlatformText{
				model.PlatformBlog: {Title: "Main title", Content: "Body", Tags: []string{"a", "b"}},
			},
		},
		{
			name:      "wrappedAndAliased",
			body:      `{"content":{"instagram":{"body":"Insta copy","hashtags":["#latte"]},"twitter":"Short tweet"}}`,
			requested: []model.Platform{model.PlatformSNS, model.PlatformX},
			want: map[model.Platform]model.PlatformText{
				model.PlatformSNS: {Content: "Insta copy", Tags: []string{"latte"}},
				model.PlatformX:   {Content: "Short tweet", Tags: []string{}},
			},
		},
		{
			name:      "missingPlatformOmitted",
			body:      `{"blog":{"content":"Body"},"x":{"content":""}}`,
			requested: all,
			want: map[model.Platform]model.PlatformText{
				model.PlatformBlog: {Content: "Body", Tags: []string{}},
			},
		},
		{
			name:      "unrequestedPlatformDropped",
			body:      `{"blog":{"content":"Body"},"threads":{"content":"Thread copy","title":"ignored"}}`,
			requested: []model.Platform{model.PlatformThreads},
			want: map[model.Platform]model.PlatformText{
				model.PlatformThreads: {Content: "Thread copy", Tags: []string{}},
			},
		},
		{
			name:      "contentAsLines",
			body:      `{"sns":{"content":["line one","line two"]}}`,
			requested: []model.Platform{model.PlatformSNS},
			want: map[model.Platform]model.PlatformText{
				model.PlatformSNS: {Content: "line one\nline two", Tags: []string{}},
			},
		},
		{
			name:    "notJSON",
			body:    `Sorry, I cannot help`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle, err := DecodeAgentic([]byte(tt.body), tt.requested)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeAgentic() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if len(bundle.Platforms) != len(tt.want) {
				t.Fatalf("platforms = %+v, want %+v", bundle.Platforms, tt.want)
			}
			for p, want := range tt.want {
				got, ok := bundle.Platforms[p]
				if !ok {
					t.Errorf("missing platform %s", p)
					continue
				}
				if got.Title != want.Title || got.Content != want.Content {
					t.Errorf("%s = %+v, want %+v", p, got, want)
				}
				if len(got.Tags) != len(want.Tags) {
					t.Errorf("%s tags = %v, want %v", p, got.Tags, want.Tags)
					continue
				}
				for i := range want.Tags {
					if got.Tags[i] != want.Tags[i] {
						t.Errorf("%s tags = %v, want %v", p, got.Tags, want.Tags)
						break
					}
				}
			}
		})
	}
}

func TestDecodeAgenticMetadata(t *testing.T) {
	body := `{"blog":{"content":"x"},"analysis":{"audience":"office workers"},"critique":{"score":82}}`
	bundle, err := DecodeAgentic([]byte(body), []model.Platform{model.PlatformBlog})
	if err != nil {
		t.Fatal(err)
	}
	if bundle.Analysis["audience"] != "office workers" {
		t.Errorf("Analysis = %v", bundle.Analysis)
	}
	if bundle.Critique["score"] != float64(82) {
		t.Errorf("Critique = %v", bundle.Critique)
	}
}

func TestMissing(t *testing.T) {
	bundle := &model.TextBundle{Platforms: map[model.Platform]model.PlatformText{
		model.PlatformBlog: {Content: "x"},
		model.PlatformX:    {Content: "  "},
	}}
	got := Missing(bundle, []model.Platform{model.PlatformBlog, model.PlatformX, model.PlatformSNS})
	if len(got) != 2 || got[0] != model.PlatformX || got[1] != model.PlatformSNS {
		t.Errorf("Missing() = %v", got)
	}
	if len(Missing(nil, []model.Platform{model.PlatformBlog})) != 1 {
		t.Error("nil bundle should miss every platform")
	}
}

func TestCleanTags(t *testing.T) {
	got := cleanTags([]string{" #Cafe ", "cafe", "##", "", "Seoul"})
	if len(got) != 2 || got[0] != "Cafe" || got[1] != "Seoul" {
		t.Errorf("cleanTags() = %v", got)
	}
}
