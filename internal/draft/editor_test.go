package draft

import (
	"context"
	"errors"
	"testing"
)

type mockPreviewer struct {
	preview *Preview
	err     error
	got     PreviewRequest
}

func (m *mockPreviewer) Preview(ctx context.Context, req PreviewRequest) (*Preview, error) {
	m.got = req
	return m.preview, m.err
}

func threePageEditor(t *testing.T) *Editor {
	t.Helper()
	previewer := &mockPreviewer{preview: &Preview{
		Pages: []PageContent{
			{Title: "Cover", Subtitle: "Spring menu", Content: []string{"intro"}},
			{Title: "One", Content: []string{"first"}},
			{Title: "Two", Content: []string{"second"}},
		},
		PreviewImages: []string{"bg0.png", "", "bg2.png"},
	}}
	e := NewEditor(Options{Previewer: previewer})
	if _, err := e.GeneratePreview(context.Background(), PreviewRequest{Prompt: "spring menu"}); err != nil {
		t.Fatalf("GeneratePreview() error = %v", err)
	}
	return e
}

func titles(pages []Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Title
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGeneratePreview(t *testing.T) {
	tests := []struct {
		name    string
		preview *Preview
		err     error
		wantErr error
	}{
		{
			name:    "tooFewPages",
			preview: &Preview{Pages: []PageContent{{Title: "only"}}},
			wantErr: ErrEmptyPreview,
		},
		{
			name:    "collaboratorError",
			err:     errors.New("502"),
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEditor(Options{Previewer: &mockPreviewer{preview: tt.preview, err: tt.err}})
			_, err := e.GeneratePreview(context.Background(), PreviewRequest{Prompt: "p"})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	previewer := &mockPreviewer{preview: &Preview{Pages: []PageContent{{Title: "a"}, {Title: "b"}}}}
	e := NewEditor(Options{Previewer: previewer, AspectRatio: "4:5"})
	if _, err := e.GeneratePreview(context.Background(), PreviewRequest{Prompt: "p"}); err != nil {
		t.Fatal(err)
	}
	if previewer.got.AspectRatio != "4:5" {
		t.Errorf("AspectRatio = %q, want editor default", previewer.got.AspectRatio)
	}
}

func TestReorderThenDelete(t *testing.T) {
	e := threePageEditor(t)

	if err := e.Reorder(1, 2); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	if got := titles(e.Pages()); !equal(got, []string{"Cover", "Two", "One"}) {
		t.Fatalf("after reorder = %v", got)
	}

	if err := e.DeletePage(1); err != nil {
		t.Fatalf("DeletePage() error = %v", err)
	}
	got := titles(e.Pages())
	if !equal(got, []string{"Cover", "One"}) {
		t.Errorf("after delete = %v, want [Cover One]", got)
	}
}

func TestCoverIsPinned(t *testing.T) {
	tests := []struct {
		name string
		op   func(e *Editor) error
	}{
		{"deleteCover", func(e *Editor) error { return e.DeletePage(0) }},
		{"moveCoverDown", func(e *Editor) error { return e.Reorder(0, 2) }},
		{"moveOntoCover", func(e *Editor) error { return e.Reorder(2, 0) }},
		{"moveCoverToItself", func(e *Editor) error { return e.Reorder(0, 0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := threePageEditor(t)
			before := titles(e.Pages())

			if err := tt.op(e); !errors.Is(err, ErrCoverPinned) {
				t.Errorf("error = %v, want ErrCoverPinned", err)
			}
			if after := titles(e.Pages()); !equal(before, after) {
				t.Errorf("pages changed: %v -> %v", before, after)
			}
		})
	}
}

func TestDeleteKeepsMinimumPages(t *testing.T) {
	e := threePageEditor(t)
	if err := e.DeletePage(2); err != nil {
		t.Fatal(err)
	}
	if err := e.DeletePage(1); !errors.Is(err, ErrTooFewPages) {
		t.Errorf("error = %v, want ErrTooFewPages", err)
	}
	if e.Len() != 2 {
		t.Errorf("Len() = %d, want 2", e.Len())
	}
}

func TestOutOfRange(t *testing.T) {
	e := threePageEditor(t)
	for _, idx := range []int{-1, 3} {
		if err := e.DeletePage(idx); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("DeletePage(%d) error = %v", idx, err)
		}
		if err := e.Reorder(1, idx); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Reorder(1, %d) error = %v", idx, err)
		}
	}
}

func TestEditPointerFollowsReorder(t *testing.T) {
	e := threePageEditor(t)

	idx, err := e.AddPage(1)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 2 {
		t.Fatalf("AddPage() index = %d, want 2", idx)
	}
	if got, ok := e.Editing(); !ok || got != 2 {
		t.Fatalf("Editing() = %d, %v, want 2", got, ok)
	}

	if err := e.Reorder(2, 3); err != nil {
		t.Fatal(err)
	}
	if got, _ := e.Editing(); got != 3 {
		t.Errorf("Editing() after move = %d, want 3", got)
	}

	if err := e.Reorder(1, 3); err != nil {
		t.Fatal(err)
	}
	if got, _ := e.Editing(); got != 2 {
		t.Errorf("Editing() after shifting neighbour = %d, want 2", got)
	}
	if e.Pages()[2].Title != placeholderTitle {
		t.Errorf("edited page is %q, want the placeholder page", e.Pages()[2].Title)
	}
}

func TestEditPage(t *testing.T) {
	e := threePageEditor(t)

	if err := e.EditPage(1, FieldContent, "line one\n\nline three\n"); err != nil {
		t.Fatal(err)
	}
	content := e.Pages()[1].Content
	if len(content) != 4 {
		t.Errorf("content while editing = %q, want blank lines kept", content)
	}

	if err := e.EditPage(1, FieldSubtitle, "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("subtitle on inner page error = %v", err)
	}
	if err := e.EditPage(0, "color", "red"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown field error = %v", err)
	}
	if err := e.EditPage(0, FieldTitle, "New cover"); err != nil {
		t.Fatal(err)
	}
}

func TestConfirm(t *testing.T) {
	e := threePageEditor(t)
	_ = e.EditPage(1, FieldContent, "line one\n\n  \nline two")

	final, err := e.Confirm()
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	if got := final.Pages[1].Content; !equal(got, []string{"line one", "line two"}) {
		t.Errorf("content = %q, want blanks stripped", got)
	}
	if final.Pages[0].Subtitle != "Spring menu" {
		t.Errorf("cover subtitle = %q", final.Pages[0].Subtitle)
	}
	if !equal(final.PreviewImages, []string{"bg0.png", "", "bg2.png"}) {
		t.Errorf("PreviewImages = %v", final.PreviewImages)
	}
	if final.AspectRatio != DefaultAspectRatio || final.DesignTemplate != DefaultDesignTemplate {
		t.Errorf("defaults not carried: %+v", final)
	}

	if _, err := e.Confirm(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Confirm() error = %v, want ErrClosed", err)
	}
	if err := e.DeletePage(1); !errors.Is(err, ErrClosed) {
		t.Errorf("edit after confirm error = %v, want ErrClosed", err)
	}
}

func TestCancel(t *testing.T) {
	e := threePageEditor(t)
	e.Cancel()

	if e.Len() != 0 {
		t.Errorf("Len() = %d after cancel", e.Len())
	}
	if _, err := e.Confirm(); !errors.Is(err, ErrClosed) {
		t.Errorf("Confirm() after cancel error = %v", err)
	}
}

func TestEmptyEditor(t *testing.T) {
	e := NewEditor(Options{})
	if _, err := e.Confirm(); !errors.Is(err, ErrNoDraft) {
		t.Errorf("Confirm() error = %v, want ErrNoDraft", err)
	}
	if err := e.Load([]PageContent{{Title: "a"}}, nil); !errors.Is(err, ErrTooFewPages) {
		t.Errorf("Load() error = %v", err)
	}
	if err := e.Load([]PageContent{{Title: "a"}, {Title: "b"}}, nil); err != nil {
		t.Fatal(err)
	}
	final, err := e.Confirm()
	if err != nil {
		t.Fatal(err)
	}
	if final.PreviewImages != nil {
		t.Errorf("PreviewImages = %v, want nil without imagery", final.PreviewImages)
	}
}
