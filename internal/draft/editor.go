package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	MinPages = 2

	placeholderTitle   = "New page"
	placeholderContent = "Write the page content here"

	DefaultAspectRatio    = "1:1"
	DefaultDesignTemplate = "basic"
)

var (
	ErrNoDraft      = errors.New("no draft loaded")
	ErrClosed       = errors.New("draft session is closed")
	ErrCoverPinned  = errors.New("the cover page cannot be moved or deleted")
	ErrTooFewPages  = errors.New("a card-news deck needs at least 2 pages")
	ErrOutOfRange   = errors.New("page index out of range")
	ErrUnknownField = errors.New("unknown page field")
	ErrEmptyPreview = errors.New("preview returned fewer than 2 pages")
)

type Field string

const (
	FieldTitle    Field = "title"
	FieldSubtitle Field = "subtitle"
	FieldContent  Field = "content"
)

type PageContent struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	Content  []string `json:"content"`
}

type PreviewRequest struct {
	Prompt         string
	GenerateImages bool
	AspectRatio    string
	UserContext    string
}

type Preview struct {
	Pages          []PageContent  `json:"pages"`
	PreviewImages  []string       `json:"preview_images"`
	DesignSettings map[string]any `json:"design_settings"`
}

// Previewer produces the low-cost text pages and preview imagery for a deck.
type Previewer interface {
	Preview(ctx context.Context, req PreviewRequest) (*Preview, error)
}

// Page is one slide. Pages are addressed by ID, never by position.
type Page struct {
	ID           string
	Title        string
	Subtitle     string
	Content      []string
	PreviewImage string
}

// Final is the confirmed deck handed to the render call.
type Final struct {
	Pages          []PageContent  `json:"pages"`
	PreviewImages  []string       `json:"preview_images,omitempty"`
	AspectRatio    string         `json:"aspect_ratio"`
	DesignTemplate string         `json:"design_template"`
	DesignSettings map[string]any `json:"design_settings,omitempty"`
}

type state int

const (
	stateEmpty state = iota
	stateEditing
	stateConfirmed
	stateCancelled
)

type Options struct {
	Previewer      Previewer
	AspectRatio    string
	DesignTemplate string
}

// Editor owns one card-news draft from preview to confirm or cancel.
// Page 0 is the cover: pinned first and never deleted.
type Editor struct {
	mu sync.Mutex

	previewer      Previewer
	aspectRatio    string
	designTemplate string
	designSettings map[string]any

	pages   map[string]*Page
	order   []string
	editing string
	state   state
}

func NewEditor(opts Options) *Editor {
	if opts.AspectRatio == "" {
		opts.AspectRatio = DefaultAspectRatio
	}
	if opts.DesignTemplate == "" {
		opts.DesignTemplate = DefaultDesignTemplate
	}
	return &Editor{
		previewer:      opts.Previewer,
		aspectRatio:    opts.AspectRatio,
		designTemplate: opts.DesignTemplate,
		pages:          make(map[string]*Page),
	}
}

// GeneratePreview asks the collaborator for a draft deck. It never costs credits.
func (e *Editor) GeneratePreview(ctx context.Context, req PreviewRequest) ([]Page, error) {
	if req.AspectRatio == "" {
		req.AspectRatio = e.aspectRatio
	}

	preview, err := e.previewer.Preview(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate card-news preview: %w", err)
	}
	if len(preview.Pages) < MinPages {
		return nil, fmt.Errorf("%w: got %d", ErrEmptyPreview, len(preview.Pages))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.load(preview.Pages, preview.PreviewImages)
	e.aspectRatio = req.AspectRatio
	e.designSettings = preview.DesignSettings
	return e.snapshot(), nil
}

// Load replaces the draft with pages edited elsewhere, e.g. a saved deck.
func (e *Editor) Load(pages []PageContent, previewImages []string) error {
	if len(pages) < MinPages {
		return ErrTooFewPages
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load(pages, previewImages)
	return nil
}

func (e *Editor) load(pages []PageContent, previewImages []string) {
	e.pages = make(map[string]*Page, len(pages))
	e.order = make([]string, 0, len(pages))
	e.editing = ""

	for i, pc := range pages {
		p := &Page{
			ID:       uuid.NewString(),
			Title:    pc.Title,
			Subtitle: pc.Subtitle,
			Content:  slices.Clone(pc.Content),
		}
		if i < len(previewImages) {
			p.PreviewImage = previewImages[i]
		}
		e.pages[p.ID] = p
		e.order = append(e.order, p.ID)
	}
	e.state = stateEditing
}

func (e *Editor) Pages() []Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Editor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}

// Editing reports the index of the page in edit mode.
func (e *Editor) Editing() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.editing == "" {
		return 0, false
	}
	idx := slices.Index(e.order, e.editing)
	return idx, idx >= 0
}

func (e *Editor) StartEditing(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(index); err != nil {
		return err
	}
	e.editing = e.order[index]
	return nil
}

func (e *Editor) StopEditing() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.editing = ""
}

// EditPage mutates one field in place. Content is split on newlines without
// dropping blank lines; blanks are only stripped by Confirm.
func (e *Editor) EditPage(index int, field Field, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check(index); err != nil {
		return err
	}
	p := e.pages[e.order[index]]

	switch field {
	case FieldTitle:
		p.Title = value
	case FieldSubtitle:
		if index != 0 {
			return fmt.Errorf("%w: subtitle is only available on the cover", ErrUnknownField)
		}
		p.Subtitle = value
	case FieldContent:
		p.Content = strings.Split(value, "\n")
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// AddPage inserts a placeholder page right after the given index and puts it
// in edit mode. It returns the new page's index.
func (e *Editor) AddPage(after int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check(after); err != nil {
		return 0, err
	}

	p := &Page{
		ID:      uuid.NewString(),
		Title:   placeholderTitle,
		Content: []string{placeholderContent},
	}
	e.pages[p.ID] = p
	e.order = slices.Insert(e.order, after+1, p.ID)
	e.editing = p.ID
	return after + 1, nil
}

// DeletePage is a no-op with a warning for the cover or when fewer than
// MinPages would remain.
func (e *Editor) DeletePage(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check(index); err != nil {
		return err
	}
	if index == 0 {
		slog.Warn("refusing to delete cover page")
		return ErrCoverPinned
	}
	if len(e.order)-1 < MinPages {
		slog.Warn("refusing to delete page", "pages", len(e.order), "min", MinPages)
		return ErrTooFewPages
	}

	id := e.order[index]
	e.order = slices.Delete(e.order, index, index+1)
	delete(e.pages, id)
	if e.editing == id {
		e.editing = ""
	}
	return nil
}

// Reorder moves the page at src to dst. The edit pointer follows its page
// because it holds an id, not a position.
func (e *Editor) Reorder(src, dst int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check(src); err != nil {
		return err
	}
	if err := e.check(dst); err != nil {
		return err
	}
	if src == 0 || dst == 0 {
		slog.Warn("refusing to move cover page", "src", src, "dst", dst)
		return ErrCoverPinned
	}
	if src == dst {
		return nil
	}

	id := e.order[src]
	e.order = slices.Delete(e.order, src, src+1)
	e.order = slices.Insert(e.order, dst, id)
	return nil
}

// Confirm strips blank content lines and closes the session. Its output is
// the only path from a draft to a paid render.
func (e *Editor) Confirm() (*Final, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.open(); err != nil {
		return nil, err
	}

	final := &Final{
		Pages:          make([]PageContent, 0, len(e.order)),
		AspectRatio:    e.aspectRatio,
		DesignTemplate: e.designTemplate,
		DesignSettings: e.designSettings,
	}

	hasImages := false
	images := make([]string, 0, len(e.order))
	for i, id := range e.order {
		p := e.pages[id]
		pc := PageContent{
			Title:   strings.TrimSpace(p.Title),
			Content: nonBlank(p.Content),
		}
		if i == 0 {
			pc.Subtitle = strings.TrimSpace(p.Subtitle)
		}
		final.Pages = append(final.Pages, pc)
		images = append(images, p.PreviewImage)
		if p.PreviewImage != "" {
			hasImages = true
		}
	}
	if hasImages {
		final.PreviewImages = images
	}

	e.state = stateConfirmed
	e.editing = ""
	return final, nil
}

// Cancel discards the draft.
func (e *Editor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pages = make(map[string]*Page)
	e.order = nil
	e.editing = ""
	e.state = stateCancelled
}

func (e *Editor) open() error {
	switch e.state {
	case stateEmpty:
		return ErrNoDraft
	case stateConfirmed, stateCancelled:
		return ErrClosed
	}
	return nil
}

func (e *Editor) check(index int) error {
	if err := e.open(); err != nil {
		return err
	}
	if index < 0 || index >= len(e.order) {
		return fmt.Errorf("%w: %d (pages: %d)", ErrOutOfRange, index, len(e.order))
	}
	return nil
}

func (e *Editor) snapshot() []Page {
	pages := make([]Page, 0, len(e.order))
	for _, id := range e.order {
		p := *e.pages[id]
		p.Content = slices.Clone(p.Content)
		pages = append(pages, p)
	}
	return pages
}

func nonBlank(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
