package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/spf13/cobra"

	"contentdesk/internal/app"
	"contentdesk/internal/app/model"
	"contentdesk/internal/draft"
)

var errDraftCancelled = errors.New("card-news draft cancelled")

var (
	cardnewsTopic   string
	cardnewsContext string
	cardnewsImages  bool
	cardnewsRender  bool
)

var cardnewsCmd = &cobra.Command{
	Use:   "cardnews",
	Short: "Draft and edit a card-news deck",
	Long: `Generate a free card-news preview, edit its pages interactively and
print the confirmed deck. With --render the deck is rendered and billed.`,
	RunE: runCardnews,
}

func init() {
	cardnewsCmd.Flags().StringVarP(&cardnewsTopic, "topic", "t", "", "Deck topic")
	cardnewsCmd.Flags().StringVar(&cardnewsContext, "context", "", "Extra context for the preview")
	cardnewsCmd.Flags().BoolVar(&cardnewsImages, "images", false, "Ask for preview images")
	cardnewsCmd.Flags().BoolVar(&cardnewsRender, "render", false, "Render the confirmed deck")
	rootCmd.AddCommand(cardnewsCmd)
}

func runCardnews(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if cardnewsTopic == "" {
		if err := huh.NewInput().
			Title("Deck topic").
			Value(&cardnewsTopic).
			Validate(required("Topic")).
			Run(); err != nil {
			return err
		}
	}

	svc, err := loadService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	final, err := runDraftEditor(ctx, svc.NewEditor(), cardnewsTopic, cardnewsContext, cardnewsImages)
	if errors.Is(err, errDraftCancelled) {
		fmt.Println(infoStyle.Render("Draft discarded"))
		return nil
	}
	if err != nil {
		return err
	}

	printDeck(final)
	if !cardnewsRender {
		return nil
	}

	pipeline := app.NewPipeline(svc)
	req := model.GenerationRequest{
		Topic:       cardnewsTopic,
		ContentType: model.ContentImage,
		ImageFormat: model.FormatCardNews,
		UserContext: cardnewsContext,
	}
	if ok, err := confirmQuote(svc, pipeline.Quote(req, final)); err != nil || !ok {
		return err
	}

	gen, err := pipeline.Generate(ctx, req, app.GenerateOptions{Draft: final})
	if gen != nil {
		printResult(gen.Result.Snapshot())
	}
	if err != nil {
		return errors.New(describeError(err))
	}
	return nil
}

// runDraftEditor drives one editor session from preview to confirm.
func runDraftEditor(ctx context.Context, editor *draft.Editor, topic, userContext string, withImages bool) (*draft.Final, error) {
	var previewErr error
	_ = spinner.New().
		Title("Generating card-news preview...").
		Action(func() {
			_, previewErr = editor.GeneratePreview(ctx, draft.PreviewRequest{
				Prompt:         topic,
				GenerateImages: withImages,
				UserContext:    userContext,
			})
		}).
		Run()
	if previewErr != nil {
		return nil, previewErr
	}

	for {
		printPages(editor.Pages())

		var action string
		if err := huh.NewSelect[string]().
			Title("Edit deck").
			Options(
				huh.NewOption("Edit a page", "edit"),
				huh.NewOption("Add a page", "add"),
				huh.NewOption("Delete a page", "delete"),
				huh.NewOption("Move a page", "move"),
				huh.NewOption("Confirm deck", "confirm"),
				huh.NewOption("Discard draft", "cancel"),
			).
			Value(&action).
			Run(); err != nil {
			editor.Cancel()
			return nil, err
		}

		var err error
		switch action {
		case "edit":
			err = editPage(editor)
		case "add":
			err = addPage(editor)
		case "delete":
			err = deletePage(editor)
		case "move":
			err = movePage(editor)
		case "confirm":
			return editor.Confirm()
		case "cancel":
			editor.Cancel()
			return nil, errDraftCancelled
		}
		if err != nil {
			fmt.Println(errorStyle.Render("✗ " + err.Error()))
		}
	}
}

func editPage(editor *draft.Editor) error {
	index, err := pickPage(editor, "Page to edit", 0)
	if err != nil {
		return err
	}
	return editPageAt(editor, index)
}

func editPageAt(editor *draft.Editor, index int) error {
	if err := editor.StartEditing(index); err != nil {
		return err
	}
	defer editor.StopEditing()

	page := editor.Pages()[index]
	title := page.Title
	subtitle := page.Subtitle
	content := strings.Join(page.Content, "\n")

	fields := []huh.Field{
		huh.NewInput().Title("Title").Value(&title),
	}
	if index == 0 {
		fields = append(fields, huh.NewInput().Title("Subtitle").Value(&subtitle))
	}
	fields = append(fields, huh.NewText().Title("Content (one line per bullet)").Value(&content))

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return err
	}

	if err := editor.EditPage(index, draft.FieldTitle, title); err != nil {
		return err
	}
	if index == 0 {
		if err := editor.EditPage(index, draft.FieldSubtitle, subtitle); err != nil {
			return err
		}
	}
	return editor.EditPage(index, draft.FieldContent, content)
}

func addPage(editor *draft.Editor) error {
	after, err := pickPage(editor, "Insert after", 0)
	if err != nil {
		return err
	}
	index, err := editor.AddPage(after)
	if err != nil {
		return err
	}
	return editPageAt(editor, index)
}

func deletePage(editor *draft.Editor) error {
	index, err := pickPage(editor, "Page to delete", 1)
	if err != nil {
		return err
	}
	return editor.DeletePage(index)
}

func movePage(editor *draft.Editor) error {
	src, err := pickPage(editor, "Page to move", 1)
	if err != nil {
		return err
	}
	dst, err := pickPage(editor, "Move to position", 1)
	if err != nil {
		return err
	}
	return editor.Reorder(src, dst)
}

// pickPage asks for a page index, offering pages from index first onwards.
func pickPage(editor *draft.Editor, title string, first int) (int, error) {
	pages := editor.Pages()
	if first >= len(pages) {
		return 0, draft.ErrOutOfRange
	}

	options := make([]huh.Option[int], 0, len(pages)-first)
	for i := first; i < len(pages); i++ {
		options = append(options, huh.NewOption(fmt.Sprintf("%d. %s", i+1, pages[i].Title), i))
	}

	var index int
	if err := huh.NewSelect[int]().Title(title).Options(options...).Value(&index).Run(); err != nil {
		return 0, err
	}
	return index, nil
}

func printPages(pages []draft.Page) {
	fmt.Println()
	for i, p := range pages {
		header := strconv.Itoa(i+1) + ". " + p.Title
		if i == 0 {
			header += dimStyle.Render("  (cover)")
		}
		var b strings.Builder
		b.WriteString(labelStyle.Render(header))
		if p.Subtitle != "" {
			b.WriteString("\n" + p.Subtitle)
		}
		for _, line := range p.Content {
			b.WriteString("\n• " + line)
		}
		if p.PreviewImage != "" {
			b.WriteString("\n" + dimStyle.Render(p.PreviewImage))
		}
		fmt.Println(boxStyle.Render(b.String()))
	}
}

func printDeck(final *draft.Final) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Confirmed deck: %d pages, %s, %s", len(final.Pages), final.AspectRatio, final.DesignTemplate)))
	for i, p := range final.Pages {
		fmt.Printf("%s %s\n", labelStyle.Render(strconv.Itoa(i+1)+"."), p.Title)
		for _, line := range p.Content {
			fmt.Println("   • " + line)
		}
	}
}
