package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"contentdesk/internal/app"
	"contentdesk/internal/app/model"
	"contentdesk/internal/draft"
)

var (
	genTopic      string
	genType       string
	genPlatforms  []string
	genFormat     string
	genCount      int
	genTier       string
	genImage      string
	genTone       string
	genContext    string
	genProduct    string
	genYes        bool
	genNoWait     bool
	genDeckImages bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate copy, images, card-news or a short-form video",
	Long: `Run one generation request. Without --topic an interactive form asks
for the request. Paid requests show their credit cost before anything runs.`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genTopic, "topic", "t", "", "Topic or product name")
	f.StringVarP(&genType, "type", "c", string(model.ContentText), "Content type: text, image, both, shortform")
	f.StringSliceVarP(&genPlatforms, "platforms", "p", nil, "Platforms: blog, sns, x, threads")
	f.StringVar(&genFormat, "format", string(model.FormatAIImage), "Image format: ai-image or cardnews")
	f.IntVarP(&genCount, "count", "n", 1, "Number of images (1-8)")
	f.StringVar(&genTier, "tier", string(model.TierShort), "Video tier: short, standard, premium")
	f.StringVar(&genImage, "image", "", "Reference image for short-form video")
	f.StringVar(&genTone, "tone", "", "Tone of voice")
	f.StringVar(&genContext, "context", "", "Extra context for the copy")
	f.StringVar(&genProduct, "product", "", "Product description for short-form video")
	f.BoolVarP(&genYes, "yes", "y", false, "Skip the cost confirmation")
	f.BoolVar(&genNoWait, "no-wait", false, "Return right after a video job is submitted")
	f.BoolVar(&genDeckImages, "deck-images", false, "Ask for preview images while drafting card-news")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if genTopic == "" {
		if err := runGenerateForm(); err != nil {
			return err
		}
	}

	req, err := buildRequest()
	if err != nil {
		return err
	}

	svc, err := loadService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	pipeline := app.NewPipeline(svc)

	var final *draft.Final
	if req.WantsImages() && req.ImageFormat == model.FormatCardNews {
		final, err = runDraftEditor(ctx, svc.NewEditor(), req.Topic, req.UserContext, genDeckImages)
		if errors.Is(err, errDraftCancelled) {
			fmt.Println(infoStyle.Render("Draft discarded, nothing generated"))
			return nil
		}
		if err != nil {
			return err
		}
	}

	if ok, err := confirmQuote(svc, pipeline.Quote(req, final)); err != nil || !ok {
		return err
	}

	gen, err := pipeline.Generate(ctx, req, app.GenerateOptions{Draft: final, OnVideo: logProgress})
	if gen == nil {
		return errors.New(describeError(err))
	}

	if gen.Token != nil {
		fmt.Println(successStyle.Render(fmt.Sprintf("✓ Video job %s submitted", gen.Token.JobID())))
		if genNoWait {
			gen.Token.Cancel()
			fmt.Println(infoStyle.Render("Follow it with: contentdesk watch " + gen.Token.JobID()))
			return nil
		}
		waitForJob(ctx, gen.Token)
	}

	printResult(gen.Result.Snapshot())
	if err != nil {
		return errors.New(describeError(err))
	}
	return nil
}

func runGenerateForm() error {
	count := strconv.Itoa(genCount)

	wantsImages := func() bool {
		return genType == string(model.ContentImage) || genType == string(model.ContentBoth)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Topic").
				Value(&genTopic).
				Validate(required("Topic")),
			huh.NewSelect[string]().
				Title("What should be generated?").
				Options(
					huh.NewOption("Platform copy", string(model.ContentText)),
					huh.NewOption("Images", string(model.ContentImage)),
					huh.NewOption("Copy and images", string(model.ContentBoth)),
					huh.NewOption("Short-form video", string(model.ContentShortform)),
				).
				Value(&genType),
		),
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Platforms").
				Options(
					huh.NewOption("Blog", string(model.PlatformBlog)),
					huh.NewOption("Instagram / SNS", string(model.PlatformSNS)),
					huh.NewOption("X", string(model.PlatformX)),
					huh.NewOption("Threads", string(model.PlatformThreads)),
				).
				Value(&genPlatforms),
			huh.NewText().
				Title("Extra context (optional)").
				Value(&genContext),
		).WithHideFunc(func() bool {
			return genType != string(model.ContentText) && genType != string(model.ContentBoth)
		}),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Image format").
				Options(
					huh.NewOption("AI images", string(model.FormatAIImage)),
					huh.NewOption("Card-news deck", string(model.FormatCardNews)),
				).
				Value(&genFormat),
			huh.NewInput().
				Title("How many images? (1-8, ignored for card-news)").
				Value(&count).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < model.MinImageCount || n > model.MaxImageCount {
						return fmt.Errorf("enter a number between %d and %d", model.MinImageCount, model.MaxImageCount)
					}
					return nil
				}),
		).WithHideFunc(func() bool { return !wantsImages() }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Video tier").
				Options(
					huh.NewOption("Short", string(model.TierShort)),
					huh.NewOption("Standard", string(model.TierStandard)),
					huh.NewOption("Premium", string(model.TierPremium)),
				).
				Value(&genTier),
			huh.NewInput().
				Title("Reference image path").
				Value(&genImage).
				Validate(required("Reference image")),
			huh.NewText().
				Title("Product description (optional)").
				Value(&genProduct),
		).WithHideFunc(func() bool { return genType != string(model.ContentShortform) }),
	)

	if err := form.Run(); err != nil {
		return err
	}

	n, err := strconv.Atoi(count)
	if err == nil {
		genCount = n
	}
	return nil
}

func buildRequest() (model.GenerationRequest, error) {
	platforms := make([]model.Platform, len(genPlatforms))
	for i, p := range genPlatforms {
		platforms[i] = model.Platform(p)
	}

	req := model.GenerationRequest{
		Topic:              genTopic,
		ContentType:        model.ContentType(genType),
		Platforms:          platforms,
		Tone:               genTone,
		UserContext:        genContext,
		ProductDescription: genProduct,
	}
	if req.WantsImages() {
		req.ImageFormat = model.ImageFormat(genFormat)
		req.ImageCount = genCount
	}
	if req.WantsVideo() {
		req.VideoTier = model.VideoTier(genTier)
		if genImage != "" {
			att, err := readAttachment(genImage)
			if err != nil {
				return req, err
			}
			req.ReferenceImage = att
		}
	}
	return req, nil
}

func readAttachment(path string) (*model.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference image: %w", err)
	}
	return &model.Attachment{
		Filename:    filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

// confirmQuote shows the cost of a paid request and asks before spending.
func confirmQuote(svc *app.Service, quote int) (bool, error) {
	if quote == 0 {
		return true, nil
	}

	ledger := svc.Ledger()
	fmt.Println(infoStyle.Render(fmt.Sprintf("This request costs %d credits (balance %d)", quote, ledger.Balance())))
	if genYes {
		return true, nil
	}

	var proceed bool
	if err := huh.NewConfirm().
		Title(fmt.Sprintf("Spend %d credits?", quote)).
		Affirmative("Generate").
		Negative("Cancel").
		Value(&proceed).
		Run(); err != nil {
		return false, err
	}
	if !proceed {
		fmt.Println(infoStyle.Render("Cancelled, nothing was charged"))
	}
	return proceed, nil
}
