package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"contentdesk/internal/app"
	"contentdesk/internal/app/model"
)

var (
	creditsQuote  bool
	creditsType   string
	creditsFormat string
	creditsCount  int
	creditsTier   string
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Show the credit balance and price list",
	Long: `Show the current credit balance, the video tiers and the per-item prices.
With --quote a request described by --type, --format, --count and --tier is
priced without running anything.`,
	RunE: runCredits,
}

func init() {
	creditsCmd.Flags().BoolVar(&creditsQuote, "quote", false, "Price a request instead of only listing prices")
	creditsCmd.Flags().StringVarP(&creditsType, "type", "c", string(model.ContentImage), "Content type to quote")
	creditsCmd.Flags().StringVar(&creditsFormat, "format", string(model.FormatAIImage), "Image format to quote")
	creditsCmd.Flags().IntVarP(&creditsCount, "count", "n", 1, "Image count to quote")
	creditsCmd.Flags().StringVar(&creditsTier, "tier", string(model.TierShort), "Video tier to quote")
	rootCmd.AddCommand(creditsCmd)
}

func runCredits(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := loadService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	ledger := svc.Ledger()
	if !ledger.Hydrated() {
		fmt.Println(warnStyle.Render("Balance unavailable, the studio could not be reached"))
	} else {
		fmt.Println(titleStyle.Render(fmt.Sprintf("Balance: %d credits", ledger.Balance())))
	}

	pricing := ledger.Pricing()
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("63"))).
		Headers("ITEM", "CUTS", "CREDITS")
	t.Row("AI image (each)", "-", fmt.Sprint(pricing.AIImage))
	t.Row("Card-news card (each)", "-", fmt.Sprint(pricing.CardNewsCard))
	for _, tier := range pricing.TierList() {
		t.Row("Video: "+string(tier.Name), fmt.Sprint(tier.Cuts), fmt.Sprint(tier.Credits))
	}
	fmt.Println(t.Render())
	fmt.Println(dimStyle.Render(fmt.Sprintf("Partial image batches are billed %s. Text is free.", pricing.PartialBatch)))

	if !creditsQuote {
		return nil
	}

	req := model.GenerationRequest{
		ContentType: model.ContentType(creditsType),
		ImageFormat: model.ImageFormat(creditsFormat),
		ImageCount:  creditsCount,
		VideoTier:   model.VideoTier(creditsTier),
	}
	quote := app.NewPipeline(svc).Quote(req, nil)
	line := fmt.Sprintf("Quote for %s: %d credits", creditsType, quote)
	if ledger.Hydrated() && quote > ledger.Balance() {
		fmt.Println(errorStyle.Render(line + fmt.Sprintf(" (short by %d)", quote-ledger.Balance())))
		return nil
	}
	fmt.Println(successStyle.Render(line))
	return nil
}
