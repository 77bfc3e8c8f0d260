package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"contentdesk/internal/app/model"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived generation sessions",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum sessions to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := loadService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	records, err := svc.Persister().History(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println(infoStyle.Render("No sessions archived yet"))
		return nil
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("63"))).
		Headers("WHEN", "TYPE", "TOPIC", "OUTPUT", "COST")
	for _, r := range records {
		t.Row(
			r.CreatedAt.Local().Format(time.DateTime),
			string(r.ContentType),
			truncate(r.Topic, 40),
			summarize(r),
			fmt.Sprint(r.Cost),
		)
	}
	fmt.Println(t.Render())
	return nil
}

func summarize(r model.SessionRecord) string {
	switch {
	case r.Video != nil && r.Video.URL != "":
		return "video " + r.Video.URL
	case r.Video != nil:
		return fmt.Sprintf("video job %s (%s)", r.Video.JobID, r.Video.Status)
	case len(r.Cards) > 0:
		return fmt.Sprintf("%d cards", len(r.Cards))
	case len(r.Images) > 0:
		return fmt.Sprintf("%d images", len(r.Images))
	default:
		return fmt.Sprintf("%d platform texts", len(r.Text))
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
