package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusClear bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the in-progress marker and queued work",
	Long: `Show whether a generation was in progress when contentdesk last ran, plus
any debits or session saves still waiting for reconcile. --clear removes a
stale marker.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusClear, "clear", false, "Clear the in-progress marker")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := loadService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	state := svc.State()
	m, ok := state.Marker()
	switch {
	case !ok:
		fmt.Println(successStyle.Render("✓ Nothing in progress"))
	case statusClear:
		if err := state.Clear(ctx); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("✓ Cleared marker for " + m.ResultID))
	default:
		fmt.Println(titleStyle.Render("In progress"))
		fmt.Printf("  status:  %s\n", m.Status)
		fmt.Printf("  result:  %s\n", m.ResultID)
		fmt.Printf("  started: %s (%s ago)\n", m.StartedAt.Local().Format(time.DateTime), time.Since(m.StartedAt).Round(time.Second))
		if m.JobID != "" {
			fmt.Printf("  job:     %s\n", m.JobID)
			fmt.Println(infoStyle.Render("  Resume with: contentdesk watch " + m.JobID))
		}
	}

	if n := len(svc.Ledger().PendingDebits()); n > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("%d debit(s) queued, run: contentdesk reconcile", n)))
	}
	if n := len(svc.Persister().PendingSessions()); n > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("%d session save(s) queued, run: contentdesk reconcile", n)))
	}
	return nil
}
