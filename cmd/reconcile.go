package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Retry credit debits and session saves that failed earlier",
	RunE:  runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := loadService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	pendingDebits := len(svc.Ledger().PendingDebits())
	pendingSessions := len(svc.Persister().PendingSessions())
	if pendingDebits == 0 && pendingSessions == 0 {
		fmt.Println(successStyle.Render("✓ Nothing to reconcile"))
		return nil
	}

	debits, sessions, err := svc.Reconcile(ctx)
	fmt.Printf("Debits recorded:  %d of %d\n", debits, pendingDebits)
	fmt.Printf("Sessions saved:   %d of %d\n", sessions, pendingSessions)
	if err != nil {
		fmt.Println(warnStyle.Render("Some entries are still queued: " + err.Error()))
		return nil
	}
	fmt.Println(successStyle.Render("✓ All queued work recorded"))
	return nil
}
