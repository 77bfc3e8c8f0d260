package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"

	"contentdesk/internal/app/model"
	"contentdesk/internal/jobs"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

func printResult(snap model.ResultSnapshot) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Result %s", snap.ID)))

	platforms := make([]model.Platform, 0, len(snap.Text))
	for p := range snap.Text {
		platforms = append(platforms, p)
	}
	slices.Sort(platforms)
	for _, p := range platforms {
		t := snap.Text[p]
		var b strings.Builder
		b.WriteString(labelStyle.Render(strings.ToUpper(string(p))))
		if t.Title != "" {
			b.WriteString("\n" + t.Title)
		}
		b.WriteString("\n" + t.Content)
		if len(t.Tags) > 0 {
			b.WriteString("\n" + dimStyle.Render(strings.Join(t.Tags, " ")))
		}
		fmt.Println(boxStyle.Render(b.String()))
	}

	for i, img := range snap.Images {
		fmt.Printf("%s %s\n", labelStyle.Render(fmt.Sprintf("image %d", i+1)), img.URL)
	}
	for i, card := range snap.Cards {
		fmt.Printf("%s %s\n", labelStyle.Render(fmt.Sprintf("card %d", i+1)), card)
	}
	if v := snap.Video; v != nil {
		switch {
		case v.URL != "":
			fmt.Printf("%s %s\n", labelStyle.Render("video"), v.URL)
		case v.Status == model.JobFailed:
			fmt.Println(errorStyle.Render(fmt.Sprintf("video job %s failed: %s", v.JobID, v.ErrorMessage)))
		default:
			fmt.Printf("%s job %s %s (%d%%)\n", labelStyle.Render("video"), v.JobID, v.Status, v.Progress)
		}
	}

	for _, f := range snap.Failures {
		fmt.Println(warnStyle.Render("! " + f))
	}
	if snap.Cost > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("cost: %d credits", snap.Cost)))
	}
}

func describeError(err error) string {
	var credit *model.InsufficientCreditError
	if errors.As(err, &credit) {
		return fmt.Sprintf("Not enough credits: this costs %d, balance is %d (short by %d)", credit.Cost, credit.Balance, credit.Shortfall)
	}
	return err.Error()
}

// waitForJob blocks on token behind a spinner and reports whether the job
// reached a terminal state. An interrupted wait stops only local polling.
func waitForJob(ctx context.Context, token *jobs.CancelToken) bool {
	var waitErr error
	_ = spinner.New().
		Title(fmt.Sprintf("Waiting for video job %s...", token.JobID())).
		Action(func() { waitErr = token.Wait(ctx) }).
		Run()

	if waitErr != nil {
		token.Cancel()
		fmt.Println(infoStyle.Render(fmt.Sprintf("Stopped watching. The job keeps running; resume with: contentdesk watch %s", token.JobID())))
		return false
	}
	return true
}

func logProgress(ev jobs.Event) {
	slog.Debug("video job progress",
		"job_id", ev.Job.ID,
		"status", ev.Job.Status,
		"progress", ev.Job.Progress,
		"step", ev.Job.CurrentStep,
	)
}
