package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"contentdesk/internal/app"
	"contentdesk/internal/jobs"
)

var watchCmd = &cobra.Command{
	Use:   "watch [job-id]",
	Short: "Re-attach to a short-form video job",
	Long: `Resume following a video job, for example after the terminal that submitted
it was closed. Without an id the job from the in-progress marker is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := loadService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	jobID := ""
	if len(args) == 1 {
		jobID = args[0]
	} else if m, ok := svc.State().Marker(); ok && m.JobID != "" {
		jobID = m.JobID
		fmt.Println(infoStyle.Render(fmt.Sprintf("Resuming job %s from %s", jobID, m.StartedAt.Local().Format("Jan 2 15:04"))))
	}
	if jobID == "" {
		return errors.New("no job id given and no video job in progress")
	}

	var final jobs.Event
	token := app.NewPipeline(svc).Watch(ctx, jobID, func(ev jobs.Event) {
		logProgress(ev)
		if ev.Terminal() {
			final = ev
		}
	})

	if !waitForJob(ctx, token) {
		return nil
	}

	switch final.Kind {
	case jobs.EventCompleted:
		fmt.Println(successStyle.Render("✓ Video ready: " + final.Job.ResultURL))
	case jobs.EventFailed:
		return fmt.Errorf("video job %s failed: %s", jobID, final.Job.ErrorMessage)
	default:
		fmt.Println(infoStyle.Render("Job already finished earlier in this session"))
	}
	return nil
}
