package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"contentdesk/internal/app"
	"contentdesk/internal/distribution"
)

var (
	publishTitle       string
	publishDescription string
	publishTags        []string
	publishPrivacy     string
)

var publishCmd = &cobra.Command{
	Use:   "publish <video-url>",
	Short: "Upload a finished video to YouTube",
	Long:  `Download a finished short-form video and upload it to YouTube. Run "contentdesk auth youtube" first.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().StringVarP(&publishTitle, "title", "t", "", "Video title")
	publishCmd.Flags().StringVarP(&publishDescription, "description", "d", "", "Video description")
	publishCmd.Flags().StringSliceVar(&publishTags, "tags", nil, "Tags (defaults from config)")
	publishCmd.Flags().StringVar(&publishPrivacy, "privacy", "", "private, unlisted or public (default from config)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if publishTitle == "" {
		return errors.New("--title is required")
	}

	svc, err := loadService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	var resp *distribution.UploadResponse
	err = runWithSpinner("Publishing video", func() error {
		var perr error
		resp, perr = app.NewPipeline(svc).Publish(ctx, app.PublishRequest{
			VideoURL:    args[0],
			Title:       publishTitle,
			Description: publishDescription,
			Tags:        publishTags,
			Privacy:     publishPrivacy,
		})
		return perr
	})
	if err != nil {
		return err
	}

	fmt.Println(successStyle.Render("  " + resp.URL))
	return nil
}
