package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rescp17/streamlite/pkg/ui"
	"github.com/rescp17/streamlite/pkg/upload"
)

func newUploadCmd(c *cli) *cobra.Command {
	var form upload.Form
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a video or audio file to the media site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form.FilePath = args[0]
			v, err := upload.Validate(form)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Uploads may run far longer than request_timeout.
			uploader := upload.NewUploader(&http.Client{}, c.cfg.SiteURL)
			program := tea.NewProgram(ui.NewUploadModel(v.Name, v.Size), tea.WithContext(ctx))
			go func() {
				err := uploader.Submit(ctx, v, func(sent, total int64) {
					program.Send(ui.UploadProgressMsg{Sent: sent, Total: total})
				})
				program.Send(ui.UploadDoneMsg{Err: err})
			}()

			final, err := program.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			m, ok := final.(ui.UploadModel)
			switch {
			case !ok:
				return nil
			case m.Cancelled():
				return errors.New("upload cancelled")
			case m.Err() != nil:
				return m.Err()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s uploaded as %s\n", v.Name, v.Type)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&form.Title, "title", "", "media title (required)")
	flags.StringVar(&form.Description, "description", "", "media description")
	flags.IntVar(&form.CategoryID, "category", 0, "category id")
	flags.BoolVar(&form.Public, "public", false, "make the media public")
	return cmd
}
