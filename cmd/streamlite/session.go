package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rescp17/streamlite/internal/app"
	"github.com/rescp17/streamlite/pkg/media"
	"github.com/rescp17/streamlite/pkg/negotiation"
)

func defaultUsername() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "anonymous"
}

func newBroadcastCmd(c *cli) *cobra.Command {
	var (
		username         string
		noAudio, noVideo bool
		constraints      = media.DefaultConstraints()
	)
	cmd := &cobra.Command{
		Use:   "broadcast <stream-key>",
		Short: "Publish local media under a stream key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			constraints.Audio = !noAudio
			constraints.Video = !noVideo
			a, err := app.New(cmd.Context(), c.cfg, app.Options{
				Role:        negotiation.Broadcaster,
				StreamKey:   args[0],
				Username:    username,
				Constraints: constraints,
			})
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.String("video", "", "IVF file (VP8/VP9/AV1) played as the camera")
	flags.String("audio", "", "Ogg/Opus file played as the microphone")
	flags.Bool("loop", true, "restart media files when they end")
	flags.BoolVar(&noAudio, "no-audio", false, "do not send audio")
	flags.BoolVar(&noVideo, "no-video", false, "do not send video")
	flags.IntVar(&constraints.Width, "width", constraints.Width, "ideal video width")
	flags.IntVar(&constraints.Height, "height", constraints.Height, "ideal video height")
	flags.IntVar(&constraints.FrameRate, "fps", constraints.FrameRate, "ideal frame rate")
	flags.StringVar(&username, "username", defaultUsername(), "name shown in chat")
	return cmd
}

func newViewCmd(c *cli) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "view <stream-key>",
		Short: "Watch the stream published under a stream key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), c.cfg, app.Options{
				Role:      negotiation.Viewer,
				StreamKey: args[0],
				Username:  username,
			})
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().String("record-dir", "", "save received tracks to this directory")
	cmd.Flags().StringVar(&username, "username", defaultUsername(), "name shown in chat")
	return cmd
}
