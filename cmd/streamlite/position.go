package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rescp17/streamlite/internal/util"
	"github.com/rescp17/streamlite/pkg/playback"
)

func newPositionCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Inspect and update saved playback positions",
	}

	tracker := func(kind, mediaID string) (*playback.Tracker, error) {
		k, err := playback.ParseKind(kind)
		if err != nil {
			return nil, err
		}
		return playback.NewTracker(playback.NewFileStore(c.cfg.PositionFile), k, mediaID)
	}

	seconds := func(arg string) (float64, error) {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid seconds %q: %w", arg, err)
		}
		return v, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <video|audio> <media-id>",
			Short: "Print the saved position",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := tracker(args[0], args[1])
				if err != nil {
					return err
				}
				saved, ok, err := t.Saved()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: no saved position\n", t.Key())
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", t.Key(), util.FormatPosition(saved))
				return nil
			},
		},
		&cobra.Command{
			Use:   "record <video|audio> <media-id> <seconds>",
			Short: "Save a playback position (ignored under 5 seconds)",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := tracker(args[0], args[1])
				if err != nil {
					return err
				}
				at, err := seconds(args[2])
				if err != nil {
					return err
				}
				saved, err := t.Record(at)
				if err != nil {
					return err
				}
				if saved {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: saved %s\n", t.Key(), util.FormatPosition(at))
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: not saved, too close to the start\n", t.Key())
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "resume <video|audio> <media-id> <duration>",
			Short: "Print where playback of a media of the given duration would resume",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := tracker(args[0], args[1])
				if err != nil {
					return err
				}
				duration, err := seconds(args[2])
				if err != nil {
					return err
				}
				at, ok, err := t.Resume(duration)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: start from the beginning\n", t.Key())
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: resume at %s\n", t.Key(), util.FormatPosition(at))
				return nil
			},
		},
	)
	return cmd
}
