package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rescp17/streamlite/internal/config"
)

// cli holds state shared by all commands once flags are parsed.
type cli struct {
	configPath string
	cfg        *config.Config
	logFile    io.Closer
}

func (c *cli) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	c.cfg = cfg

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	// The TUI owns the terminal, so logs go to a file.
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	c.logFile = f
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	return nil
}

func (c *cli) close(*cobra.Command, []string) {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:               "streamlite",
		Short:             "Broadcast and watch WebRTC live streams from the terminal",
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
		PersistentPostRun: c.close,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	flags.String("signaling-url", "", "base URL of the negotiation endpoint")
	flags.String("room-url", "", "websocket URL of the room channel (chat, viewer counts)")
	flags.String("site-url", "", "base URL of the media site, used by upload")
	flags.StringSlice("ice-server", nil, "STUN/TURN server URL, repeatable")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "file that receives logs")

	cmd.AddCommand(
		newBroadcastCmd(c),
		newViewCmd(c),
		newUploadCmd(c),
		newPositionCmd(c),
		newDiscoverCmd(c),
		newAnnounceCmd(c),
		newCheckCmd(c),
	)
	return cmd
}

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, newRootCmd()); err != nil {
		stop()
		os.Exit(1)
	}
}
