package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rescp17/streamlite/pkg/discovery"
	"github.com/rescp17/streamlite/pkg/ui"
)

func newDiscoverCmd(c *cli) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find signaling servers on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			service := discovery.ServiceName(c.cfg.DiscoveryService, discovery.DefaultDomain)
			model := ui.NewDiscoverModel(ctx, &discovery.MDNSAdapter{}, service)
			final, err := tea.NewProgram(model).Run()
			if err != nil {
				return err
			}
			svc, ok := final.(ui.DiscoverModel).Selected()
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexport STREAMLITE_SIGNALING_URL=%s\n", svc.Name, svc.SignalingURL())
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to browse")
	return cmd
}

func newAnnounceCmd(c *cli) *cobra.Command {
	var info discovery.ServiceInfo
	var scheme, path string
	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Advertise a signaling server on the local network",
		Long:  "Advertise a signaling server over mDNS on behalf of a server that cannot do it itself. Runs until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if info.Port <= 0 || info.Port > 65535 {
				return fmt.Errorf("invalid port %d", info.Port)
			}
			if info.Name == "" {
				host, err := os.Hostname()
				if err != nil {
					return err
				}
				info.Name = strings.Split(host, ".")[0]
			}
			info.Type = c.cfg.DiscoveryService
			info.Domain = discovery.DefaultDomain
			info.Text = map[string]string{"scheme": scheme, "path": path}

			fmt.Fprintf(cmd.OutOrStdout(), "announcing %s on port %d, press ctrl+c to stop\n", info.Name, info.Port)
			err := (&discovery.MDNSAdapter{}).Announce(cmd.Context(), info)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&info.Name, "name", "", "instance name (default hostname)")
	flags.IntVar(&info.Port, "port", 5443, "signaling server port")
	flags.StringVar(&scheme, "scheme", "https", "signaling server scheme")
	flags.StringVar(&path, "path", "/webrtc", "path of the negotiation endpoint base")
	return cmd
}
