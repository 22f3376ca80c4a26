package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescp17/streamlite/internal/style"
	"github.com/rescp17/streamlite/pkg/health"
)

var errCheckFailed = errors.New("check failed")

func newCheckCmd(c *cli) *cobra.Command {
	checker := &health.Checker{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the signaling server and site are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			failed := false
			for _, target := range []struct{ label, url string }{
				{"signaling server", c.cfg.SignalingURL},
				{"site", c.cfg.SiteURL},
			} {
				if !printCheck(cmd.Context(), out, checker, target.label, target.url) {
					failed = true
				}
			}
			if failed {
				return errCheckFailed
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&checker.Timeout, "timeout", health.DefaultTimeout, "dial and handshake timeout")
	return cmd
}

func printCheck(ctx context.Context, out io.Writer, checker *health.Checker, label, url string) bool {
	ok := style.ConnectedStyle.Render("✔")
	bad := style.ErrorStyle.Render("✘")

	fmt.Fprintf(out, "Checking %s %s...\n", label, url)
	report, err := checker.Check(ctx, url)
	if err != nil {
		fmt.Fprintf(out, "%s %v\n\n", bad, err)
		return false
	}
	fmt.Fprintf(out, "%s %s reachable in %s\n", ok, report.Address, report.DialTime.Round(time.Millisecond))
	if !report.TLS {
		fmt.Fprintln(out)
		return true
	}
	if report.TLSError != nil {
		fmt.Fprintf(out, "%s invalid or missing TLS certificate: %v\n\n", bad, report.TLSError)
		return false
	}
	fmt.Fprintf(out, "%s %s certificate for %s\n", ok, report.TLSVersion, strings.Join(report.DNSNames, ", "))
	fmt.Fprintf(out, "  subject: %s\n  issuer:  %s\n  expires: %s\n\n", report.Subject, report.Issuer, report.NotAfter.Format("2006-01-02"))
	return true
}
