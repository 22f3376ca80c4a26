package health

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 2 * time.Second

var ErrUnreachable = errors.New("signaling host unreachable")

// Report is what Check learned about a signaling endpoint.
type Report struct {
	Address   string
	Reachable bool
	DialTime  time.Duration

	// TLS fields are only set for https endpoints.
	TLS        bool
	TLSError   error
	Subject    string
	Issuer     string
	DNSNames   []string
	NotAfter   time.Time
	TLSVersion string
}

// Checker dials the signaling host and, for https, completes a TLS
// handshake to inspect the certificate.
type Checker struct {
	Timeout time.Duration
	// TLSConfig overrides the handshake config. ServerName is filled in
	// from the URL when empty.
	TLSConfig *tls.Config
}

// HostPort resolves the dial address of a signaling URL, defaulting the
// port from the scheme.
func HostPort(rawURL string) (host, addr string, secure bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		secure = true
	case "http", "ws":
	default:
		return "", "", false, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host = u.Hostname()
	if host == "" {
		return "", "", false, fmt.Errorf("url %q has no host", rawURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if secure {
			port = "443"
		}
	}
	return host, net.JoinHostPort(host, port), secure, nil
}

// Check returns ErrUnreachable when the TCP dial fails. A failed TLS
// handshake is reported in Report.TLSError, not as an error.
func (c *Checker) Check(ctx context.Context, rawURL string) (*Report, error) {
	host, addr, secure, err := HostPort(rawURL)
	if err != nil {
		return nil, err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	report := &Report{Address: addr, TLS: secure}
	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		log.Debug().Str("module", "health").Str("addr", addr).Err(err).Msg("dial failed")
		return report, fmt.Errorf("%w: %s: %w", ErrUnreachable, addr, err)
	}
	defer conn.Close()
	report.Reachable = true
	report.DialTime = time.Since(start)

	if !secure {
		return report, nil
	}

	cfg := &tls.Config{}
	if c.TLSConfig != nil {
		cfg = c.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	hsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		report.TLSError = err
		return report, nil
	}

	state := tlsConn.ConnectionState()
	report.TLSVersion = tls.VersionName(state.Version)
	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		report.Subject = leaf.Subject.String()
		report.Issuer = leaf.Issuer.String()
		report.DNSNames = leaf.DNSNames
		report.NotAfter = leaf.NotAfter
	}
	return report, nil
}
