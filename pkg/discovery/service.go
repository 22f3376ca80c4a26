package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	DefaultServiceType = "_streamlite._tcp"
	DefaultDomain      = "local"
)

// ServiceInfo describes one advertised signaling server.
type ServiceInfo struct {
	Name   string // instance name
	Type   string // service type, e.g. "_streamlite._tcp"
	Domain string // domain, e.g. "local"
	Addr   net.IP
	Port   int
	// Text carries "scheme" (http or https) and "path" of the offer
	// endpoint's base.
	Text map[string]string
}

// SignalingURL builds the base URL a negotiation client should POST to.
func (s ServiceInfo) SignalingURL() string {
	scheme := s.Text["scheme"]
	if scheme == "" {
		scheme = "https"
	}
	path := s.Text["path"]
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	host := "localhost"
	if s.Addr != nil {
		host = s.Addr.String()
	}
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(host, strconv.Itoa(s.Port)), path)
}

// DiscoveryResult is either a full snapshot of known services or an error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, service string) <-chan DiscoveryResult
}

// ServiceName is the fully qualified browse name for a type and domain.
func ServiceName(serviceType, domain string) string {
	return fmt.Sprintf("%s.%s.", serviceType, domain)
}
