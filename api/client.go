package api

import (
	"net/http"
	"strings"
	"time"
)

const clientIDHeader = "X-Client-ID"

const DefaultTimeout = 30 * time.Second

// clientIDInjector is a custom http.RoundTripper that tags every request
// with the process's client ID.
type clientIDInjector struct {
	clientID string
	next     http.RoundTripper
}

func (t *clientIDInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(req.Context())
	req.Header.Set(clientIDHeader, t.clientID)
	return t.next.RoundTrip(req)
}

// Client is a stateless HTTP client for the signaling server's API.
type Client struct {
	HttpClient *http.Client
	baseURL    string
}

// NewClient creates a new API client that injects clientID into every
// request. A non-positive timeout uses DefaultTimeout.
func NewClient(clientID, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		HttpClient: &http.Client{
			Timeout: timeout,
			Transport: &clientIDInjector{
				clientID: clientID,
				next:     http.DefaultTransport,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) BaseURL() string {
	return c.baseURL
}
