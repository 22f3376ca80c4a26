package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	MTU uint = 1400
)

var (
	ErrConnectionClosed = errors.New("peer connection is closed")
	ErrNoStats          = errors.New("stats interceptor not installed")
)

// DefaultICEServers are the public STUN servers used when none are configured.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// Config holds the configuration for creating a new Connection.
type Config struct {
	ICEServers []webrtc.ICEServer
}

// ConfigFromURLs builds a Config with one ICE server entry per URL.
func ConfigFromURLs(urls []string) Config {
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return Config{ICEServers: servers}
}

// OutboundStats is a point-in-time reading of the outbound video RTP
// counters. Timestamp is in milliseconds.
type OutboundStats struct {
	BytesSent uint64
	Timestamp float64
}

type WebRTCAPI struct {
	api *webrtc.API

	// newMu serializes peer connection creation so the stats getter handed
	// out during NewPeerConnection lands on the right Connection.
	newMu  sync.Mutex
	getter stats.Getter
}

// NewWebRTCAPI builds a pion API with the default codecs and interceptors
// registered, so media tracks can be negotiated and RTP stats are collected.
func NewWebRTCAPI() (*WebRTCAPI, error) {
	a := &WebRTCAPI{}

	settings := webrtc.SettingEngine{}
	settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryOnly)
	settings.SetReceiveMTU(MTU)

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := registerInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	statsInterceptor, err := stats.NewInterceptor()
	if err != nil {
		return nil, fmt.Errorf("failed to create stats interceptor: %w", err)
	}
	// Called synchronously from inside NewPeerConnection.
	statsInterceptor.OnNewPeerConnection(func(_ string, g stats.Getter) {
		a.getter = g
	})
	registry.Add(statsInterceptor)

	a.api = webrtc.NewAPI(
		webrtc.WithSettingEngine(settings),
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
	)
	return a, nil
}

// registerInterceptors is webrtc.RegisterDefaultInterceptors minus the
// stats interceptor, which NewWebRTCAPI installs itself to keep the getter.
func registerInterceptors(m *webrtc.MediaEngine, registry *interceptor.Registry) error {
	if err := webrtc.ConfigureNack(m, registry); err != nil {
		return err
	}
	if err := webrtc.ConfigureRTCPReports(registry); err != nil {
		return err
	}
	if err := webrtc.ConfigureSimulcastExtensionHeaders(m); err != nil {
		return err
	}
	return webrtc.ConfigureTWCCSender(m, registry)
}

// Connection wraps a single WebRTC peer connection.
type Connection struct {
	peerConnection *webrtc.PeerConnection
	stats          stats.Getter

	mu     sync.Mutex
	closed bool
}

// NewConnection creates a peer connection. A nil ICE server list falls back
// to DefaultICEServers; an empty non-nil list gathers host candidates only.
func (a *WebRTCAPI) NewConnection(config Config) (*Connection, error) {
	if config.ICEServers == nil {
		config = ConfigFromURLs(DefaultICEServers)
	}
	a.newMu.Lock()
	a.getter = nil
	pc, err := a.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: config.ICEServers,
	})
	getter := a.getter
	a.newMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			log.Debug().Str("module", "webrtc").Str("candidate", c.String()).Msg("ICE candidate")
		}
	})
	return &Connection{peerConnection: pc, stats: getter}, nil
}

// AddTrack attaches a local track and drains its RTCP so interceptors
// (NACK, reports) keep working.
func (c *Connection) AddTrack(track webrtc.TrackLocal) error {
	sender, err := c.peerConnection.AddTrack(track)
	if err != nil {
		return fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// AddRecvOnly requests reception of one media kind without sending any.
func (c *Connection) AddRecvOnly(kind webrtc.RTPCodecType) error {
	_, err := c.peerConnection.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return fmt.Errorf("failed to add %s transceiver: %w", kind, err)
	}
	return nil
}

// CreateOffer creates an offer, applies it as the local description and
// waits for ICE gathering so the returned SDP carries every candidate.
func (c *Connection) CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error) {
	offer, err := c.peerConnection.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("fail to createOffer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.peerConnection)
	if err := c.peerConnection.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("fail to set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.peerConnection.LocalDescription(), nil
}

func (c *Connection) SetRemoteDescription(answer webrtc.SessionDescription) error {
	if err := c.peerConnection.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

func (c *Connection) OnStateChange(f func(ConnectionState)) {
	c.peerConnection.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		f(FromPeerConnectionState(s))
	})
}

func (c *Connection) OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.peerConnection.OnTrack(f)
}

// OutboundVideoStats sums the bytes sent on every video sender encoding,
// as counted by the stats interceptor. found is false when no video is
// being sent yet.
func (c *Connection) OutboundVideoStats() (out OutboundStats, found bool, err error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return OutboundStats{}, false, ErrConnectionClosed
	}
	if c.stats == nil {
		return OutboundStats{}, false, ErrNoStats
	}

	out.Timestamp = float64(time.Now().UnixMilli())
	for _, sender := range c.peerConnection.GetSenders() {
		track := sender.Track()
		if track == nil || track.Kind() != webrtc.RTPCodecTypeVideo {
			continue
		}
		for _, enc := range sender.GetParameters().Encodings {
			s := c.stats.Get(uint32(enc.SSRC))
			if s == nil || s.OutboundRTPStreamStats.PacketsSent == 0 {
				continue
			}
			found = true
			out.BytesSent += s.OutboundRTPStreamStats.BytesSent
		}
	}
	return out, found, nil
}

// Close gracefully shuts down the WebRTC connection. It is safe to call
// more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	log.Info().Str("module", "webrtc").Msg("closing peer connection")
	return c.peerConnection.Close()
}
