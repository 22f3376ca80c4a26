package negotiation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/rescp17/streamlite/pkg/media"
	webrtcPkg "github.com/rescp17/streamlite/pkg/webrtc"
)

const DefaultStatsInterval = time.Second

// Peer is the part of a peer connection the client drives.
type Peer interface {
	AddTrack(track webrtc.TrackLocal) error
	AddRecvOnly(kind webrtc.RTPCodecType) error
	CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error)
	SetRemoteDescription(answer webrtc.SessionDescription) error
	OnStateChange(f func(webrtcPkg.ConnectionState))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OutboundVideoStats() (webrtcPkg.OutboundStats, bool, error)
	Close() error
}

// PeerFactory creates a fresh peer connection for each session.
type PeerFactory func() (Peer, error)

// Offer is the body of the negotiation request.
type Offer struct {
	SDP         string `json:"sdp"`
	Type        string `json:"type"`
	StreamKey   string `json:"streamKey"`
	Broadcaster bool   `json:"broadcaster"`
}

// Signaler exchanges one offer for one answer.
type Signaler interface {
	SendOffer(ctx context.Context, offer Offer) (*webrtc.SessionDescription, error)
}

// RoomChannel announces presence in a stream's room.
type RoomChannel interface {
	Join(streamKey string) error
	Leave(streamKey string) error
}

type Config struct {
	Peers    PeerFactory
	Signaler Signaler
	// Media is required for Broadcaster sessions.
	Media media.Source
	// Room is optional.
	Room     RoomChannel
	Reporter Reporter
	// OnRemoteTrack receives each track of a Viewer session on its own
	// goroutine. When nil, received RTP is drained and discarded.
	OnRemoteTrack func(track *webrtc.TrackRemote)

	StatsInterval time.Duration
}

// Client owns at most one live session. Starting a new session stops the
// previous one first.
type Client struct {
	cfg Config

	mu      sync.Mutex
	current *Session
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Peers == nil {
		return nil, errors.New("peer factory is required")
	}
	if cfg.Signaler == nil {
		return nil, errors.New("signaler is required")
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter{}
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	return &Client{cfg: cfg}, nil
}

// Current returns the live session, or nil.
func (c *Client) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) isCurrent(s *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == s
}

// StartSession stops any live session, then negotiates a new one in the
// given role. On error every resource acquired for the attempt is released.
func (c *Client) StartSession(ctx context.Context, role Role, streamKey string, constraints media.Constraints) (*Session, error) {
	streamKey = strings.TrimSpace(streamKey)
	if streamKey == "" {
		return nil, ErrEmptyStreamKey
	}
	if role == Broadcaster && c.cfg.Media == nil {
		return nil, fmt.Errorf("%w: no media source configured", ErrMediaAcquisition)
	}

	s := newSession(role, streamKey, c.cfg.Reporter)
	c.mu.Lock()
	prev := c.current
	c.current = s
	c.mu.Unlock()

	if prev != nil {
		prev.logger().Info().Msg("superseded by new session")
		c.finish(prev)
	}

	s.logger().Info().Str("stream_key", streamKey).Msg("starting session")
	if err := c.negotiate(ctx, s, constraints); err != nil {
		s.logger().Warn().Err(err).Msg("session failed")
		c.StopSession(s)
		return nil, err
	}
	return s, nil
}

func (c *Client) negotiate(ctx context.Context, s *Session, constraints media.Constraints) error {
	var stream *media.Stream
	if s.role == Broadcaster {
		var err error
		stream, err = c.cfg.Media.Acquire(ctx, constraints)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMediaAcquisition, err)
		}
		if err := s.setStream(stream); err != nil {
			stream.Stop()
			return err
		}
	}

	peer, err := c.cfg.Peers()
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	if err := s.setPeer(peer); err != nil {
		_ = peer.Close()
		return err
	}
	peer.OnStateChange(s.setState)

	if s.role == Broadcaster {
		for _, t := range stream.Tracks() {
			if err := peer.AddTrack(t.Local()); err != nil {
				return err
			}
		}
	} else {
		peer.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			s.logger().Info().Str("kind", track.Kind().String()).Str("codec", track.Codec().MimeType).Msg("remote track")
			s.emit(func(r Reporter) { r.TrackReceived(track.Kind(), track.StreamID()) })
			go c.handleRemoteTrack(track)
		})
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if err := peer.AddRecvOnly(kind); err != nil {
				return err
			}
		}
	}

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}

	answer, err := c.cfg.Signaler.SendOffer(ctx, Offer{
		SDP:         offer.SDP,
		Type:        offer.Type.String(),
		StreamKey:   s.streamKey,
		Broadcaster: s.role == Broadcaster,
	})
	if err != nil {
		if errors.Is(err, ErrSignalingRequest) || errors.Is(err, ErrMalformedAnswer) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSignalingRequest, err)
	}

	// A late answer belongs to a session nobody owns any more.
	if !c.isCurrent(s) || s.Closed() {
		s.logger().Info().Msg("discarding answer for stopped session")
		return ErrSessionSuperseded
	}
	if answer == nil {
		return fmt.Errorf("%w: empty response", ErrMalformedAnswer)
	}
	if err := peer.SetRemoteDescription(*answer); err != nil {
		if s.Closed() {
			return ErrSessionSuperseded
		}
		return fmt.Errorf("%w: %w", ErrMalformedAnswer, err)
	}

	if s.role == Broadcaster {
		s.startSampling(c.cfg.StatsInterval, c.sampleBitrate)
	}
	if c.cfg.Room != nil {
		if err := c.cfg.Room.Join(s.streamKey); err != nil {
			s.logger().Warn().Err(err).Msg("failed to join room")
		} else {
			s.markJoined()
		}
	}
	s.logger().Info().Msg("session negotiated")
	return nil
}

func (c *Client) handleRemoteTrack(track *webrtc.TrackRemote) {
	if c.cfg.OnRemoteTrack != nil {
		c.cfg.OnRemoteTrack(track)
		return
	}
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

// sampleBitrate reads one stats snapshot and folds it into the session's
// sampler. Read errors are logged and the tick is skipped.
func (c *Client) sampleBitrate(s *Session) (int, bool) {
	s.mu.Lock()
	peer := s.peer
	closed := s.closed
	s.mu.Unlock()
	if closed || peer == nil {
		return 0, false
	}

	stats, found, err := peer.OutboundVideoStats()
	if err != nil {
		s.logger().Warn().Err(fmt.Errorf("%w: %w", ErrStatsRead, err)).Msg("skipping bitrate sample")
		return 0, false
	}
	if !found {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampler.add(stats)
}

// StopSession releases everything the session holds. It is safe to call
// with nil, more than once, and on sessions that never finished starting.
func (c *Client) StopSession(s *Session) {
	if s == nil {
		return
	}
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()
	c.finish(s)
}

func (c *Client) finish(s *Session) {
	stopped, joined := s.stop()
	if !stopped || !joined || c.cfg.Room == nil {
		return
	}
	if err := c.cfg.Room.Leave(s.streamKey); err != nil {
		s.logger().Warn().Err(err).Msg("failed to leave room")
	}
}

// Stop ends the live session, if any.
func (c *Client) Stop() {
	c.StopSession(c.Current())
}
