package negotiation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rescp17/streamlite/pkg/media"
	webrtcPkg "github.com/rescp17/streamlite/pkg/webrtc"
)

type Role int

const (
	Viewer Role = iota
	Broadcaster
)

func (r Role) String() string {
	if r == Broadcaster {
		return "broadcaster"
	}
	return "viewer"
}

// Session is one negotiation attempt and the peer connection it produced.
type Session struct {
	id        string
	role      Role
	streamKey string
	reporter  Reporter

	mu      sync.Mutex
	state   webrtcPkg.ConnectionState
	peer    Peer
	stream  *media.Stream
	sampler bitrateSampler
	closed  bool
	joined  bool

	cancelSampling context.CancelFunc
	samplingDone   chan struct{}

	// emitMu orders telemetry against stop so nothing is reported after
	// stop returns.
	emitMu sync.Mutex
	muted  bool
}

func newSession(role Role, streamKey string, reporter Reporter) *Session {
	return &Session{
		id:        uuid.NewString(),
		role:      role,
		streamKey: streamKey,
		reporter:  reporter,
		state:     webrtcPkg.StateNew,
	}
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Role() Role        { return s.role }
func (s *Session) StreamKey() string { return s.streamKey }

func (s *Session) State() webrtcPkg.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LocalStream is the capture handle of a Broadcaster session, nil otherwise.
func (s *Session) LocalStream() *media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SetTrackEnabled mutes or unmutes every local track of the given kind.
func (s *Session) SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.stream == nil {
		return fmt.Errorf("no local %s track", kind)
	}
	tracks := s.stream.TracksOf(kind)
	if len(tracks) == 0 {
		return fmt.Errorf("no local %s track", kind)
	}
	for _, t := range tracks {
		t.SetEnabled(enabled)
	}
	return nil
}

func (s *Session) logger() *zerolog.Logger {
	l := log.With().Str("module", "negotiation").Str("session", s.id).Str("role", s.role.String()).Logger()
	return &l
}

func (s *Session) setStream(stream *media.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionSuperseded
	}
	s.stream = stream
	return nil
}

func (s *Session) setPeer(peer Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionSuperseded
	}
	s.peer = peer
	return nil
}

func (s *Session) markJoined() {
	s.mu.Lock()
	s.joined = true
	s.mu.Unlock()
}

// setState republishes a state observed on the peer connection. Events
// after Closed are ignored.
func (s *Session) setState(next webrtcPkg.ConnectionState) {
	s.mu.Lock()
	if s.closed || s.state.Terminal() || s.state == next {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if !prev.CanTransition(next) {
		s.logger().Warn().Str("from", prev.String()).Str("to", next.String()).Msg("unexpected state transition")
	} else {
		s.logger().Info().Str("state", next.String()).Msg("connection state")
	}
	s.emit(func(r Reporter) { r.ConnectionStateChanged(next) })
}

func (s *Session) emit(f func(Reporter)) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.muted || s.reporter == nil {
		return
	}
	f(s.reporter)
}

// startSampling runs sample on a fixed period until the session stops.
func (s *Session) startSampling(interval time.Duration, sample func(*Session) (int, bool)) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancelSampling = cancel
	s.samplingDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if kbps, ok := sample(s); ok {
					s.emit(func(r Reporter) { r.BitrateSampled(kbps) })
				}
			}
		}
	}()
}

// stop tears the session down once. It reports whether this call did the
// work and whether the room had been joined.
func (s *Session) stop() (stopped, joined bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, false
	}
	s.closed = true
	cancel, done := s.cancelSampling, s.samplingDone
	peer, stream := s.peer, s.stream
	joined = s.joined
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	stream.Stop()
	if peer != nil {
		if err := peer.Close(); err != nil {
			s.logger().Error().Err(err).Msg("close error")
		}
	}

	s.emitMu.Lock()
	if s.reporter != nil {
		s.reporter.ConnectionStateChanged(webrtcPkg.StateClosed)
	}
	s.muted = true
	s.emitMu.Unlock()

	s.mu.Lock()
	s.state = webrtcPkg.StateClosed
	s.mu.Unlock()

	s.logger().Info().Msg("session stopped")
	return true, joined
}
