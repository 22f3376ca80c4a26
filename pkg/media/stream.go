package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

var (
	ErrNoDevice         = errors.New("no source for requested media kind")
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Constraints describes the capture the caller asks for. Width, Height and
// FrameRate are ideals; a source reports what it actually produces through
// Stream.VideoSettings.
type Constraints struct {
	Audio     bool
	Video     bool
	Width     int
	Height    int
	FrameRate int
}

// DefaultConstraints mirrors a 720p30 camera with microphone.
func DefaultConstraints() Constraints {
	return Constraints{Audio: true, Video: true, Width: 1280, Height: 720, FrameRate: 30}
}

// Source acquires local capture tracks.
type Source interface {
	Acquire(ctx context.Context, c Constraints) (*Stream, error)
}

// Track is one local capture track that can be attached to a peer connection.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Local() webrtc.TrackLocal
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
	Stopped() bool
}

type VideoSettings struct {
	Width     int
	Height    int
	FrameRate int
}

// Stream owns a set of local tracks.
type Stream struct {
	id       string
	tracks   []Track
	settings *VideoSettings
}

func NewStream(id string, tracks ...Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []Track { return s.tracks }

// TracksOf returns the tracks of one media kind.
func (s *Stream) TracksOf(kind webrtc.RTPCodecType) []Track {
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

func (s *Stream) VideoSettings() (VideoSettings, bool) {
	if s.settings == nil {
		return VideoSettings{}, false
	}
	return *s.settings, true
}

// Stop stops every track. Safe to call more than once.
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	for _, t := range s.tracks {
		t.Stop()
	}
}
