package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const oggPageDuration = 20 * time.Millisecond

var ivfCodecs = map[string]string{
	"VP80": webrtc.MimeTypeVP8,
	"VP90": webrtc.MimeTypeVP9,
	"AV01": webrtc.MimeTypeAV1,
}

// FileSource plays an IVF video file and an Ogg/Opus audio file in real
// time as if they were a camera and a microphone.
type FileSource struct {
	VideoPath string
	AudioPath string
	Loop      bool
}

func (s *FileSource) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: neither audio nor video requested", ErrNoDevice)
	}
	stream := &Stream{id: "streamlite-" + uuid.NewString()}

	if c.Video {
		track, settings, err := s.openVideo(stream.id)
		if err != nil {
			return nil, err
		}
		if c.Width > 0 && c.Height > 0 && (settings.Width != c.Width || settings.Height != c.Height) {
			log.Info().Str("module", "media").
				Int("want_width", c.Width).Int("want_height", c.Height).
				Int("width", settings.Width).Int("height", settings.Height).
				Msg("video resolution differs from ideal")
		}
		stream.tracks = append(stream.tracks, track)
		stream.settings = &settings
	}

	if c.Audio {
		track, err := s.openAudio(stream.id)
		if err != nil {
			stream.Stop()
			return nil, err
		}
		stream.tracks = append(stream.tracks, track)
	}
	return stream, nil
}

func openIVF(path string) (*os.File, *ivfreader.IVFReader, *ivfreader.IVFFileHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, nil, fmt.Errorf("failed to read IVF header: %w", err)
	}
	return f, reader, header, nil
}

func openOgg(path string) (*os.File, *oggreader.OggReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to read Ogg header: %w", err)
	}
	return f, reader, nil
}

func (s *FileSource) openVideo(streamID string) (*fileTrack, VideoSettings, error) {
	if s.VideoPath == "" {
		return nil, VideoSettings{}, fmt.Errorf("%w: video", ErrNoDevice)
	}
	f, reader, header, err := openIVF(s.VideoPath)
	if err != nil {
		return nil, VideoSettings{}, err
	}
	mime, ok := ivfCodecs[header.FourCC]
	if !ok {
		_ = f.Close()
		return nil, VideoSettings{}, fmt.Errorf("%w: IVF fourcc %q", ErrUnsupportedCodec, header.FourCC)
	}

	frameDuration := 33 * time.Millisecond
	frameRate := 30
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frameDuration = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
		frameRate = int(header.TimebaseDenominator / header.TimebaseNumerator)
	}

	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video", streamID)
	if err != nil {
		_ = f.Close()
		return nil, VideoSettings{}, fmt.Errorf("failed to create video track: %w", err)
	}

	track := newFileTrack(webrtc.RTPCodecTypeVideo, local)
	go track.pump(func(ctx context.Context) error {
		defer func() { _ = f.Close() }()
		ticker := time.NewTicker(frameDuration)
		defer ticker.Stop()
		for {
			frame, _, err := reader.ParseNextFrame()
			if errors.Is(err, io.EOF) && s.Loop {
				_ = f.Close()
				if f, reader, _, err = openIVF(s.VideoPath); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			if !track.Enabled() {
				continue
			}
			if err := local.WriteSample(pionmedia.Sample{Data: frame, Duration: frameDuration}); err != nil {
				return err
			}
		}
	})

	settings := VideoSettings{Width: int(header.Width), Height: int(header.Height), FrameRate: frameRate}
	return track, settings, nil
}

func (s *FileSource) openAudio(streamID string) (*fileTrack, error) {
	if s.AudioPath == "" {
		return nil, fmt.Errorf("%w: audio", ErrNoDevice)
	}
	f, reader, err := openOgg(s.AudioPath)
	if err != nil {
		return nil, err
	}

	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	track := newFileTrack(webrtc.RTPCodecTypeAudio, local)
	go track.pump(func(ctx context.Context) error {
		defer func() { _ = f.Close() }()
		var lastGranule uint64
		ticker := time.NewTicker(oggPageDuration)
		defer ticker.Stop()
		for {
			page, header, err := reader.ParseNextPage()
			if errors.Is(err, io.EOF) && s.Loop {
				_ = f.Close()
				if f, reader, err = openOgg(s.AudioPath); err != nil {
					return err
				}
				lastGranule = 0
				continue
			}
			if err != nil {
				return err
			}
			// Samples at 48kHz since the previous page.
			sampleCount := float64(header.GranulePosition - lastGranule)
			lastGranule = header.GranulePosition
			duration := time.Duration((sampleCount / 48000) * float64(time.Second))

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			if !track.Enabled() {
				continue
			}
			if err := local.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
				return err
			}
		}
	})
	return track, nil
}

type fileTrack struct {
	kind  webrtc.RTPCodecType
	local *webrtc.TrackLocalStaticSample

	enabled atomic.Bool
	stopped atomic.Bool
	once    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func newFileTrack(kind webrtc.RTPCodecType, local *webrtc.TrackLocalStaticSample) *fileTrack {
	ctx, cancel := context.WithCancel(context.Background())
	t := &fileTrack{kind: kind, local: local, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	t.enabled.Store(true)
	return t
}

func (t *fileTrack) pump(run func(ctx context.Context) error) {
	defer close(t.done)
	if err := run(t.ctx); err != nil && !errors.Is(err, io.EOF) {
		log.Error().Err(err).Str("module", "media").Str("kind", t.kind.String()).Msg("track pump stopped")
		return
	}
	log.Debug().Str("module", "media").Str("kind", t.kind.String()).Msg("track pump finished")
}

func (t *fileTrack) ID() string                { return t.local.ID() }
func (t *fileTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *fileTrack) Local() webrtc.TrackLocal  { return t.local }
func (t *fileTrack) Enabled() bool             { return t.enabled.Load() }
func (t *fileTrack) SetEnabled(enabled bool)   { t.enabled.Store(enabled) }
func (t *fileTrack) Stopped() bool             { return t.stopped.Load() }

// Stop cancels the pump and waits for it to release the file.
func (t *fileTrack) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		t.cancel()
		<-t.done
	})
}
