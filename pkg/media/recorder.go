package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

// rtpReader is satisfied by *webrtc.TrackRemote.
type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Recorder saves received tracks to disk: VP8 as IVF, Opus as Ogg.
type Recorder struct {
	Dir string
}

// Record copies a remote track into a file until the track ends or ctx is
// cancelled. It blocks; run it on its own goroutine.
func (r *Recorder) Record(ctx context.Context, track *webrtc.TrackRemote) error {
	w, path, err := r.writerFor(track.Codec().MimeType, fmt.Sprintf("%s-%s", track.StreamID(), track.Kind()))
	if err != nil {
		return err
	}
	log.Info().Str("module", "media").Str("path", path).Msg("recording track")
	return copyRTP(ctx, track, w)
}

func (r *Recorder) writerFor(mimeType, name string) (pionmedia.Writer, string, error) {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create record dir: %w", err)
	}
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		path := filepath.Join(r.Dir, name+".ivf")
		w, err := ivfwriter.New(path)
		return w, path, err
	case strings.EqualFold(mimeType, webrtc.MimeTypeOpus):
		path := filepath.Join(r.Dir, name+".ogg")
		w, err := oggwriter.New(path, 48000, 2)
		return w, path, err
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedCodec, mimeType)
	}
}

func copyRTP(ctx context.Context, src rtpReader, w pionmedia.Writer) error {
	defer func() {
		if err := w.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media").Msg("failed to close recording")
		}
	}()
	for {
		if ctx.Err() != nil {
			return nil
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			return nil
		}
		if err := w.WriteRTP(pkt); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
	}
}
