package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeIVF writes a minimal IVF file with the given fourcc and frames.
func writeIVF(t *testing.T, fourcc string, width, height uint16, frames int) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("DKIF")
	_ = binary.Write(&buf, binary.LittleEndian, uint16(0))  // version
	_ = binary.Write(&buf, binary.LittleEndian, uint16(32)) // header size
	buf.WriteString(fourcc)
	_ = binary.Write(&buf, binary.LittleEndian, width)
	_ = binary.Write(&buf, binary.LittleEndian, height)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(30)) // timebase denominator
	_ = binary.Write(&buf, binary.LittleEndian, uint32(1))  // timebase numerator
	_ = binary.Write(&buf, binary.LittleEndian, uint32(frames))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))

	payload := []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}
	for i := 0; i < frames; i++ {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
		_ = binary.Write(&buf, binary.LittleEndian, uint64(i))
		buf.Write(payload)
	}

	path := filepath.Join(t.TempDir(), "video.ivf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeOgg(t *testing.T, packets int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.ogg")
	w, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	for i := 0; i < packets; i++ {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: []byte{0xfc, 0xff, 0xfe},
		}))
	}
	require.NoError(t, w.Close())
	return path
}

func TestFileSource_NothingRequested(t *testing.T) {
	src := &FileSource{}
	_, err := src.Acquire(context.Background(), Constraints{})
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestFileSource_MissingVideoFile(t *testing.T) {
	src := &FileSource{}
	_, err := src.Acquire(context.Background(), Constraints{Video: true})
	assert.ErrorIs(t, err, ErrNoDevice)

	src = &FileSource{VideoPath: filepath.Join(t.TempDir(), "missing.ivf")}
	_, err = src.Acquire(context.Background(), Constraints{Video: true})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFileSource_UnsupportedFourCC(t *testing.T) {
	src := &FileSource{VideoPath: writeIVF(t, "H264", 640, 360, 1)}
	_, err := src.Acquire(context.Background(), Constraints{Video: true})
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestFileSource_VideoAndAudio(t *testing.T) {
	src := &FileSource{
		VideoPath: writeIVF(t, "VP80", 640, 360, 5),
		AudioPath: writeOgg(t, 5),
	}

	stream, err := src.Acquire(context.Background(), DefaultConstraints())
	require.NoError(t, err)
	defer stream.Stop()

	require.Len(t, stream.Tracks(), 2)
	require.Len(t, stream.TracksOf(webrtc.RTPCodecTypeVideo), 1)
	require.Len(t, stream.TracksOf(webrtc.RTPCodecTypeAudio), 1)

	settings, ok := stream.VideoSettings()
	require.True(t, ok)
	assert.Equal(t, VideoSettings{Width: 640, Height: 360, FrameRate: 30}, settings)

	video := stream.TracksOf(webrtc.RTPCodecTypeVideo)[0]
	assert.Equal(t, webrtc.MimeTypeVP8, video.Local().(*webrtc.TrackLocalStaticSample).Codec().MimeType)
	assert.Equal(t, stream.ID(), video.Local().StreamID())
	assert.True(t, video.Enabled())
	video.SetEnabled(false)
	assert.False(t, video.Enabled())
}

func TestFileSource_AudioFailureReleasesVideo(t *testing.T) {
	src := &FileSource{VideoPath: writeIVF(t, "VP80", 640, 360, 100)}
	_, err := src.Acquire(context.Background(), Constraints{Audio: true, Video: true})
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestStream_StopIsIdempotent(t *testing.T) {
	src := &FileSource{VideoPath: writeIVF(t, "VP80", 320, 240, 100), Loop: true}
	stream, err := src.Acquire(context.Background(), Constraints{Video: true})
	require.NoError(t, err)

	stream.Stop()
	stream.Stop()
	for _, track := range stream.Tracks() {
		assert.True(t, track.Stopped())
	}

	var nilStream *Stream
	assert.NotPanics(t, nilStream.Stop)
}

type fakeRTPReader struct {
	packets []*rtp.Packet
}

func (f *fakeRTPReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if len(f.packets) == 0 {
		return nil, nil, errors.New("track ended")
	}
	pkt := f.packets[0]
	f.packets = f.packets[1:]
	return pkt, nil, nil
}

func TestRecorder_CopiesOpusToOgg(t *testing.T) {
	rec := &Recorder{Dir: filepath.Join(t.TempDir(), "rec")}
	w, path, err := rec.writerFor(webrtc.MimeTypeOpus, "stream-audio")
	require.NoError(t, err)
	assert.Equal(t, ".ogg", filepath.Ext(path))

	src := &fakeRTPReader{}
	for i := 0; i < 3; i++ {
		src.packets = append(src.packets, &rtp.Packet{
			Header:  rtp.Header{SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: []byte{0xfc, 0xff, 0xfe},
		})
	}
	require.NoError(t, copyRTP(context.Background(), src, w))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestRecorder_UnsupportedCodec(t *testing.T) {
	rec := &Recorder{Dir: t.TempDir()}
	_, _, err := rec.writerFor(webrtc.MimeTypeH264, "stream-video")
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}
