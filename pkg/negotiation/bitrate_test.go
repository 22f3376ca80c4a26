package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	webrtcPkg "github.com/rescp17/streamlite/pkg/webrtc"
)

func TestBitrateKbps(t *testing.T) {
	tests := []struct {
		name     string
		prev     webrtcPkg.OutboundStats
		cur      webrtcPkg.OutboundStats
		wantKbps int
		wantOK   bool
	}{
		{"one second", webrtcPkg.OutboundStats{BytesSent: 1000, Timestamp: 0}, webrtcPkg.OutboundStats{BytesSent: 2000, Timestamp: 1000}, 8, true},
		{"short interval", webrtcPkg.OutboundStats{BytesSent: 0, Timestamp: 0}, webrtcPkg.OutboundStats{BytesSent: 125, Timestamp: 200}, 5, true},
		{"idle", webrtcPkg.OutboundStats{BytesSent: 500, Timestamp: 0}, webrtcPkg.OutboundStats{BytesSent: 500, Timestamp: 1000}, 0, true},
		{"same timestamp", webrtcPkg.OutboundStats{BytesSent: 0, Timestamp: 1000}, webrtcPkg.OutboundStats{BytesSent: 100, Timestamp: 1000}, 0, false},
		{"clock went backwards", webrtcPkg.OutboundStats{BytesSent: 0, Timestamp: 2000}, webrtcPkg.OutboundStats{BytesSent: 100, Timestamp: 1000}, 0, false},
		{"counter reset", webrtcPkg.OutboundStats{BytesSent: 5000, Timestamp: 0}, webrtcPkg.OutboundStats{BytesSent: 100, Timestamp: 1000}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kbps, ok := BitrateKbps(tt.prev, tt.cur)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKbps, kbps)
		})
	}
}

func TestBitrateSampler_NeedsTwoSamples(t *testing.T) {
	var b bitrateSampler
	_, ok := b.add(webrtcPkg.OutboundStats{BytesSent: 1000, Timestamp: 0})
	assert.False(t, ok)

	kbps, ok := b.add(webrtcPkg.OutboundStats{BytesSent: 2000, Timestamp: 1000})
	assert.True(t, ok)
	assert.Equal(t, 8, kbps)

	kbps, ok = b.add(webrtcPkg.OutboundStats{BytesSent: 4000, Timestamp: 2000})
	assert.True(t, ok)
	assert.Equal(t, 16, kbps)
}
