package negotiation

import (
	"github.com/pion/webrtc/v4"

	webrtcPkg "github.com/rescp17/streamlite/pkg/webrtc"
)

// Reporter receives advisory telemetry for display. Implementations must
// not block and must not call StopSession synchronously.
type Reporter interface {
	ConnectionStateChanged(state webrtcPkg.ConnectionState)
	BitrateSampled(kbps int)
	TrackReceived(kind webrtc.RTPCodecType, streamID string)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) ConnectionStateChanged(webrtcPkg.ConnectionState) {}
func (NopReporter) BitrateSampled(int)                               {}
func (NopReporter) TrackReceived(webrtc.RTPCodecType, string)        {}
