package negotiation

import (
	"math"

	webrtcPkg "github.com/rescp17/streamlite/pkg/webrtc"
)

// BitrateKbps derives kilobits per second from two outbound samples whose
// timestamps are in milliseconds. ok is false when the interval is not
// positive or the byte counter went backwards.
func BitrateKbps(prev, cur webrtcPkg.OutboundStats) (kbps int, ok bool) {
	dt := cur.Timestamp - prev.Timestamp
	if dt <= 0 || cur.BytesSent < prev.BytesSent {
		return 0, false
	}
	// bits per millisecond == kilobits per second
	return int(math.Round(8 * float64(cur.BytesSent-prev.BytesSent) / dt)), true
}

// bitrateSampler keeps only the previous sample.
type bitrateSampler struct {
	prev *webrtcPkg.OutboundStats
}

func (b *bitrateSampler) add(cur webrtcPkg.OutboundStats) (int, bool) {
	prev := b.prev
	b.prev = &cur
	if prev == nil {
		return 0, false
	}
	return BitrateKbps(*prev, cur)
}
