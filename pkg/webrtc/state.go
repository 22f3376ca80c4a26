package webrtc

import "github.com/pion/webrtc/v4"

// ConnectionState is the lifecycle of a single peer connection as observed
// by the client. Transitions are driven by ICE/DTLS inside pion; the client
// only observes and republishes them.
//
//	New -> Connecting -> Connected -> Disconnected -> Connecting
//	                              \-> Failed       \-> Connected
//	                              \-> Closed
//
// Any state may move to Closed. Closed is terminal.
type ConnectionState int

const (
	StateNew ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s ConnectionState) Terminal() bool {
	return s == StateClosed
}

var transitions = map[ConnectionState][]ConnectionState{
	StateNew:          {StateConnecting, StateFailed, StateClosed},
	StateConnecting:   {StateConnected, StateDisconnected, StateFailed, StateClosed},
	StateConnected:    {StateDisconnected, StateFailed, StateClosed},
	StateDisconnected: {StateConnecting, StateConnected, StateFailed, StateClosed},
	StateFailed:       {StateClosed},
}

// CanTransition reports whether moving from s to next is part of the
// documented lifecycle.
func (s ConnectionState) CanTransition(next ConnectionState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// FromPeerConnectionState maps pion's aggregate connection state onto
// ConnectionState. Unknown maps to New.
func FromPeerConnectionState(s webrtc.PeerConnectionState) ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}
