package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	appevents "github.com/rescp17/streamlite/internal/app_events"
	sessionEvent "github.com/rescp17/streamlite/internal/app_events/session"
	"github.com/rescp17/streamlite/pkg/negotiation"
	"github.com/rescp17/streamlite/pkg/room"
	webrtcPkg "github.com/rescp17/streamlite/pkg/webrtc"
)

// DefaultBridgeBuffer is how many messages may queue before the bridge
// starts dropping them.
const DefaultBridgeBuffer = 64

// Bridge turns negotiation telemetry and room events into tea messages.
// Pushes never block: the callers are pion and websocket goroutines, so a
// full buffer drops the message instead.
type Bridge struct {
	mu     sync.RWMutex
	closed bool
	out    chan tea.Msg
}

var (
	_ negotiation.Reporter = (*Bridge)(nil)
	_ room.Handler         = (*Bridge)(nil)
)

func NewBridge(buffer int) *Bridge {
	if buffer <= 0 {
		buffer = DefaultBridgeBuffer
	}
	return &Bridge{out: make(chan tea.Msg, buffer)}
}

// Messages is read by the TUI.
func (b *Bridge) Messages() <-chan tea.Msg {
	return b.out
}

// Push queues msg for the TUI. It reports false when the message was
// dropped or the bridge is closed.
func (b *Bridge) Push(msg appevents.AppUIMessage) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.out <- msg:
		return true
	default:
		log.Debug().Str("module", "ui").Type("msg", msg).Msg("ui buffer full, dropping message")
		return false
	}
}

// Close ends the message stream; the TUI quits once it has drained it.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.out)
	}
}

func (b *Bridge) ConnectionStateChanged(state webrtcPkg.ConnectionState) {
	b.Push(sessionEvent.StateChangedMsg{State: state})
}

func (b *Bridge) BitrateSampled(kbps int) {
	b.Push(sessionEvent.BitrateMsg{Kbps: kbps})
}

func (b *Bridge) TrackReceived(kind webrtc.RTPCodecType, streamID string) {
	b.Push(sessionEvent.TrackReceivedMsg{Kind: kind, StreamID: streamID})
}

func (b *Bridge) UserJoined(count int) {
	b.Push(sessionEvent.ViewersMsg{Count: count})
}

func (b *Bridge) UserLeft(count int) {
	b.Push(sessionEvent.ViewersMsg{Count: count})
}

func (b *Bridge) ChatReceived(msg room.ChatMessage) {
	b.Push(sessionEvent.ChatMsg{Chat: msg})
}
