package session

import (
	"github.com/pion/webrtc/v4"

	appevents "github.com/rescp17/streamlite/internal/app_events"
	"github.com/rescp17/streamlite/pkg/room"
	webrtcPkg "github.com/rescp17/streamlite/pkg/webrtc"
)

// --- App Events (from TUI to App) ---

// ToggleTrackMsg flips the enabled flag of the local track of Kind.
type ToggleTrackMsg struct {
	appevents.Event
	Kind    webrtc.RTPCodecType
	Enabled bool
}

// SendChatMsg posts a chat line to the stream's room.
type SendChatMsg struct {
	appevents.Event
	Message string
}

// StopMsg ends the session.
type StopMsg struct {
	appevents.Event
}

var (
	_ appevents.AppEvent = (*ToggleTrackMsg)(nil)
	_ appevents.AppEvent = (*SendChatMsg)(nil)
	_ appevents.AppEvent = (*StopMsg)(nil)
)

// --- UI Messages (from App to TUI) ---

// StartedMsg is sent once negotiation succeeded.
type StartedMsg struct {
	appevents.UIMessage
	SessionID string
	// Resolution is empty when the session has no local video.
	Resolution string
}

type StateChangedMsg struct {
	appevents.UIMessage
	State webrtcPkg.ConnectionState
}

type BitrateMsg struct {
	appevents.UIMessage
	Kbps int
}

type TrackReceivedMsg struct {
	appevents.UIMessage
	Kind     webrtc.RTPCodecType
	StreamID string
}

// ViewersMsg carries the room's current member count.
type ViewersMsg struct {
	appevents.UIMessage
	Count int
}

type ChatMsg struct {
	appevents.UIMessage
	Chat room.ChatMessage
}

// TrackToggledMsg confirms a ToggleTrackMsg was applied.
type TrackToggledMsg struct {
	appevents.UIMessage
	Kind    webrtc.RTPCodecType
	Enabled bool
}

var (
	_ appevents.AppUIMessage = (*StartedMsg)(nil)
	_ appevents.AppUIMessage = (*StateChangedMsg)(nil)
	_ appevents.AppUIMessage = (*BitrateMsg)(nil)
	_ appevents.AppUIMessage = (*TrackReceivedMsg)(nil)
	_ appevents.AppUIMessage = (*ViewersMsg)(nil)
	_ appevents.AppUIMessage = (*ChatMsg)(nil)
	_ appevents.AppUIMessage = (*TrackToggledMsg)(nil)
)
