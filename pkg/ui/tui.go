package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"

	appevents "github.com/rescp17/streamlite/internal/app_events"
	sessionEvent "github.com/rescp17/streamlite/internal/app_events/session"
	"github.com/rescp17/streamlite/internal/style"
	"github.com/rescp17/streamlite/internal/util"
	"github.com/rescp17/streamlite/pkg/negotiation"
	"github.com/rescp17/streamlite/pkg/room"
	webrtcPkg "github.com/rescp17/streamlite/pkg/webrtc"
)

const (
	chatHistory   = 8
	usernameWidth = 12
)

// AppController is the app side of the TUI: it produces UI messages and
// consumes user events.
type AppController interface {
	UIMessages() <-chan tea.Msg
	AppEvents() chan<- appevents.AppEvent
}

// Info is what the TUI knows before the session starts.
type Info struct {
	Role      negotiation.Role
	StreamKey string
	// Chat is true when a room channel is connected.
	Chat bool
}

type appClosedMsg struct{}

type model struct {
	info    Info
	app     AppController
	keys    KeyMap
	spinner spinner.Model
	input   textinput.Model

	started      bool
	chatting     bool
	sessionID    string
	state        webrtcPkg.ConnectionState
	kbps         int
	hasBitrate   bool
	resolution   string
	viewers      int
	hasViewers   bool
	remoteTracks []string
	audioOn      bool
	videoOn      bool
	chat         []room.ChatMessage
	err          error
	fatal        bool
}

func NewModel(app AppController, info Info) tea.Model {
	input := textinput.New()
	input.Placeholder = "say something"
	input.CharLimit = 500
	input.Prompt = "> "

	return model{
		info:    info,
		app:     app,
		keys:    DefaultKeyMap,
		spinner: style.NewSpinner(),
		input:   input,
		audioOn: true,
		videoOn: true,
	}
}

// listenForAppMessages is a command that waits for the next app message.
func (m model) listenForAppMessages() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.app.UIMessages()
		if !ok {
			return appClosedMsg{}
		}
		return msg
	}
}

func (m model) send(ev appevents.AppEvent) tea.Cmd {
	return func() tea.Msg {
		m.app.AppEvents() <- ev
		return nil
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForAppMessages())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, processed := m.handleAppMessage(msg); processed {
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) handleAppMessage(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case sessionEvent.StartedMsg:
		m.started = true
		m.sessionID = msg.SessionID
		m.resolution = msg.Resolution
	case sessionEvent.StateChangedMsg:
		m.state = msg.State
	case sessionEvent.BitrateMsg:
		m.kbps, m.hasBitrate = msg.Kbps, true
	case sessionEvent.TrackReceivedMsg:
		m.remoteTracks = append(m.remoteTracks, msg.Kind.String())
	case sessionEvent.ViewersMsg:
		m.viewers, m.hasViewers = msg.Count, true
	case sessionEvent.ChatMsg:
		m.chat = append(m.chat, msg.Chat)
		if len(m.chat) > chatHistory {
			m.chat = m.chat[len(m.chat)-chatHistory:]
		}
	case sessionEvent.TrackToggledMsg:
		switch msg.Kind {
		case webrtc.RTPCodecTypeAudio:
			m.audioOn = msg.Enabled
		case webrtc.RTPCodecTypeVideo:
			m.videoOn = msg.Enabled
		}
	case appevents.AppErrorMsg:
		m.err = msg.Err
		m.fatal = m.fatal || msg.Fatal
	case appClosedMsg:
		return tea.Quit, true
	default:
		return nil, false
	}
	return m.listenForAppMessages(), true
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Sequence(m.send(sessionEvent.StopMsg{}), tea.Quit)
	}

	if m.chatting {
		switch {
		case key.Matches(msg, m.keys.Send):
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" {
				return m, nil
			}
			return m, m.send(sessionEvent.SendChatMsg{Message: text})
		case key.Matches(msg, m.keys.Cancel):
			m.chatting = false
			m.input.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Sequence(m.send(sessionEvent.StopMsg{}), tea.Quit)
	case key.Matches(msg, m.keys.ToggleAudio) && m.canToggle():
		return m, m.send(sessionEvent.ToggleTrackMsg{Kind: webrtc.RTPCodecTypeAudio, Enabled: !m.audioOn})
	case key.Matches(msg, m.keys.ToggleVideo) && m.canToggle():
		return m, m.send(sessionEvent.ToggleTrackMsg{Kind: webrtc.RTPCodecTypeVideo, Enabled: !m.videoOn})
	case key.Matches(msg, m.keys.Chat) && m.info.Chat:
		m.chatting = true
		return m, m.input.Focus()
	}
	return m, nil
}

func (m model) canToggle() bool {
	return m.info.Role == negotiation.Broadcaster && m.started && !m.fatal
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(style.TitleStyle.Render("streamlite · "+m.info.Role.String()) + "\n\n")

	if !m.started && m.err == nil {
		b.WriteString(fmt.Sprintf("%s Negotiating stream %s...\n", m.spinner.View(), style.HighlightFontStyle.Render(m.info.StreamKey)))
		b.WriteString("\n" + style.HelpStyle.Render("q stop"))
		return b.String()
	}

	b.WriteString(style.BaseStyle.Render(m.statusView()) + "\n")

	if m.err != nil {
		b.WriteString("\n" + style.ErrorStyle.Render(errorText(m.err)) + "\n")
	}

	if m.info.Chat {
		b.WriteString("\n" + m.chatView())
	}

	b.WriteString("\n" + style.HelpStyle.Render(m.helpView()))
	return b.String()
}

func row(label, value string) string {
	return style.LabelStyle.Render(label) + style.ValueStyle.Render(value) + "\n"
}

func (m model) statusView() string {
	var b strings.Builder
	b.WriteString(row("Stream key", m.info.StreamKey))
	if m.sessionID != "" {
		b.WriteString(row("Session", m.sessionID))
	}
	b.WriteString(style.LabelStyle.Render("State") + stateStyle(m.state) + "\n")

	if m.info.Role == negotiation.Broadcaster {
		bitrate := "-"
		if m.hasBitrate {
			bitrate = util.FormatBitrate(m.kbps)
		}
		b.WriteString(row("Bitrate", bitrate))
		if m.resolution != "" {
			b.WriteString(row("Resolution", m.resolution))
		}
		b.WriteString(style.LabelStyle.Render("Tracks") + toggleText("audio", m.audioOn) + " " + toggleText("video", m.videoOn) + "\n")
	} else {
		remote := "waiting"
		if len(m.remoteTracks) > 0 {
			remote = strings.Join(m.remoteTracks, ", ")
		}
		b.WriteString(row("Receiving", remote))
	}

	if m.hasViewers {
		b.WriteString(row("Viewers", fmt.Sprint(m.viewers)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func stateStyle(s webrtcPkg.ConnectionState) string {
	switch s {
	case webrtcPkg.StateConnected:
		return style.ConnectedStyle.Render(s.String())
	case webrtcPkg.StateFailed, webrtcPkg.StateClosed:
		return style.ErrorStyle.Render(s.String())
	default:
		return style.PendingStyle.Render(s.String())
	}
}

func toggleText(name string, on bool) string {
	if on {
		return style.ValueStyle.Render(name)
	}
	return style.MutedStyle.Render(name)
}

func (m model) chatView() string {
	var b strings.Builder
	if len(m.chat) == 0 {
		b.WriteString(style.HelpStyle.Render("no messages yet") + "\n")
	}
	for _, c := range m.chat {
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			style.ChatTimeStyle.Render(chatTime(c.Timestamp)),
			style.UsernameStyle.Render(util.PadRight(c.Username, usernameWidth)),
			c.Message))
	}
	if m.chatting {
		b.WriteString(m.input.View() + "\n")
	}
	return b.String()
}

// chatTime shortens RFC 3339 timestamps to a clock time.
func chatTime(ts string) string {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.Local().Format("15:04")
	}
	return ts
}

func (m model) helpView() string {
	if m.chatting {
		return fmt.Sprintf("%s %s  %s %s",
			m.keys.Send.Help().Key, m.keys.Send.Help().Desc,
			m.keys.Cancel.Help().Key, m.keys.Cancel.Help().Desc)
	}
	var parts []string
	if m.canToggle() {
		parts = append(parts,
			m.keys.ToggleAudio.Help().Key+" "+m.keys.ToggleAudio.Help().Desc,
			m.keys.ToggleVideo.Help().Key+" "+m.keys.ToggleVideo.Help().Desc)
	}
	if m.info.Chat {
		parts = append(parts, m.keys.Chat.Help().Key+" "+m.keys.Chat.Help().Desc)
	}
	parts = append(parts, m.keys.Quit.Help().Key+" "+m.keys.Quit.Help().Desc)
	return strings.Join(parts, "  ")
}

func errorText(err error) string {
	switch {
	case errors.Is(err, negotiation.ErrMediaAcquisition):
		return "Could not open local media: " + err.Error()
	case errors.Is(err, negotiation.ErrSignalingRequest):
		return "Signaling server unreachable: " + err.Error()
	case errors.Is(err, negotiation.ErrMalformedAnswer):
		return "Signaling server sent a bad answer: " + err.Error()
	default:
		return err.Error()
	}
}
