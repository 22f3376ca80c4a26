package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/rescp17/streamlite/api"
	appevents "github.com/rescp17/streamlite/internal/app_events"
	sessionEvent "github.com/rescp17/streamlite/internal/app_events/session"
	"github.com/rescp17/streamlite/internal/config"
	"github.com/rescp17/streamlite/pkg/media"
	"github.com/rescp17/streamlite/pkg/negotiation"
	"github.com/rescp17/streamlite/pkg/room"
	"github.com/rescp17/streamlite/pkg/ui"
	webrtcPkg "github.com/rescp17/streamlite/pkg/webrtc"
)

var ErrChatUnavailable = errors.New("chat is not connected")

// Options describe the session the user asked for.
type Options struct {
	Role        negotiation.Role
	StreamKey   string
	Username    string
	Constraints media.Constraints
}

// ChatRoom is the room channel as the app uses it.
type ChatRoom interface {
	negotiation.RoomChannel
	SendChat(streamKey, username, message string) error
	Close() error
}

// Deps are the collaborators the app drives. New builds them from config.
type Deps struct {
	Peers         negotiation.PeerFactory
	Signaler      negotiation.Signaler
	Media         media.Source
	Room          ChatRoom
	OnRemoteTrack func(*webrtc.TrackRemote)
	StatsInterval time.Duration
}

// App is the session controller between the TUI and the negotiation client.
type App struct {
	opts       Options
	client     *negotiation.Client
	room       ChatRoom
	bridge     *ui.Bridge
	appEvents  chan appevents.AppEvent // TUI -> App
	session    *negotiation.Session
	startErr   error
	stopRecord context.CancelFunc
}

// New wires the real stack: pion peers, the HTTP signaler, file-backed
// media, the optional room channel and the optional recorder.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	bridge := ui.NewBridge(ui.DefaultBridgeBuffer)

	webrtcAPI, err := webrtcPkg.NewWebRTCAPI()
	if err != nil {
		return nil, err
	}
	iceConfig := webrtcPkg.ConfigFromURLs(cfg.ICEServers)

	apiClient := api.NewClient(uuid.NewString(), cfg.SignalingURL, cfg.RequestTimeout)

	deps := Deps{
		Peers: func() (negotiation.Peer, error) {
			conn, err := webrtcAPI.NewConnection(iceConfig)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		Signaler:      api.NewAPISignaler(apiClient),
		StatsInterval: cfg.StatsInterval,
	}
	if opts.Role == negotiation.Broadcaster {
		deps.Media = &media.FileSource{VideoPath: cfg.VideoFile, AudioPath: cfg.AudioFile, Loop: cfg.Loop}
	}

	if cfg.RoomURL != "" {
		rc, err := room.Dial(ctx, room.Config{URL: cfg.RoomURL}, bridge)
		if err != nil {
			log.Warn().Str("module", "app").Err(err).Msg("continuing without chat")
		} else {
			deps.Room = rc
		}
	}

	recordCtx, stopRecord := context.WithCancel(context.Background())
	if cfg.RecordDir != "" && opts.Role == negotiation.Viewer {
		if err := os.MkdirAll(cfg.RecordDir, 0o755); err != nil {
			stopRecord()
			return nil, fmt.Errorf("failed to create record dir: %w", err)
		}
		recorder := &media.Recorder{Dir: cfg.RecordDir}
		deps.OnRemoteTrack = func(track *webrtc.TrackRemote) {
			if err := recorder.Record(recordCtx, track); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Str("module", "app").Err(err).Str("track", track.ID()).Msg("recording stopped")
			}
		}
	}

	a, err := newApp(opts, deps, bridge)
	if err != nil {
		stopRecord()
		return nil, err
	}
	a.stopRecord = stopRecord
	return a, nil
}

func newApp(opts Options, deps Deps, bridge *ui.Bridge) (*App, error) {
	client, err := negotiation.NewClient(negotiation.Config{
		Peers:         deps.Peers,
		Signaler:      deps.Signaler,
		Media:         deps.Media,
		Room:          deps.Room,
		Reporter:      bridge,
		OnRemoteTrack: deps.OnRemoteTrack,
		StatsInterval: deps.StatsInterval,
	})
	if err != nil {
		return nil, err
	}
	return &App{
		opts:       opts,
		client:     client,
		room:       deps.Room,
		bridge:     bridge,
		appEvents:  make(chan appevents.AppEvent, 8),
		stopRecord: func() {},
	}, nil
}

// UIMessages returns the channel for the UI to listen on for updates.
func (a *App) UIMessages() <-chan tea.Msg {
	return a.bridge.Messages()
}

// AppEvents returns a write-only channel for the TUI to send events to the app.
func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

// Run shows the TUI and drives the session until the user quits. It
// returns the start error, if the session never came up.
func (a *App) Run(ctx context.Context, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(a, ui.Info{Role: a.opts.Role, StreamKey: a.opts.StreamKey, Chat: a.room != nil})
	program := tea.NewProgram(model, append(opts, tea.WithContext(ctx))...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("ui: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.Serve(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return a.startErr
}

// Serve starts the session and handles TUI events until ctx ends or the
// user stops. Everything the session holds is released before it returns.
func (a *App) Serve(ctx context.Context) error {
	defer a.shutdown()
	a.start(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-a.appEvents:
			switch e := event.(type) {
			case sessionEvent.StopMsg:
				log.Info().Str("module", "app").Msg("stop requested")
				return nil
			case sessionEvent.ToggleTrackMsg:
				a.toggleTrack(e)
			case sessionEvent.SendChatMsg:
				a.sendChat(e)
			}
		}
	}
}

func (a *App) start(ctx context.Context) {
	s, err := a.client.StartSession(ctx, a.opts.Role, a.opts.StreamKey, a.opts.Constraints)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		a.startErr = err
		a.sendAndLogError("Failed to start session", err, true)
		return
	}
	a.session = s

	started := sessionEvent.StartedMsg{SessionID: s.ID()}
	if stream := s.LocalStream(); stream != nil {
		if vs, ok := stream.VideoSettings(); ok {
			started.Resolution = fmt.Sprintf("%dx%d", vs.Width, vs.Height)
		}
	}
	a.bridge.Push(started)
}

func (a *App) toggleTrack(e sessionEvent.ToggleTrackMsg) {
	if a.session == nil {
		a.sendAndLogError("Cannot toggle track", negotiation.ErrSessionClosed, false)
		return
	}
	if err := a.session.SetTrackEnabled(e.Kind, e.Enabled); err != nil {
		a.sendAndLogError("Cannot toggle track", err, false)
		return
	}
	a.bridge.Push(sessionEvent.TrackToggledMsg{Kind: e.Kind, Enabled: e.Enabled})
}

func (a *App) sendChat(e sessionEvent.SendChatMsg) {
	if a.room == nil {
		a.sendAndLogError("Cannot send chat", ErrChatUnavailable, false)
		return
	}
	if err := a.room.SendChat(a.opts.StreamKey, a.opts.Username, e.Message); err != nil {
		a.sendAndLogError("Cannot send chat", err, false)
	}
}

// sendAndLogError both logs an error and sends it to the UI.
func (a *App) sendAndLogError(baseMessage string, err error, fatal bool) {
	log.Error().Str("module", "app").Err(err).Msg(baseMessage)
	a.bridge.Push(appevents.AppErrorMsg{Err: fmt.Errorf("%s: %w", baseMessage, err), Fatal: fatal})
}

func (a *App) shutdown() {
	a.client.Stop()
	if a.room != nil {
		if err := a.room.Close(); err != nil {
			log.Warn().Str("module", "app").Err(err).Msg("failed to close room channel")
		}
	}
	a.stopRecord()
	a.bridge.Close()
}
