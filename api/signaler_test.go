package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/streamlite/pkg/media"
	"github.com/rescp17/streamlite/pkg/negotiation"
	webrtcPkg "github.com/rescp17/streamlite/pkg/webrtc"
)

const testAnswerSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"a=sendonly\r\n"

func newTestSignaler(url string) *APISignaler {
	return NewAPISignaler(NewClient("test-client", url, 5*time.Second))
}

func TestNewClient_TrimsBaseURL(t *testing.T) {
	c := NewClient("id", "https://example.com/api/", 0)
	assert.Equal(t, "https://example.com/api", c.BaseURL())
	assert.Equal(t, DefaultTimeout, c.HttpClient.Timeout)

	c.SetBaseURL("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
}

func TestAPISignaler_SendOffer_Success(t *testing.T) {
	var received negotiation.Offer
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/offer", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-client", r.Header.Get(clientIDHeader))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"sdp": testAnswerSDP, "type": "answer"})
	}))
	defer server.Close()

	answer, err := newTestSignaler(server.URL).SendOffer(context.Background(), negotiation.Offer{
		SDP:       "offer-sdp",
		Type:      "offer",
		StreamKey: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Equal(t, testAnswerSDP, answer.SDP)

	assert.Equal(t, negotiation.Offer{SDP: "offer-sdp", Type: "offer", StreamKey: "abc", Broadcaster: false}, received)
}

func TestAPISignaler_SendOffer_WireFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, map[string]any{
			"sdp":         "offer-sdp",
			"type":        "offer",
			"streamKey":   "live",
			"broadcaster": true,
		}, raw)
		_ = json.NewEncoder(w).Encode(map[string]string{"sdp": testAnswerSDP, "type": "answer"})
	}))
	defer server.Close()

	_, err := newTestSignaler(server.URL).SendOffer(context.Background(), negotiation.Offer{
		SDP: "offer-sdp", Type: "offer", StreamKey: "live", Broadcaster: true,
	})
	require.NoError(t, err)
}

func TestAPISignaler_SendOffer_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broadcaster already live", http.StatusConflict)
	}))
	defer server.Close()

	_, err := newTestSignaler(server.URL).SendOffer(context.Background(), negotiation.Offer{StreamKey: "abc"})
	require.ErrorIs(t, err, negotiation.ErrSignalingRequest)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "broadcaster already live")
}

func TestAPISignaler_SendOffer_BoundsErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 10*maxErrorBody)))
	}))
	defer server.Close()

	_, err := newTestSignaler(server.URL).SendOffer(context.Background(), negotiation.Offer{StreamKey: "abc"})
	require.ErrorIs(t, err, negotiation.ErrSignalingRequest)
	assert.Less(t, len(err.Error()), 2*maxErrorBody)
}

func TestAPISignaler_SendOffer_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestSignaler(url).SendOffer(context.Background(), negotiation.Offer{StreamKey: "abc"})
	assert.ErrorIs(t, err, negotiation.ErrSignalingRequest)
}

func TestAPISignaler_SendOffer_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestSignaler(server.URL).SendOffer(ctx, negotiation.Offer{StreamKey: "abc"})
	assert.ErrorIs(t, err, negotiation.ErrSignalingRequest)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAPISignaler_SendOffer_MalformedAnswer(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"wrong type", `{"sdp":"` + jsonEscape(testAnswerSDP) + `","type":"offer"}`},
		{"missing type", `{"sdp":"` + jsonEscape(testAnswerSDP) + `"}`},
		{"empty sdp", `{"sdp":"","type":"answer"}`},
		{"unparseable sdp", `{"sdp":"X","type":"answer"}`},
		{"no media", `{"sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n","type":"answer"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestSignaler(server.URL).SendOffer(context.Background(), negotiation.Offer{StreamKey: "abc"})
			assert.ErrorIs(t, err, negotiation.ErrMalformedAnswer)
			assert.NotErrorIs(t, err, negotiation.ErrSignalingRequest)
		})
	}
}

func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return strings.Trim(string(b), `"`)
}

// answerHandler plays the signaling server: it answers each offer with a
// fresh pion peer connection.
func answerHandler(t *testing.T, posts *atomic.Int32, offers chan<- negotiation.Offer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		var offer negotiation.Offer
		if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		offers <- offer

		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		t.Cleanup(func() { _ = pc.Close() })

		if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		gathered := webrtc.GatheringCompletePromise(pc)
		if err := pc.SetLocalDescription(answer); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		<-gathered
		_ = json.NewEncoder(w).Encode(pc.LocalDescription())
	}
}

func TestViewerNegotiation_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping peer connection test in short mode")
	}

	var posts atomic.Int32
	offers := make(chan negotiation.Offer, 1)
	server := httptest.NewServer(answerHandler(t, &posts, offers))
	defer server.Close()

	webrtcAPI, err := webrtcPkg.NewWebRTCAPI()
	require.NoError(t, err)

	client, err := negotiation.NewClient(negotiation.Config{
		Peers: func() (negotiation.Peer, error) {
			conn, err := webrtcAPI.NewConnection(webrtcPkg.Config{ICEServers: []webrtc.ICEServer{}})
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		Signaler: newTestSignaler(server.URL),
	})
	require.NoError(t, err)
	defer client.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session, err := client.StartSession(ctx, negotiation.Viewer, "abc", media.Constraints{})
	require.NoError(t, err)
	assert.Equal(t, "abc", session.StreamKey())

	offer := <-offers
	assert.Equal(t, "abc", offer.StreamKey)
	assert.False(t, offer.Broadcaster)
	assert.Equal(t, "offer", offer.Type)
	assert.Contains(t, offer.SDP, "a=recvonly")
	assert.Equal(t, int32(1), posts.Load())

	client.StopSession(session)
	assert.Equal(t, webrtcPkg.StateClosed, session.State())
	assert.Equal(t, int32(1), posts.Load())
}

type sampleTrack struct {
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	stopped atomic.Bool
}

func (s *sampleTrack) ID() string                { return s.local.ID() }
func (s *sampleTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeVideo }
func (s *sampleTrack) Local() webrtc.TrackLocal  { return s.local }
func (s *sampleTrack) Enabled() bool             { return s.enabled.Load() }
func (s *sampleTrack) SetEnabled(enabled bool)   { s.enabled.Store(enabled) }
func (s *sampleTrack) Stop()                     { s.stopped.Store(true) }
func (s *sampleTrack) Stopped() bool             { return s.stopped.Load() }

type trackSource struct {
	track *sampleTrack
}

func (s trackSource) Acquire(context.Context, media.Constraints) (*media.Stream, error) {
	return media.NewStream("test-stream", s.track), nil
}

type bitrateReporter struct {
	negotiation.NopReporter
	samples chan int
}

func (r bitrateReporter) BitrateSampled(kbps int) {
	select {
	case r.samples <- kbps:
	default:
	}
}

func TestBroadcasterNegotiation_ReportsBitrate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping peer connection test in short mode")
	}

	var posts atomic.Int32
	offers := make(chan negotiation.Offer, 1)
	server := httptest.NewServer(answerHandler(t, &posts, offers))
	defer server.Close()

	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test-stream")
	require.NoError(t, err)
	track := &sampleTrack{local: local}
	track.enabled.Store(true)

	webrtcAPI, err := webrtcPkg.NewWebRTCAPI()
	require.NoError(t, err)
	conns := make(chan *webrtcPkg.Connection, 1)
	reporter := bitrateReporter{samples: make(chan int, 16)}

	client, err := negotiation.NewClient(negotiation.Config{
		Peers: func() (negotiation.Peer, error) {
			conn, err := webrtcAPI.NewConnection(webrtcPkg.Config{ICEServers: []webrtc.ICEServer{}})
			if err != nil {
				return nil, err
			}
			conns <- conn
			return conn, nil
		},
		Signaler:      newTestSignaler(server.URL),
		Media:         trackSource{track: track},
		Reporter:      reporter,
		StatsInterval: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	defer client.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session, err := client.StartSession(ctx, negotiation.Broadcaster, "abc", media.Constraints{Video: true})
	require.NoError(t, err)
	assert.True(t, (<-offers).Broadcaster)
	conn := <-conns

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		frame := append([]byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}, make([]byte, 512)...)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = local.WriteSample(pionmedia.Sample{Data: frame, Duration: 33 * time.Millisecond})
			}
		}
	}()

	var first webrtcPkg.OutboundStats
	require.Eventually(t, func() bool {
		stats, found, err := conn.OutboundVideoStats()
		first = stats
		return err == nil && found && stats.BytesSent > 0
	}, 10*time.Second, 50*time.Millisecond, "video bytes never counted")
	time.Sleep(300 * time.Millisecond)
	second, found, err := conn.OutboundVideoStats()
	require.NoError(t, err)
	require.True(t, found)
	kbps, ok := negotiation.BitrateKbps(first, second)
	require.True(t, ok)
	assert.Positive(t, kbps)

	deadline := time.After(10 * time.Second)
	for {
		select {
		case got := <-reporter.samples:
			if got > 0 {
				client.StopSession(session)
				return
			}
		case <-deadline:
			t.Fatal("no positive bitrate reported")
		}
	}
}
