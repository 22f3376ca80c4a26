package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/rescp17/streamlite/pkg/negotiation"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 512

// APISignaler is the client-side implementation of negotiation.Signaler.
// It exchanges one offer for one answer with POST <base>/offer.
type APISignaler struct {
	apiClient *Client
}

func NewAPISignaler(apiClient *Client) *APISignaler {
	return &APISignaler{apiClient: apiClient}
}

// SendOffer posts the offer and decodes the answer. Transport failures and
// non-2xx statuses wrap negotiation.ErrSignalingRequest; unusable bodies
// wrap negotiation.ErrMalformedAnswer.
func (s *APISignaler) SendOffer(ctx context.Context, offer negotiation.Offer) (*webrtc.SessionDescription, error) {
	url := s.apiClient.baseURL + "/offer"

	body, err := json.Marshal(offer)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal offer payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create /offer request: %w", negotiation.ErrSignalingRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.Debug().Str("module", "api").Str("url", url).Str("stream_key", offer.StreamKey).Bool("broadcaster", offer.Broadcaster).Msg("sending offer")
	resp, err := s.apiClient.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to /offer endpoint: %w", negotiation.ErrSignalingRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(excerpt))
		if msg == "" {
			return nil, fmt.Errorf("%w: /offer responded with %s", negotiation.ErrSignalingRequest, resp.Status)
		}
		return nil, fmt.Errorf("%w: /offer responded with %s: %s", negotiation.ErrSignalingRequest, resp.Status, msg)
	}

	return decodeAnswer(resp.Body)
}

type answerPayload struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

func decodeAnswer(r io.Reader) (*webrtc.SessionDescription, error) {
	var payload answerPayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", negotiation.ErrMalformedAnswer, err)
	}
	if webrtc.NewSDPType(payload.Type) != webrtc.SDPTypeAnswer {
		return nil, fmt.Errorf("%w: expected type answer, got %q", negotiation.ErrMalformedAnswer, payload.Type)
	}
	if strings.TrimSpace(payload.SDP) == "" {
		return nil, fmt.Errorf("%w: empty sdp", negotiation.ErrMalformedAnswer)
	}

	var parsed sdp.SessionDescription
	if err := parsed.UnmarshalString(payload.SDP); err != nil {
		return nil, fmt.Errorf("%w: %w", negotiation.ErrMalformedAnswer, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return nil, fmt.Errorf("%w: answer has no media sections", negotiation.ErrMalformedAnswer)
	}

	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: payload.SDP}, nil
}
