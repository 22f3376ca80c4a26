package negotiation

import "errors"

var (
	// ErrMediaAcquisition means local capture was denied or unavailable.
	// Nothing has been sent to the network when it is returned.
	ErrMediaAcquisition = errors.New("media acquisition failed")
	// ErrSignalingRequest covers transport failures and non-success
	// responses from the negotiation endpoint.
	ErrSignalingRequest = errors.New("signaling request failed")
	// ErrMalformedAnswer means the response was not a usable session
	// description.
	ErrMalformedAnswer = errors.New("malformed answer")
	// ErrStatsRead is logged and skipped; it never ends a session.
	ErrStatsRead = errors.New("stats read failed")

	ErrEmptyStreamKey    = errors.New("stream key is required")
	ErrSessionSuperseded = errors.New("session was stopped or superseded")
	ErrSessionClosed     = errors.New("session is closed")
)
