package playback

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

type Kind string

const (
	Video Kind = "video"
	Audio Kind = "audio"
)

// ParseKind accepts "video" or "audio" in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Video:
		return Video, nil
	case Audio:
		return Audio, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", s)
	}
}

const (
	// RecordThreshold is how far into playback a position must be before it
	// is remembered.
	RecordThreshold = 5.0
	// ResumeMargin keeps a resumed position this far from the end.
	ResumeMargin = 5.0
)

var ErrEmptyMediaID = errors.New("media id is required")

// Key is the store key for one player's position.
func Key(kind Kind, mediaID string) string {
	return string(kind) + "Position-" + mediaID
}

// Store maps keys to positions in seconds.
type Store interface {
	Get(key string) (seconds float64, ok bool, err error)
	Set(key string, seconds float64) error
}

// ResumePosition clamps a saved position so playback does not resume in the
// last few seconds. ok is false when no seek should happen.
func ResumePosition(saved, duration float64) (float64, bool) {
	if math.IsNaN(saved) || saved <= 0 || math.IsNaN(duration) {
		return 0, false
	}
	pos := math.Min(saved, duration-ResumeMargin)
	if pos <= 0 {
		return 0, false
	}
	return pos, true
}

// Tracker remembers the playback position of one media item.
type Tracker struct {
	store Store
	key   string
}

func NewTracker(store Store, kind Kind, mediaID string) (*Tracker, error) {
	if strings.TrimSpace(mediaID) == "" {
		return nil, ErrEmptyMediaID
	}
	return &Tracker{store: store, key: Key(kind, mediaID)}, nil
}

func (t *Tracker) Key() string { return t.key }

// Record stores currentTime once playback is past RecordThreshold. It
// reports whether anything was written.
func (t *Tracker) Record(currentTime float64) (bool, error) {
	if math.IsNaN(currentTime) || currentTime <= RecordThreshold {
		return false, nil
	}
	if err := t.store.Set(t.key, currentTime); err != nil {
		return false, fmt.Errorf("failed to save position: %w", err)
	}
	return true, nil
}

// Saved returns the raw stored position.
func (t *Tracker) Saved() (float64, bool, error) {
	return t.store.Get(t.key)
}

// Resume returns the position to seek to for media of the given duration.
func (t *Tracker) Resume(duration float64) (float64, bool, error) {
	saved, ok, err := t.store.Get(t.key)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load position: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	pos, ok := ResumePosition(saved, duration)
	return pos, ok, nil
}
