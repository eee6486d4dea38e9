// Package metadata holds the single-slot "currently playing" snapshot that
// the primary TranscoderDriver publishes and the HTTP surface reads.
package metadata

import (
	"sync/atomic"
	"time"

	"github.com/aetherglow-radio/core/internal/track"
)

// CurrentTrack is an immutable snapshot of the track currently on air.
type CurrentTrack struct {
	Title           string
	Artist          string
	Album           string
	FilePath        string
	DurationSeconds *int
	StartedAt       time.Time
}

// Bus is a single-writer, multi-reader atomic cell. Exactly one driver (the
// primary stream's) calls Publish; /current, /status, and optional ICY
// metadata injection call Current.
type Bus struct {
	current atomic.Value // holds CurrentTrack
}

// NewBus creates an empty bus; Current returns ok=false until the first
// Publish.
func NewBus() *Bus {
	return &Bus{}
}

// Publish atomically replaces the current snapshot.
func (b *Bus) Publish(t track.Track, startedAt time.Time) {
	b.current.Store(CurrentTrack{
		Title:           t.Title,
		Artist:          t.Artist,
		Album:           t.Album,
		FilePath:        t.Path,
		DurationSeconds: t.DurationSeconds,
		StartedAt:       startedAt,
	})
}

// Current returns the most recently published snapshot, or ok=false if
// nothing has been published yet.
func (b *Bus) Current() (CurrentTrack, bool) {
	v := b.current.Load()
	if v == nil {
		return CurrentTrack{}, false
	}
	return v.(CurrentTrack), true
}
