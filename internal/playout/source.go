package playout

import (
	"time"

	"github.com/aetherglow-radio/core/internal/liveset"
	"github.com/aetherglow-radio/core/internal/track"
)

// Kind identifies which variant a Source is.
type Kind int

const (
	// Library is the persistent, unbounded background playout: the
	// TrackProvider's own shuffle/repeat sequence, with no end time.
	Library Kind = iota
	// PlaylistRun is a schedule-driven program backed by a loaded M3U
	// track list.
	PlaylistRun
	// LivesetRun is a schedule-driven program backed by a remote feed.
	LivesetRun
)

// Source describes what the PlayoutController is currently feeding to every
// TranscoderDriver. Library has no EndAt; PlaylistRun and LivesetRun carry
// the wall-clock instant at which the controller should revert to Library
// on its own, without waiting for the schedule engine.
type Source struct {
	Kind Kind

	// PlaylistRun fields.
	Tracks []track.Track
	Repeat bool

	// LivesetRun fields.
	Provider liveset.Provider
	Genres   []string

	EndAt time.Time
}

// NewLibrarySource returns the always-available background source.
func NewLibrarySource() Source {
	return Source{Kind: Library}
}

// NewPlaylistSource returns a schedule-driven playlist run.
func NewPlaylistSource(tracks []track.Track, repeat bool, endAt time.Time) Source {
	return Source{Kind: PlaylistRun, Tracks: tracks, Repeat: repeat, EndAt: endAt}
}

// NewLivesetSource returns a schedule-driven liveset run.
func NewLivesetSource(p liveset.Provider, genres []string, endAt time.Time) Source {
	return Source{Kind: LivesetRun, Provider: p, Genres: genres, EndAt: endAt}
}
