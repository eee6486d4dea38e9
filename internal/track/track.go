// Package track defines the Track value type and the TrackProvider
// interface that decouples the playout scheduler from however the library
// index is actually stored. The persistent SQLite index itself is an
// external collaborator; this package only supplies the interface contract
// plus a directory-scanning default implementation for standalone operation.
package track

import (
	"strings"
	"time"
)

// Track is an immutable description of one playable audio item, produced by
// a Provider or by the M3U loader. Once yielded it is never mutated.
type Track struct {
	// Path is a local filesystem path or an http(s) URL understood by the
	// transcoder's input stage.
	Path   string
	Title  string
	Artist string
	Album  string

	DurationSeconds *int
	FileSize        *int64
	LastModified    *time.Time
}

// IsRemote reports whether Path is a network URI rather than a local file.
func (t Track) IsRemote() bool {
	return strings.HasPrefix(t.Path, "http://") || strings.HasPrefix(t.Path, "https://")
}

// Provider yields the next library track. Implementations govern their own
// shuffle/repeat semantics; NextTrack returns ok=false only when the
// sequence is permanently exhausted (no repeat configured) or there is
// nothing to play.
type Provider interface {
	NextTrack() (t Track, ok bool)
}
