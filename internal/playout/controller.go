// Package playout implements the PlayoutController (spec §4.6): the single
// piece of state that decides what is currently on air, shared by every
// TranscoderDriver. It owns a source-generation counter so drivers can
// cheaply detect a schedule-driven switch, and a track-sequence counter so
// that whichever driver finishes decoding the current track first is the one
// that advances to the next one — the rest simply observe the result.
package playout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aetherglow-radio/core/internal/track"
	"golang.org/x/sync/singleflight"
)

// Controller owns the currently playing Source and hands out track URIs to
// drivers. Every enabled stream's TranscoderDriver calls NextURI in a loop;
// the controller makes sure they all observe the same sequence of tracks
// even though each driver decodes the source file independently.
type Controller struct {
	mu sync.Mutex

	generation int64
	trackSeq   int64

	source       Source
	playlistIdx  int
	currentTrack track.Track
	currentOK    bool

	library track.Provider
	sf      singleflight.Group

	notifyCh chan struct{} // swapped and closed every time generation changes
}

// New creates a Controller whose initial source is Library, with its first
// track already selected.
func New(library track.Provider) *Controller {
	c := &Controller{library: library, source: NewLibrarySource(), notifyCh: make(chan struct{})}
	t, ok, _ := c.pick(NewLibrarySource(), 0)
	c.currentTrack, c.currentOK = t, ok
	return c
}

// WaitForChange blocks until the source-generation has moved past sinceGen
// or ctx is done. A TranscoderDriver uses this to promptly kill its
// transcoder subprocess on a schedule-driven switch rather than waiting for
// the current track to end on its own (spec §4.7: cancellation must be
// prompt, not merely at the next natural track boundary).
func (c *Controller) WaitForChange(ctx context.Context, sinceGen int64) bool {
	c.mu.Lock()
	if c.generation != sinceGen {
		c.mu.Unlock()
		return true
	}
	ch := c.notifyCh
	c.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// bumpGenerationLocked increments the generation and swaps in a fresh notify
// channel, returning the old one so the caller can close it after unlocking
// (mirrors the ring buffer's push notification pattern). Caller must hold
// c.mu.
func (c *Controller) bumpGenerationLocked() chan struct{} {
	c.generation++
	old := c.notifyCh
	c.notifyCh = make(chan struct{})
	return old
}

// Switch installs a new source, taking effect immediately: any track
// currently playing is interrupted rather than allowed to finish. This is
// how the ScheduleEngine starts and preempts programs. Selecting the first
// track of the new source may block briefly on I/O (a liveset feed fetch),
// so callers should not invoke Switch from a latency-sensitive path.
func (c *Controller) Switch(s Source) {
	c.publish(s, 0)
}

// Generation reports the current source-generation, for callers (mainly
// tests) that only need to know whether a switch has
// happened, not the detail of what changed.
func (c *Controller) Generation() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// NextURI is called by a TranscoderDriver once per track boundary. lastGen
// and lastSeq are whatever the driver last observed (zero values on first
// call). If the controller has moved on since then — a new source, or
// another driver already advanced the track — the current track is returned
// immediately. Otherwise this driver is the first to finish the current
// track, and it is the one that triggers the advance.
func (c *Controller) NextURI(lastGen, lastSeq int64) (t track.Track, gen int64, seq int64, ok bool) {
	c.mu.Lock()
	curGen, curSeq := c.generation, c.trackSeq
	t, ok = c.currentTrack, c.currentOK
	c.mu.Unlock()

	if lastGen != curGen || lastSeq != curSeq {
		return t, curGen, curSeq, ok
	}

	return c.advance()
}

// advance fetches the next track of the current source and publishes it,
// deduplicating concurrent callers so a source is only ever asked for its
// next track once per boundary.
func (c *Controller) advance() (t track.Track, gen int64, seq int64, ok bool) {
	v, _, _ := c.sf.Do("advance", func() (any, error) {
		c.mu.Lock()
		genAtStart := c.generation
		src := c.source
		next := c.playlistIdx + 1 // playlistIdx is the index of the track now playing
		c.mu.Unlock()
		if src.Kind == PlaylistRun && src.Repeat && len(src.Tracks) > 0 {
			next %= len(src.Tracks)
		}

		nt, nok, revert := c.pick(src, next)
		if revert {
			nt, nok, _ = c.pick(NewLibrarySource(), 0)
		}

		c.mu.Lock()
		if c.generation != genAtStart {
			// A Switch (or a concurrent advance that also reverted) already
			// moved the controller on; our selection is stale.
			r := advanceResult{c.currentTrack, c.generation, c.trackSeq, c.currentOK}
			c.mu.Unlock()
			return r, nil
		}
		var oldCh chan struct{}
		if revert {
			oldCh = c.bumpGenerationLocked()
			c.source = NewLibrarySource()
			c.playlistIdx = 0
		} else if src.Kind == PlaylistRun {
			c.playlistIdx = next
		}
		c.trackSeq++
		c.currentTrack, c.currentOK = nt, nok
		r := advanceResult{nt, c.generation, c.trackSeq, nok}
		c.mu.Unlock()
		if oldCh != nil {
			close(oldCh)
		}
		return r, nil
	})
	r := v.(advanceResult)
	return r.track, r.gen, r.seq, r.ok
}

// publish selects the first track of s and installs it as the current
// source/track in one atomic step, always bumping both counters.
func (c *Controller) publish(s Source, playlistIdx int) {
	t, ok, revert := c.pick(s, playlistIdx)
	if revert {
		s = NewLibrarySource()
		playlistIdx = 0
		t, ok, _ = c.pick(s, playlistIdx)
	}

	c.mu.Lock()
	oldCh := c.bumpGenerationLocked()
	c.trackSeq++
	c.source = s
	c.playlistIdx = playlistIdx
	c.currentTrack, c.currentOK = t, ok
	c.mu.Unlock()
	close(oldCh)
}

type advanceResult struct {
	track track.Track
	gen   int64
	seq   int64
	ok    bool
}

// pick selects the next track for src at playlistIdx. It touches no
// controller state: it only reads the library Provider (which has its own
// locking) and possibly performs liveset network I/O, both safely outside
// c.mu. revert is true when src has run its course and the caller must fall
// back to Library itself.
func (c *Controller) pick(src Source, playlistIdx int) (t track.Track, ok bool, revert bool) {
	switch src.Kind {
	case Library:
		t, ok = c.library.NextTrack()
		return t, ok, false

	case PlaylistRun:
		if !src.EndAt.IsZero() && time.Now().After(src.EndAt) {
			return track.Track{}, false, true
		}
		if playlistIdx >= len(src.Tracks) {
			if !src.Repeat || len(src.Tracks) == 0 {
				return track.Track{}, false, true
			}
			playlistIdx = 0
		}
		return src.Tracks[playlistIdx], true, false

	case LivesetRun:
		if !src.EndAt.IsZero() && time.Now().After(src.EndAt) {
			return track.Track{}, false, true
		}
		url, ok := src.Provider.NextURL(src.Genres)
		if !ok {
			slog.Warn("liveset source empty, reverting to library")
			return track.Track{}, false, true
		}
		return track.Track{Path: url, Title: "liveset"}, true, false

	default:
		return track.Track{}, false, true
	}
}
