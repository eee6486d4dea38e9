package track

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"sync"
)

// LibraryProvider is the default Provider: an in-memory ordered list of
// tracks (as produced by ScanDirectory) with shuffle/repeat governed
// iteration. The first call after construction returns a track whenever the
// list is non-empty; when the list is exhausted it
// returns Exhausted unless repeat is set, in which case it is regenerated
// (reshuffled if shuffle is set) and iteration continues.
//
// Shuffle order is deterministic across restarts for a stable track set:
// the shuffle seed is derived from a fingerprint of the sorted path list, so
// the same library on disk always produces the same play order, while an
// added or removed file changes the fingerprint and therefore the order.
type LibraryProvider struct {
	mu      sync.Mutex
	tracks  []Track
	order   []int
	cursor  int
	shuffle bool
	repeat  bool
	seed    int64
}

// NewLibraryProvider builds a Provider over the given tracks. Returns an
// error-free provider even for an empty slice; NextTrack simply reports
// Exhausted immediately in that case.
func NewLibraryProvider(tracks []Track, shuffle, repeat bool) *LibraryProvider {
	p := &LibraryProvider{
		tracks:  tracks,
		shuffle: shuffle,
		repeat:  repeat,
		seed:    fingerprint(tracks),
	}
	p.regenerate()
	return p
}

func fingerprint(tracks []Track) int64 {
	h := sha256.New()
	for _, t := range tracks {
		h.Write([]byte(t.Path))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// regenerate recomputes p.order (identity or freshly shuffled) and resets
// the cursor to the start. Caller must hold p.mu.
func (p *LibraryProvider) regenerate() {
	p.order = make([]int, len(p.tracks))
	for i := range p.order {
		p.order[i] = i
	}
	if p.shuffle {
		rng := rand.New(rand.NewSource(p.seed))
		rng.Shuffle(len(p.order), func(i, j int) {
			p.order[i], p.order[j] = p.order[j], p.order[i]
		})
		// Advance the seed so a subsequent repeat-driven regeneration
		// produces a different (still deterministic) ordering rather than
		// looping the exact same sequence every time.
		p.seed++
	}
	p.cursor = 0
}

// NextTrack returns the next track in play order. ok is false only when the
// sequence is exhausted and repeat is not set, or the library is empty.
func (p *LibraryProvider) NextTrack() (Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.tracks) == 0 {
		return Track{}, false
	}

	if p.cursor >= len(p.order) {
		if !p.repeat {
			return Track{}, false
		}
		p.regenerate()
	}

	idx := p.order[p.cursor]
	p.cursor++
	return p.tracks[idx], true
}

// Reload replaces the underlying track set (e.g. after a library rescan),
// preserving the shuffle/repeat settings and restarting iteration from the
// beginning of a freshly computed order.
func (p *LibraryProvider) Reload(tracks []Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = tracks
	p.seed = fingerprint(tracks)
	p.regenerate()
}
