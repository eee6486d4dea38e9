package playout

import (
	"context"
	"testing"
	"time"

	"github.com/aetherglow-radio/core/internal/track"
)

// fakeProvider cycles through a fixed track list, always ok, for controller
// tests that don't care about real shuffle/repeat semantics.
type fakeProvider struct {
	tracks []track.Track
	idx    int
}

func (p *fakeProvider) NextTrack() (track.Track, bool) {
	if len(p.tracks) == 0 {
		return track.Track{}, false
	}
	t := p.tracks[p.idx%len(p.tracks)]
	p.idx++
	return t, true
}

func TestNewSelectsFirstLibraryTrack(t *testing.T) {
	lib := &fakeProvider{tracks: []track.Track{{Path: "a"}, {Path: "b"}}}
	c := New(lib)

	tr, gen, _, ok := c.NextURI(-1, -1)
	if !ok {
		t.Fatalf("expected a track immediately after construction")
	}
	if tr.Path != "a" {
		t.Fatalf("got %q, want first library track", tr.Path)
	}
	if gen != c.Generation() {
		t.Fatalf("gen mismatch")
	}
}

func TestNextURIAdvancesOnlyForTheCallerAtTheBoundary(t *testing.T) {
	lib := &fakeProvider{tracks: []track.Track{{Path: "a"}, {Path: "b"}, {Path: "c"}}}
	c := New(lib)

	gen0 := c.Generation()
	_, _, seq0, _ := c.NextURI(-1, -1)

	// A driver that already observed gen0/seq0 triggers the advance.
	next, gen1, seq1, ok := c.NextURI(gen0, seq0)
	if !ok || next.Path != "b" {
		t.Fatalf("got %+v ok=%v, want track b", next, ok)
	}

	// A second driver calling with the same stale (gen0, seq0) must see the
	// same already-advanced track, not trigger a second advance.
	again, gen2, seq2, ok := c.NextURI(gen0, seq0)
	if !ok || again.Path != "b" {
		t.Fatalf("second caller got %+v, want the same advanced track b", again)
	}
	if gen1 != gen2 || seq1 != seq2 {
		t.Fatalf("two callers at the same stale boundary observed different results")
	}
}

func TestSwitchBumpsGenerationImmediately(t *testing.T) {
	lib := &fakeProvider{tracks: []track.Track{{Path: "a"}}}
	c := New(lib)
	before := c.Generation()

	playlist := NewPlaylistSource([]track.Track{{Path: "p1"}, {Path: "p2"}}, false, time.Time{})
	c.Switch(playlist)

	if c.Generation() == before {
		t.Fatalf("Switch must bump the generation")
	}
	tr, _, _, ok := c.NextURI(-1, -1)
	if !ok || tr.Path != "p1" {
		t.Fatalf("got %+v ok=%v, want the new source's first track", tr, ok)
	}
}

func TestPlaylistRunRevertsToLibraryWhenExhaustedWithoutRepeat(t *testing.T) {
	lib := &fakeProvider{tracks: []track.Track{{Path: "lib1"}}}
	c := New(lib)

	playlist := NewPlaylistSource([]track.Track{{Path: "p1"}}, false, time.Time{})
	c.Switch(playlist)

	tr, gen, seq, ok := c.NextURI(-1, -1)
	if !ok || tr.Path != "p1" {
		t.Fatalf("expected p1, got %+v", tr)
	}

	// Advancing past the single-track playlist (no repeat) must revert to
	// Library rather than reporting Exhausted to the caller.
	tr2, _, _, ok2 := c.NextURI(gen, seq)
	if !ok2 {
		t.Fatalf("expected reversion to Library, not Exhausted")
	}
	if tr2.Path != "lib1" {
		t.Fatalf("got %+v, want library track after playlist exhaustion", tr2)
	}
}

func TestPlaylistRunEndAtPreemptsEvenMidTrack(t *testing.T) {
	lib := &fakeProvider{tracks: []track.Track{{Path: "lib1"}}}
	c := New(lib)

	past := time.Now().Add(-time.Second)
	playlist := NewPlaylistSource([]track.Track{{Path: "p1"}, {Path: "p2"}}, true, past)
	c.Switch(playlist)

	// EndAt already passed at Switch time, so the very first pick should
	// already have reverted to Library.
	tr, _, _, ok := c.NextURI(-1, -1)
	if !ok || tr.Path != "lib1" {
		t.Fatalf("got %+v ok=%v, want immediate reversion to library past EndAt", tr, ok)
	}
}

func TestWaitForChangeWakesOnSwitch(t *testing.T) {
	lib := &fakeProvider{tracks: []track.Track{{Path: "a"}}}
	c := New(lib)
	gen := c.Generation()

	done := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- c.WaitForChange(ctx, gen)
	}()

	time.Sleep(10 * time.Millisecond)
	c.Switch(NewLibrarySource())

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("WaitForChange returned false, expected a wake on Switch")
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitForChange did not wake up on Switch")
	}
}

func TestWaitForChangeReturnsImmediatelyIfAlreadyChanged(t *testing.T) {
	lib := &fakeProvider{tracks: []track.Track{{Path: "a"}}}
	c := New(lib)
	staleGen := c.Generation() - 1

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if !c.WaitForChange(ctx, staleGen) {
		t.Fatalf("expected immediate true when sinceGen is already stale")
	}
}
