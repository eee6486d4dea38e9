package schedule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aetherglow-radio/core/internal/config"
	"github.com/aetherglow-radio/core/internal/playout"
	"github.com/aetherglow-radio/core/internal/track"
)

type fakeLibrary struct{ t track.Track }

func (f fakeLibrary) NextTrack() (track.Track, bool) { return f.t, true }

func writePlaylist(t *testing.T, entries ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, e := range entries {
		if err := os.WriteFile(filepath.Join(dir, e), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	lines := ""
	for _, e := range entries {
		lines += e + "\n"
	}
	path := filepath.Join(dir, "set.m3u")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveProgramRejectsBadDuration(t *testing.T) {
	p := config.Program{Name: "bad-dur", Cron: "* * * * *", Duration: "1h30m"}
	if _, err := resolveProgram(p, nil); err == nil {
		t.Fatalf("expected rejection of composite duration form")
	}
}

func TestResolveProgramRejectsMissingSource(t *testing.T) {
	p := config.Program{Name: "no-source", Cron: "* * * * *", Duration: "5m"}
	if _, err := resolveProgram(p, nil); err == nil {
		t.Fatalf("expected rejection: neither playlist nor liveset configured")
	}
}

func TestResolveProgramRejectsBothSources(t *testing.T) {
	path := writePlaylist(t, "a.mp3")
	p := config.Program{
		Name: "both", Cron: "* * * * *", Duration: "5m",
		Playlist: &config.PlaylistSource{Path: path},
		Liveset:  &config.LivesetSource{Genres: []string{"techno"}},
	}
	if _, err := resolveProgram(p, nil); err == nil {
		t.Fatalf("expected rejection when both playlist and liveset are set")
	}
}

func TestResolveProgramRejectsMissingPlaylistFile(t *testing.T) {
	p := config.Program{
		Name: "ghost", Cron: "* * * * *", Duration: "5m",
		Playlist: &config.PlaylistSource{Path: filepath.Join(t.TempDir(), "nope.m3u")},
	}
	if _, err := resolveProgram(p, nil); err == nil {
		t.Fatalf("expected rejection of a missing playlist file")
	}
}

func TestResolveProgramRejectsLivesetWithoutProvider(t *testing.T) {
	p := config.Program{
		Name: "live", Cron: "* * * * *", Duration: "5m",
		Liveset: &config.LivesetSource{Genres: []string{"jazz"}},
	}
	if _, err := resolveProgram(p, nil); err == nil {
		t.Fatalf("expected rejection: liveset program with no configured feed provider")
	}
}

func TestResolveProgramAcceptsValidPlaylist(t *testing.T) {
	path := writePlaylist(t, "a.mp3", "b.mp3")
	p := config.Program{Name: "ok", Cron: "* * * * *", Duration: "10m", Playlist: &config.PlaylistSource{Path: path}}
	rp, err := resolveProgram(p, nil)
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if rp.dur != 10*time.Minute || len(rp.tracks) != 2 {
		t.Fatalf("got %+v", rp)
	}
}

func TestNewDropsInvalidProgramsButKeepsValidOnes(t *testing.T) {
	goodPath := writePlaylist(t, "a.mp3")
	cfg := &config.Config{
		Schedule: config.ScheduleConfig{Programs: []config.Program{
			{Name: "invalid", Active: true, Cron: "* * * * *", Duration: "1h30m"},
			{Name: "valid", Active: true, Cron: "* * * * *", Duration: "5m", Playlist: &config.PlaylistSource{Path: goodPath}},
			{Name: "inactive", Active: false, Cron: "* * * * *", Duration: "5m", Playlist: &config.PlaylistSource{Path: goodPath}},
		}},
	}

	ctrl := playout.New(fakeLibrary{t: track.Track{Path: "lib"}})
	e := New(cfg, ctrl, nil)
	if e == nil {
		t.Fatalf("New returned nil")
	}
	// New doesn't expose registered-program count directly, but it must not
	// have panicked or aborted on the invalid entry; Active() reports
	// nothing until a cron job actually fires.
	if _, ok := e.Active(); ok {
		t.Fatalf("no program should be Active before any cron fire")
	}
}

func TestTriggerRecordsActiveProgram(t *testing.T) {
	ctrl := playout.New(fakeLibrary{t: track.Track{Path: "lib"}})
	e := &Engine{controller: ctrl}

	rp := runtimeProgram{name: "afternoon-show", cron: "* * * * *", dur: time.Minute, tracks: []track.Track{{Path: "p1"}}}
	e.trigger(rp)

	active, ok := e.Active()
	if !ok {
		t.Fatalf("expected an active program after trigger")
	}
	if active.ProgramName != "afternoon-show" {
		t.Fatalf("got %+v", active)
	}
	if !active.EndAt.After(active.StartedAt) {
		t.Fatalf("EndAt should be after StartedAt: %+v", active)
	}

	tr, _, _, ok := ctrl.NextURI(-1, -1)
	if !ok || tr.Path != "p1" {
		t.Fatalf("trigger should have switched the controller to the program's source, got %+v", tr)
	}
}

func TestTriggerRevertsToLibraryPromptlyAtEndAt(t *testing.T) {
	ctrl := playout.New(fakeLibrary{t: track.Track{Path: "lib"}})
	e := &Engine{controller: ctrl}

	e.trigger(runtimeProgram{name: "short-show", cron: "* * * * *", dur: 20 * time.Millisecond, tracks: []track.Track{{Path: "p1"}}})

	tr, _, _, ok := ctrl.NextURI(-1, -1)
	if !ok || tr.Path != "p1" {
		t.Fatalf("expected the program's track immediately after trigger, got %+v", tr)
	}

	deadline := time.After(500 * time.Millisecond)
	for {
		if _, ok := e.Active(); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("program still Active long after its duration elapsed; end_at timer did not fire")
		case <-time.After(5 * time.Millisecond):
		}
	}

	tr, _, _, ok = ctrl.NextURI(-1, -1)
	if !ok || tr.Path != "lib" {
		t.Fatalf("expected controller to have reverted to Library at end_at, got %+v", tr)
	}
}

func TestEndAtTimerIsNoOpIfPreempted(t *testing.T) {
	ctrl := playout.New(fakeLibrary{t: track.Track{Path: "lib"}})
	e := &Engine{controller: ctrl}

	e.trigger(runtimeProgram{name: "A", cron: "* * * * *", dur: 10 * time.Millisecond, tracks: []track.Track{{Path: "a1"}}})
	e.trigger(runtimeProgram{name: "B", cron: "* * * * *", dur: time.Hour, tracks: []track.Track{{Path: "b1"}}})

	// Give A's end_at timer a chance to fire; it must see that B, not A, is
	// now the most-recently-started run and do nothing.
	time.Sleep(50 * time.Millisecond)

	active, ok := e.Active()
	if !ok || active.ProgramName != "B" {
		t.Fatalf("A's stale end_at timer must not clear B's run, got %+v ok=%v", active, ok)
	}
	tr, _, _, ok := ctrl.NextURI(-1, -1)
	if !ok || tr.Path != "b1" {
		t.Fatalf("expected B still on air, got %+v", tr)
	}
}

func TestTriggerPreemptsPreviousRun(t *testing.T) {
	ctrl := playout.New(fakeLibrary{t: track.Track{Path: "lib"}})
	e := &Engine{controller: ctrl}

	e.trigger(runtimeProgram{name: "A", cron: "* * * * *", dur: 5 * time.Minute, tracks: []track.Track{{Path: "a1"}}})
	genAfterA := ctrl.Generation()

	e.trigger(runtimeProgram{name: "B", cron: "* * * * *", dur: 2 * time.Minute, tracks: []track.Track{{Path: "b1"}}})

	active, ok := e.Active()
	if !ok || active.ProgramName != "B" {
		t.Fatalf("most-recently-started program should win, got %+v", active)
	}
	if ctrl.Generation() == genAfterA {
		t.Fatalf("preemption must bump the source generation")
	}
	tr, _, _, ok := ctrl.NextURI(-1, -1)
	if !ok || tr.Path != "b1" {
		t.Fatalf("controller should now be playing B's track, got %+v", tr)
	}
}
