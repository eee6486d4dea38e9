// Package schedule implements the ScheduleEngine (spec §4.5): it resolves
// each configured Program to a concrete, pre-validated runtime source at
// startup, then registers one cron job per program that — when it fires —
// tells the PlayoutController to switch to that program's source.
//
// Overlap between programs needs no special-casing here: PlayoutController.
// Switch always takes effect immediately, so whichever program's cron job
// fires most recently simply wins, exactly matching the "most-recently-
// started wins" preemption policy. The engine's own job is only to decide
// *when* to call Switch and to remember which program is nominally active
// for status reporting.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aetherglow-radio/core/internal/config"
	"github.com/aetherglow-radio/core/internal/liveset"
	"github.com/aetherglow-radio/core/internal/m3u"
	"github.com/aetherglow-radio/core/internal/playout"
	"github.com/aetherglow-radio/core/internal/track"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// ActiveProgram is a snapshot of the program currently believed to be on
// air, for the /status handler. It is best-effort bookkeeping: the
// authoritative state of what is actually playing lives in the
// PlayoutController, which may have already reverted to Library on its own
// if the source ran out before EndAt.
type ActiveProgram struct {
	RunID       uuid.UUID
	ProgramName string
	StartedAt   time.Time
	EndAt       time.Time
}

// runtimeProgram is a Program that has been validated and, for a Playlist
// kind, had its track list loaded exactly once at startup.
type runtimeProgram struct {
	name   string
	cron   string
	dur    time.Duration
	tracks []track.Track // set when kind is playlist
	repeat bool
	genres []string // set when kind is liveset
	isLive bool
}

// Engine owns the cron scheduler and drives PlayoutController.Switch.
type Engine struct {
	cron       *cron.Cron
	controller *playout.Controller
	liveset    liveset.Provider

	mu     sync.Mutex
	active *ActiveProgram
}

// New validates and registers every active program from cfg. Programs that
// fail validation (bad cron expression, bad duration, unreadable or empty
// playlist, liveset kind with no configured feed) are dropped with a
// warning rather than aborting startup — per spec this is a Schedule-class
// error, never fatal.
func New(cfg *config.Config, controller *playout.Controller, livesetProvider liveset.Provider) *Engine {
	e := &Engine{
		cron:       cron.New(),
		controller: controller,
		liveset:    livesetProvider,
	}

	for _, p := range cfg.Schedule.Programs {
		if !p.Active {
			continue
		}
		rp, err := resolveProgram(p, livesetProvider)
		if err != nil {
			slog.Warn("dropping invalid program", "program", p.Name, "error", err)
			continue
		}
		if p.Playlist != nil && p.Playlist.Repeat == nil {
			// An unset playlist repeat inherits [library].repeat.
			rp.repeat = cfg.Library.Repeat
		}

		rpCopy := rp
		if _, err := e.cron.AddFunc(rpCopy.cron, func() { e.trigger(rpCopy) }); err != nil {
			slog.Warn("dropping program with invalid cron expression", "program", p.Name, "cron", p.Cron, "error", err)
			continue
		}
		slog.Info("registered program", "program", rpCopy.name, "cron", rpCopy.cron, "duration", rpCopy.dur)
	}

	return e
}

func resolveProgram(p config.Program, livesetProvider liveset.Provider) (runtimeProgram, error) {
	if p.Name == "" {
		return runtimeProgram{}, fmt.Errorf("program has no name")
	}
	dur, err := config.ParseDuration(p.Duration)
	if err != nil {
		return runtimeProgram{}, fmt.Errorf("duration: %w", err)
	}
	if dur <= 0 {
		return runtimeProgram{}, fmt.Errorf("duration must be positive")
	}

	switch {
	case p.Playlist != nil && p.Liveset != nil:
		return runtimeProgram{}, fmt.Errorf("program has both playlist and liveset sources")
	case p.Playlist != nil:
		tracks, err := m3u.Load(p.Playlist.Path)
		if err != nil {
			return runtimeProgram{}, fmt.Errorf("loading playlist %q: %w", p.Playlist.Path, err)
		}
		repeat := false
		if p.Playlist.Repeat != nil {
			repeat = *p.Playlist.Repeat
		}
		return runtimeProgram{name: p.Name, cron: p.Cron, dur: dur, tracks: tracks, repeat: repeat}, nil
	case p.Liveset != nil:
		if livesetProvider == nil {
			return runtimeProgram{}, fmt.Errorf("liveset program configured but no [liveset] feed_url is set")
		}
		return runtimeProgram{name: p.Name, cron: p.Cron, dur: dur, genres: p.Liveset.Genres, isLive: true}, nil
	default:
		return runtimeProgram{}, fmt.Errorf("program has neither playlist nor liveset source")
	}
}

func (e *Engine) trigger(rp runtimeProgram) {
	now := time.Now()
	endAt := now.Add(rp.dur)
	runID := uuid.New()

	var src playout.Source
	if rp.isLive {
		src = playout.NewLivesetSource(e.liveset, rp.genres, endAt)
	} else {
		src = playout.NewPlaylistSource(rp.tracks, rp.repeat, endAt)
	}

	e.mu.Lock()
	e.active = &ActiveProgram{RunID: runID, ProgramName: rp.name, StartedAt: now, EndAt: endAt}
	e.mu.Unlock()

	slog.Info("program activated", "program", rp.name, "run_id", runID, "ends_at", endAt)
	e.controller.Switch(src)

	// pick()'s lazy EndAt check only fires at the next track boundary, which
	// can be long after endAt (a liveset track runs until remote EOF, a
	// playlist track may outlast the remaining duration). Arm a timer so the
	// revert to Library happens promptly at T+D as spec §4.5/§8.5 require,
	// provided a later program hasn't already preempted this run.
	time.AfterFunc(rp.dur, func() { e.revertIfCurrent(runID) })
}

// revertIfCurrent switches the controller back to Library if runID is still
// the most-recently-started program. If a later program has already
// preempted it, e.active will have moved on and this is a no-op.
func (e *Engine) revertIfCurrent(runID uuid.UUID) {
	e.mu.Lock()
	if e.active == nil || e.active.RunID != runID {
		e.mu.Unlock()
		return
	}
	e.active = nil
	e.mu.Unlock()

	slog.Info("program run ended, reverting to library", "run_id", runID)
	e.controller.Switch(playout.NewLibrarySource())
}

// Active returns the current program run, if any. It reports none before the
// first fire and after a run's end_at timer has reverted to Library.
func (e *Engine) Active() (ActiveProgram, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ActiveProgram{}, false
	}
	return *e.active, true
}

// Start begins firing cron jobs.
func (e *Engine) Start() {
	e.cron.Start()
}

// Stop waits for any in-flight trigger to finish, or for ctx to be done.
func (e *Engine) Stop(ctx context.Context) {
	stopCtx := e.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		slog.Warn("schedule engine stop timed out")
	}
}
