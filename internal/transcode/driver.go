package transcode

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aetherglow-radio/core/internal/metadata"
	"github.com/aetherglow-radio/core/internal/playout"
	"github.com/aetherglow-radio/core/internal/ringbuffer"
	"github.com/aetherglow-radio/core/internal/track"
)

// healthFailureThreshold is the number of consecutive encode failures (spec
// §4.7/§9) after which a driver is considered degraded and reports a health
// event, rather than on every single transient failure.
const healthFailureThreshold = 5

// idlePoll is how long a driver waits before retrying when the current
// source has nothing to play (silence).
const idlePoll = 2 * time.Second

// HealthEvent reports a change in a stream's transcoder health: a non-nil Err
// means the transcoder has failed repeatedly, a nil Err means it has
// recovered.
type HealthEvent struct {
	Stream string
	Err    error
}

// Driver is the TranscoderDriver for one enabled stream: it pulls track
// URIs from the shared PlayoutController, encodes each with its own ffmpeg
// subprocess, and feeds the result into the stream's RingBuffer. Exactly
// one Driver (the configured primary stream) also publishes to the
// MetadataBus.
type Driver struct {
	StreamName string

	encoder *Encoder
	ring    *ringbuffer.RingBuffer
	ctrl    *playout.Controller
	bus     *metadata.Bus // nil unless this is the primary stream

	onDegraded func(HealthEvent)

	failCount int
	degraded  bool // mirrors the last HealthEvent sent, so recovery is reported exactly once
}

// NewDriver builds a Driver. bus may be nil; onDegraded may be nil if the
// caller doesn't want health events.
func NewDriver(streamName string, encoder *Encoder, ring *ringbuffer.RingBuffer, ctrl *playout.Controller, bus *metadata.Bus, onDegraded func(HealthEvent)) *Driver {
	return &Driver{StreamName: streamName, encoder: encoder, ring: ring, ctrl: ctrl, bus: bus, onDegraded: onDegraded}
}

// Run drives the stream until ctx is cancelled. It never returns an error:
// per-track failures are logged and, past healthFailureThreshold in a row,
// reported via onDegraded, but the loop always keeps trying the next track.
func (d *Driver) Run(ctx context.Context) {
	lastGen, lastSeq := int64(-1), int64(-1)

	for {
		if ctx.Err() != nil {
			return
		}

		t, gen, seq, ok := d.ctrl.NextURI(lastGen, lastSeq)
		if !ok {
			lastGen, lastSeq = gen, seq
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePoll):
			}
			continue
		}

		if d.bus != nil {
			d.bus.Publish(t, time.Now())
		}

		d.playOnce(ctx, t, gen)
		lastGen, lastSeq = gen, seq
	}
}

// playOnce encodes a single track into the ring buffer, watching for a
// source-generation change so it can kill the subprocess promptly instead
// of waiting for the track to end on its own (spec §4.7 cancellation).
func (d *Driver) playOnce(ctx context.Context, t track.Track, gen int64) {
	trackCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var cancelledByGenChange atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		if d.ctrl.WaitForChange(trackCtx, gen) {
			cancelledByGenChange.Store(true)
			cancel()
		}
	}()

	sink := &ringSink{ring: d.ring, cancelled: &cancelledByGenChange}
	err := d.encoder.Stream(trackCtx, t.Path, sink)
	cancel()
	<-done

	d.recordResult(t.Path, err, cancelledByGenChange.Load())
}

// recordResult updates failure bookkeeping after one track and reports a
// HealthEvent on the threshold-crossing transition in either direction: once
// when failCount first reaches healthFailureThreshold, and once more when a
// subsequent successful encode clears it, so /status degraded reflects
// current state instead of latching forever (spec §4.7/§9).
func (d *Driver) recordResult(path string, err error, cancelledByGenChange bool) {
	switch {
	case cancelledByGenChange:
		d.failCount = 0
	case err != nil:
		d.failCount++
		slog.Error("transcoder failed", "stream", d.StreamName, "track", path, "error", err, "consecutive_failures", d.failCount)
		if d.failCount >= healthFailureThreshold && !d.degraded && d.onDegraded != nil {
			d.degraded = true
			d.onDegraded(HealthEvent{Stream: d.StreamName, Err: err})
		}
	default:
		d.failCount = 0
		if d.degraded && d.onDegraded != nil {
			d.degraded = false
			d.onDegraded(HealthEvent{Stream: d.StreamName})
		}
	}
}

// ringSink adapts a RingBuffer into an io.Writer, discarding writes once a
// source-generation change has been observed so that bytes ffmpeg emits
// while being killed are drained rather than broadcast (spec §4.7).
type ringSink struct {
	ring      *ringbuffer.RingBuffer
	cancelled *atomic.Bool
}

func (s *ringSink) Write(p []byte) (int, error) {
	if s.cancelled.Load() {
		return len(p), nil
	}
	s.ring.Push(p)
	return len(p), nil
}
