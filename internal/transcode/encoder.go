// Package transcode implements the TranscoderDriver (spec §4.7): one
// goroutine per enabled stream that repeatedly asks the PlayoutController
// for the next track, spawns an ffmpeg subprocess to decode and re-encode
// it, and pushes the resulting bytes into that stream's ring buffer.
//
// The encoder itself is adapted from the teacher's internal/ffmpeg.Encoder:
// same exec.CommandContext/StdoutPipe/StderrPipe shape, generalized from a
// single hardcoded mp3 profile to the four formats the station config
// allows.
package transcode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
)

// Encoder wraps one ffmpeg invocation profile: a fixed binary, output
// format, bitrate, sample rate and channel count, matching one [stream.*]
// config table.
type Encoder struct {
	binary     string
	format     string
	bitrateK   int
	sampleRate int
	channels   int
}

// NewEncoder builds an Encoder for the given stream profile.
func NewEncoder(binary, format string, bitrateK, sampleRate, channels int) *Encoder {
	return &Encoder{binary: binary, format: format, bitrateK: bitrateK, sampleRate: sampleRate, channels: channels}
}

// codecArgs returns the ffmpeg output container/codec flags for format.
// mp3 and aac use their native container; opus and ogg/vorbis both use an
// Ogg container with the appropriate codec.
func (e *Encoder) codecArgs() []string {
	switch e.format {
	case "aac":
		return []string{"-f", "adts", "-c:a", "aac"}
	case "opus":
		return []string{"-f", "ogg", "-c:a", "libopus"}
	case "ogg":
		return []string{"-f", "ogg", "-c:a", "libvorbis"}
	default: // "mp3"
		return []string{"-f", "mp3"}
	}
}

// Stream decodes inputURI (a local path or an http(s) URL ffmpeg can read
// directly) and writes the re-encoded byte stream to output until EOF, ctx
// cancellation, or a subprocess error. Stderr is drained and logged at
// debug level in the background, exactly as the teacher's encoder does.
func (e *Encoder) Stream(ctx context.Context, inputURI string, output io.Writer) error {
	args := []string{"-re", "-i", inputURI}
	args = append(args, e.codecArgs()...)
	args = append(args,
		"-b:a", fmt.Sprintf("%dk", e.bitrateK),
		"-ac", fmt.Sprintf("%d", e.channels),
		"-ar", fmt.Sprintf("%d", e.sampleRate),
		"-vn", "pipe:1",
	)

	cmd := exec.CommandContext(ctx, e.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", e.binary, err)
	}

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				slog.Debug("ffmpeg", "output", string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()

	// An 8KB copy buffer caps each Write to the ring buffer at 8KB, rather
	// than the 32KB io.Copy's default buffer would allow. stdout is wrapped
	// in a plain io.Reader so CopyBuffer cannot bypass buf through the pipe
	// file's own WriteTo.
	buf := make([]byte, 8192)
	_, copyErr := io.CopyBuffer(output, struct{ io.Reader }{stdout}, buf)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		// Cancelled on purpose (source-generation change or shutdown); not
		// a failure worth reporting.
		return nil
	}
	if copyErr != nil {
		return fmt.Errorf("stream copy: %w", copyErr)
	}
	if waitErr != nil {
		return fmt.Errorf("%s exited: %w", e.binary, waitErr)
	}
	return nil
}
