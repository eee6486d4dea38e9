// Package config loads and validates the station's TOML configuration file.
// Loading and validating configuration is the one external-facing concern
// this binary owns outright: there is no separate process to hand it to, so
// failures here are fatal and are surfaced before any listener port opens.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"

	toml "github.com/pelletier/go-toml/v2"
)

var streamNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var validFormats = map[string]bool{
	"mp3":  true,
	"aac":  true,
	"opus": true,
	"ogg":  true,
}

// Config is the parsed, validated TOML configuration.
type Config struct {
	Server     ServerConfig          `toml:"server"`
	Library    LibraryConfig         `toml:"library"`
	Station    StationConfig         `toml:"station"`
	Transcoder TranscoderConfig      `toml:"transcoder"`
	Streams    map[string]Stream     `toml:"stream"`
	Schedule   ScheduleConfig        `toml:"schedule"`
	Liveset    LivesetConfig         `toml:"liveset"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type LibraryConfig struct {
	MusicDir string `toml:"music_dir"`
	Shuffle  bool   `toml:"shuffle"`
	Repeat   bool   `toml:"repeat"`
}

type StationConfig struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Genre       string `toml:"genre"`
	URL         string `toml:"url"`
}

type TranscoderConfig struct {
	Binary string `toml:"binary"`
}

// LivesetConfig configures the single shared LivesetProvider. It is only
// used when at least one program's kind is Liveset. Validate does not check
// it; a Liveset program with no FeedURL is dropped by the schedule engine.
type LivesetConfig struct {
	FeedURL string `toml:"feed_url"`
}

// Stream is one `[stream.<name>]` table. Name is populated from the TOML key
// during Load, not read from the table body itself.
type Stream struct {
	Name       string `toml:"-"`
	Bitrate    int    `toml:"bitrate_kbps"`
	Format     string `toml:"format"`
	SampleRate int    `toml:"sample_rate_hz"`
	Channels   int    `toml:"channels"`
	Enabled    bool   `toml:"enabled"`
	IcyMetadata bool  `toml:"icy_metadata"`
}

type ScheduleConfig struct {
	Programs []Program `toml:"programs"`
}

// Program is one `[[schedule.programs]]` entry. Exactly one of Playlist or
// Liveset should be set; this is checked when the schedule engine resolves
// programs, not by Validate or the TOML schema, since go-toml has no
// tagged-union support.
type Program struct {
	Name     string          `toml:"name"`
	Active   bool            `toml:"active"`
	Cron     string          `toml:"cron"`
	Duration string          `toml:"duration"`
	Playlist *PlaylistSource `toml:"playlist"`
	Liveset  *LivesetSource  `toml:"liveset"`
}

type PlaylistSource struct {
	Path   string `toml:"path"`
	Repeat *bool  `toml:"repeat"`
}

type LivesetSource struct {
	Genres []string `toml:"genres"`
}

// Load reads and parses the TOML file at path. It does not validate content;
// call Validate separately so callers can distinguish parse errors (fatal,
// malformed file) from validation errors (fatal, bad values).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	for name, s := range cfg.Streams {
		s.Name = name
		cfg.Streams[name] = s
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Station.Name == "" {
		cfg.Station.Name = "Untitled Station"
	}
	if cfg.Transcoder.Binary == "" {
		cfg.Transcoder.Binary = "ffmpeg"
	}
}

// Validate enforces the fatal-at-startup rules from spec §7: an empty
// stream set, no enabled stream, an out-of-range stream value, or a missing
// music directory are all Config/Resource errors and abort startup. Program
// validation is intentionally NOT performed here — invalid programs are a
// Schedule-class error and are dropped individually by the schedule engine
// at build time, never fatal to the whole process.
func Validate(cfg *Config) error {
	if cfg.Library.MusicDir == "" {
		return fmt.Errorf("library.music_dir must be set")
	}
	info, err := os.Stat(cfg.Library.MusicDir)
	if err != nil {
		return fmt.Errorf("library.music_dir %q is not accessible: %w", cfg.Library.MusicDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("library.music_dir %q is not a directory", cfg.Library.MusicDir)
	}

	if len(cfg.Streams) == 0 {
		return fmt.Errorf("no [stream.<name>] tables configured")
	}

	enabledCount := 0
	for name, s := range cfg.Streams {
		if !streamNameRe.MatchString(name) {
			return fmt.Errorf("stream %q: name must match [A-Za-z0-9_-]+", name)
		}
		if !s.Enabled {
			continue
		}
		enabledCount++
		if !validFormats[s.Format] {
			return fmt.Errorf("stream %q: unsupported format %q", name, s.Format)
		}
		if s.Bitrate <= 0 {
			return fmt.Errorf("stream %q: bitrate_kbps must be positive", name)
		}
		if s.SampleRate <= 0 {
			return fmt.Errorf("stream %q: sample_rate_hz must be positive", name)
		}
		if s.Channels != 1 && s.Channels != 2 {
			return fmt.Errorf("stream %q: channels must be 1 or 2", name)
		}
	}

	if enabledCount == 0 {
		return fmt.Errorf("no enabled stream; at least one [stream.<name>] must set enabled = true")
	}

	if _, err := exePath(cfg.Transcoder.Binary); err != nil {
		return fmt.Errorf("transcoder binary %q not found: %w", cfg.Transcoder.Binary, err)
	}

	return nil
}

// EnabledStreams returns the enabled streams sorted deterministically by
// name, so that callers (notably the schedule/transcode wiring) can treat
// the first entry as "the primary stream" consistently across runs.
func (c *Config) EnabledStreams() []Stream {
	names := make([]string, 0, len(c.Streams))
	for name, s := range c.Streams {
		if s.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]Stream, 0, len(names))
	for _, name := range names {
		out = append(out, c.Streams[name])
	}
	return out
}

func exePath(name string) (string, error) {
	return exec.LookPath(name)
}
