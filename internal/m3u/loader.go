// Package m3u parses M3U and Extended M3U playlists into ordered track
// lists for schedule-driven program playout.
package m3u

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aetherglow-radio/core/internal/track"
)

// extinfPrefix marks an Extended M3U metadata line: "#EXTINF:<secs>,<title>".
const extinfPrefix = "#EXTINF:"

// Load parses the M3U/Extended M3U file at path and returns its resolved,
// ordered track list. Relative entries are resolved against the playlist
// file's own directory; http(s) entries pass through unchanged. Missing
// local files are dropped with a warning. An error is returned if the file
// cannot be opened or read, or if no playable entry survives (spec §4.3).
func Load(path string) ([]track.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening playlist %q: %w", path, err)
	}
	defer f.Close()

	dir := filepath.Dir(path)

	var (
		tracks     []track.Track
		pendingDur *int
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, extinfPrefix) {
			if secs, ok := parseExtinf(line); ok {
				pendingDur = &secs
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			// #EXTM3U and any other comment line is skipped. #EXTINF is
			// handled above: its duration is attached to the next entry's
			// Track, and its title is not used.
			continue
		}

		uri := resolveURI(dir, line)
		t, ok := resolveTrack(uri, pendingDur)
		pendingDur = nil
		if !ok {
			slog.Warn("dropping missing playlist entry", "playlist", path, "entry", line)
			continue
		}
		tracks = append(tracks, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading playlist %q: %w", path, err)
	}

	if len(tracks) == 0 {
		return nil, fmt.Errorf("playlist %q has no playable entries", path)
	}

	return tracks, nil
}

func resolveURI(playlistDir, entry string) string {
	if strings.HasPrefix(entry, "http://") || strings.HasPrefix(entry, "https://") {
		return entry
	}
	if filepath.IsAbs(entry) {
		return entry
	}
	return filepath.Join(playlistDir, entry)
}

func resolveTrack(uri string, durSecs *int) (track.Track, bool) {
	t := track.Track{
		Path:            uri,
		Title:           strings.TrimSuffix(filepath.Base(uri), filepath.Ext(uri)),
		DurationSeconds: durSecs,
	}

	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return t, true
	}

	if info, err := os.Stat(uri); err != nil || info.IsDir() {
		return track.Track{}, false
	}
	return t, true
}

func parseExtinf(line string) (int, bool) {
	rest := strings.TrimPrefix(line, extinfPrefix)
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return 0, false
	}
	secs, err := strconv.Atoi(strings.TrimSpace(rest[:comma]))
	if err != nil {
		return 0, false
	}
	return secs, true
}
