package track

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
)

// supportedExt lists the audio file extensions the directory scanner
// recognizes outright, without needing to sniff content.
var supportedExt = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".aac":  true,
	".ogg":  true,
	".m4a":  true,
}

// ScanDirectory walks musicDir recursively and builds a Track for every
// supported audio file found, sorted by path for deterministic ordering
// (the ordering that LibraryProvider's shuffle seed is computed against).
// Files that cannot be opened are skipped with a warning; files whose tags
// cannot be read are kept with a filename-derived title. Scanning never
// aborts on a single bad file, matching the "Source" error class in spec §7.
func ScanDirectory(musicDir string) ([]Track, error) {
	info, err := os.Stat(musicDir)
	if err != nil {
		return nil, fmt.Errorf("cannot access music directory %q: %w", musicDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", musicDir)
	}

	var tracks []Track

	err = filepath.Walk(musicDir, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			slog.Warn("error accessing path during library scan", "path", path, "error", walkErr)
			return nil
		}
		if fi.IsDir() {
			return nil
		}
		if !looksLikeAudio(path) {
			return nil
		}

		t, err := buildTrack(path, fi)
		if err != nil {
			slog.Warn("skipping unreadable track", "path", path, "error", err)
			return nil
		}
		tracks = append(tracks, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking music directory %q: %w", musicDir, err)
	}

	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Path < tracks[j].Path })

	slog.Info("library scan complete", "directory", musicDir, "tracks_found", len(tracks))
	return tracks, nil
}

// looksLikeAudio recognizes files by extension first; when the extension is
// missing or unrecognized it falls back to content sniffing via mimetype so
// that e.g. extension-less files dropped into the library directory are
// still picked up.
func looksLikeAudio(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if supportedExt[ext] {
		return true
	}
	if ext != "" {
		return false
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt.String(), "audio/")
}

func buildTrack(path string, fi os.FileInfo) (Track, error) {
	filename := filepath.Base(path)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))

	t := Track{
		Path:  path,
		Title: title,
	}

	size := fi.Size()
	t.FileSize = &size
	modTime := fi.ModTime()
	t.LastModified = &modTime

	f, err := os.Open(path)
	if err != nil {
		return Track{}, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		// Missing/unreadable tags are not fatal: keep the filename-derived
		// title and move on.
		slog.Debug("no tag metadata", "path", path, "error", err)
		return t, nil
	}

	if m.Title() != "" {
		t.Title = m.Title()
	}
	if m.Artist() != "" {
		t.Artist = m.Artist()
	}
	if m.Album() != "" {
		t.Album = m.Album()
	}

	return t, nil
}
