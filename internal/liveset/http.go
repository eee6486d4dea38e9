package liveset

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// feedEntry is one item in the remote liveset feed.
type feedEntry struct {
	URL    string   `json:"url"`
	Genres []string `json:"genres"`
}

// genreCursor tracks round-robin position through a genre-filtered view of
// the feed, refreshed once the feed is older than cacheTTL.
type genreCursor struct {
	urls      []string
	pos       int
	fetchedAt time.Time
}

// HTTPProvider fetches a JSON feed of {url, genres} entries over HTTP, using
// a retrying client so a single transient network blip doesn't immediately
// hand control back to library playout. Genre matching is case-insensitive
// with spaces normalized to hyphens, matching typical tag conventions.
type HTTPProvider struct {
	feedURL  string
	client   *retryablehttp.Client
	cacheTTL time.Duration

	mu      sync.Mutex
	entries []feedEntry
	fetched time.Time
	cursors map[string]*genreCursor
}

// NewHTTPProvider creates a provider backed by the given feed URL, fetched
// with a retryablehttp client (exponential backoff, up to 4 retries).
func NewHTTPProvider(feedURL string) *HTTPProvider {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 4

	return &HTTPProvider{
		feedURL:  feedURL,
		client:   client,
		cacheTTL: 5 * time.Minute,
		cursors:  make(map[string]*genreCursor),
	}
}

func (p *HTTPProvider) refreshLocked() error {
	if !p.fetched.IsZero() && time.Since(p.fetched) < p.cacheTTL {
		return nil
	}

	resp, err := p.client.Get(p.feedURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var entries []feedEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return err
	}

	p.entries = entries
	p.fetched = time.Now()
	p.cursors = make(map[string]*genreCursor)
	return nil
}

func genreKey(genres []string) string {
	normalized := make([]string, len(genres))
	for i, g := range genres {
		normalized[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(g)), " ", "-")
	}
	return strings.Join(normalized, ",")
}

func matchesGenre(entry feedEntry, wanted map[string]bool) bool {
	for _, g := range entry.Genres {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(g)), " ", "-")
		if wanted[key] {
			return true
		}
	}
	return false
}

// NextURL implements Provider. It refreshes the cached feed if stale,
// builds (or reuses) a genre-filtered round-robin cursor, and returns the
// next URL in it. Falls back to the unfiltered feed when the genre filter
// matches nothing.
func (p *HTTPProvider) NextURL(genres []string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.refreshLocked(); err != nil {
		slog.Warn("liveset feed fetch failed", "feed", p.feedURL, "error", err)
		return "", false
	}
	if len(p.entries) == 0 {
		return "", false
	}

	key := genreKey(genres)
	cur, ok := p.cursors[key]
	if !ok {
		wanted := make(map[string]bool, len(genres))
		for _, g := range genres {
			wanted[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(g)), " ", "-")] = true
		}

		var urls []string
		if len(wanted) > 0 {
			for _, e := range p.entries {
				if matchesGenre(e, wanted) {
					urls = append(urls, e.URL)
				}
			}
		}
		if len(urls) == 0 {
			// No genre match (or no genres requested): fall back to the
			// unfiltered feed.
			for _, e := range p.entries {
				urls = append(urls, e.URL)
			}
		}

		cur = &genreCursor{urls: urls, fetchedAt: p.fetched}
		p.cursors[key] = cur
	}

	if len(cur.urls) == 0 {
		return "", false
	}

	url := cur.urls[cur.pos%len(cur.urls)]
	cur.pos++
	return url, true
}
