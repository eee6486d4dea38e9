// Package liveset supplies remote DJ-mix URLs for schedule programs whose
// kind is Liveset rather than Playlist. The feed itself (what genres exist,
// which URLs back them) is owned by an external service; this package only
// defines the consumption contract and an HTTP-backed implementation.
package liveset

// Provider yields the next opaque HTTP URL for a genre set. Implementations
// filter by genre server-side or client-side; when the genre filter yields
// nothing, they fall back to the unfiltered feed per spec §4.4. ok is false
// ("Empty") when no URL at all is available, which causes the calling
// program to terminate early and hand control back to library playout.
type Provider interface {
	NextURL(genres []string) (url string, ok bool)
}
