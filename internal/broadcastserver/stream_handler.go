package broadcastserver

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// contentTypeFor maps a stream's configured format to its HTTP Content-Type.
func contentTypeFor(format string) string {
	switch format {
	case "aac":
		return "audio/aac"
	case "opus", "ogg":
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}

// serveStream implements the listener loop from spec §4.8: subscribe at
// head, read-or-wait, and on Lagged re-subscribe at head rather than ever
// stalling the listener.
func (s *Server) serveStream(c *gin.Context, name string) {
	s.mu.RLock()
	st, ok := s.streams[name]
	s.mu.RUnlock()
	if !ok || st.ring == nil {
		c.Status(http.StatusNotFound)
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", contentTypeFor(st.cfg.Format))
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("icy-name", s.station.Name)
	w.Header().Set("icy-description", s.station.Description)
	w.Header().Set("icy-genre", s.station.Genre)
	w.Header().Set("icy-url", s.station.URL)
	w.Header().Set("icy-br", fmt.Sprintf("%d", st.cfg.Bitrate))
	w.Header().Set("icy-pub", "1")

	var out io.Writer = w
	if st.cfg.IcyMetadata {
		w.Header().Set("icy-metaint", strconv.Itoa(icyMetaInterval))
		out = newICYMetaWriter(w, func() string {
			cur, ok := s.bus.Current()
			if !ok {
				return ""
			}
			if cur.Artist != "" {
				return cur.Artist + " - " + cur.Title
			}
			return cur.Title
		})
	}
	w.WriteHeader(http.StatusOK)
	// gin defers the status line until the first write; send the headers now
	// so the listener sees them before any audio has been pushed.
	w.Flush()

	st.listeners.Add(1)
	s.listenerGauge.WithLabelValues(name).Inc()
	defer func() {
		st.listeners.Add(-1)
		s.listenerGauge.WithLabelValues(name).Dec()
	}()

	ctx := c.Request.Context()
	cursor := st.ring.Subscribe()

	for {
		if ctx.Err() != nil {
			return
		}

		chunks, next, lagged := st.ring.Read(cursor)
		if lagged {
			cursor = st.ring.Subscribe()
			continue
		}
		if len(chunks) == 0 {
			if !st.ring.Wait(ctx, cursor) {
				return
			}
			continue
		}

		for _, chunk := range chunks {
			if _, err := out.Write(chunk); err != nil {
				return
			}
		}
		w.Flush()
		cursor = next
	}
}
