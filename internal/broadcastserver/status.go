package broadcastserver

import (
	"time"

	"github.com/gin-gonic/gin"
)

type streamStatus struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	BufferChunks int    `json:"buffer_chunks"`
	BufferSize   int    `json:"buffer_size"`
	Listeners    int64  `json:"listeners"`
}

type currentTrackView struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	FilePath string `json:"file_path"`
	Duration *int   `json:"duration,omitempty"`
}

// activeProgramView reports the schedule engine's best-effort notion of
// which program is on air, per spec §4.5. Null when no run is current (none
// has fired yet, or the last run's end_at has passed) or the schedule engine
// wasn't wired in (sched == nil).
type activeProgramView struct {
	Name      string    `json:"name"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	EndAt     time.Time `json:"end_at"`
}

func (s *Server) activeProgramView() *activeProgramView {
	if s.sched == nil {
		return nil
	}
	ap, ok := s.sched.Active()
	if !ok {
		return nil
	}
	return &activeProgramView{
		Name:      ap.ProgramName,
		RunID:     ap.RunID.String(),
		StartedAt: ap.StartedAt,
		EndAt:     ap.EndAt,
	}
}

func (s *Server) currentTrackView() *currentTrackView {
	cur, ok := s.bus.Current()
	if !ok {
		return nil
	}
	return &currentTrackView{
		Title:    cur.Title,
		Artist:   cur.Artist,
		Album:    cur.Album,
		FilePath: cur.FilePath,
		Duration: cur.DurationSeconds,
	}
}

// handleStatus implements GET /status.
func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	streams := make([]streamStatus, 0, len(s.streams))
	for name, st := range s.streams {
		chunks, size := 0, 0
		if st.ring != nil {
			chunks, size = st.ring.Stats()
		}
		status := "ok"
		if st.degraded.Load() {
			status = "degraded"
		}
		streams = append(streams, streamStatus{
			Name:         name,
			Status:       status,
			BufferChunks: chunks,
			BufferSize:   size,
			Listeners:    st.listeners.Load(),
		})
	}

	c.JSON(200, gin.H{
		"status":         "online",
		"streams":        streams,
		"current_track":  s.currentTrackView(),
		"active_program": s.activeProgramView(),
	})
}

// handleCurrent implements GET /current.
func (s *Server) handleCurrent(c *gin.Context) {
	view := s.currentTrackView()
	if view == nil {
		c.JSON(200, gin.H{"title": nil, "artist": nil, "album": nil, "file_path": nil})
		return
	}
	c.JSON(200, view)
}
