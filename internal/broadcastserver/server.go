// Package broadcastserver implements the BroadcastServer (spec §4.8): the
// HTTP surface that serves live audio, station status, and station info.
// Routing and middleware follow the teacher's gin-based admin API shape
// (internal/radio/middleware.go, internal/radio/handler) — previously dead
// code in the teacher repo — promoted here to be the actual, exercised HTTP
// layer, since the teacher's real listener-facing server used a bare
// net/http.ServeMux instead.
package broadcastserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aetherglow-radio/core/internal/config"
	"github.com/aetherglow-radio/core/internal/metadata"
	"github.com/aetherglow-radio/core/internal/ringbuffer"
	"github.com/aetherglow-radio/core/internal/schedule"
	"github.com/aetherglow-radio/core/internal/transcode"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownGrace is how long the acceptor waits for in-flight listeners to
// notice context cancellation before the process moves on to killing
// transcoder drivers (spec §5).
const shutdownGrace = 2 * time.Second

// streamState is everything the HTTP layer needs about one enabled stream.
type streamState struct {
	cfg         config.Stream
	ring        *ringbuffer.RingBuffer
	listeners   atomic.Int64
	degraded    atomic.Bool
	lastErr     atomic.Value // string
}

// Server is the BroadcastServer: a gin.Engine plus the shared station state
// it reads from (ring buffers, metadata bus, schedule engine) to answer
// requests. It owns no write access to any of that state — everything here
// is a reader.
type Server struct {
	engine  *gin.Engine
	station config.StationConfig

	mu      sync.RWMutex
	streams map[string]*streamState

	bus   *metadata.Bus
	sched *schedule.Engine

	registry      *prometheus.Registry
	listenerGauge *prometheus.GaugeVec
}

// NewServer builds the BroadcastServer. streams must contain one entry per
// enabled [stream.*] with its already-running RingBuffer.
func NewServer(station config.StationConfig, streamCfgs []config.Stream, rings map[string]*ringbuffer.RingBuffer, bus *metadata.Bus, sched *schedule.Engine) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), securityHeaders())

	// Each station gets its own registry rather than registering against
	// prometheus.DefaultRegisterer: the binary only ever builds one Server,
	// but a private registry keeps /metrics free of the Go-runtime
	// collectors promauto's default would otherwise pull in.
	registry := prometheus.NewRegistry()
	listenerGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aetherglow_stream_listeners",
		Help: "Current number of connected listeners per stream.",
	}, []string{"stream"})
	registry.MustRegister(listenerGauge)

	s := &Server{
		engine:        engine,
		station:       station,
		streams:       make(map[string]*streamState),
		bus:           bus,
		sched:         sched,
		registry:      registry,
		listenerGauge: listenerGauge,
	}

	for _, cfg := range streamCfgs {
		s.streams[cfg.Name] = &streamState{cfg: cfg, ring: rings[cfg.Name]}
		// Create the labelled gauge up front so /metrics reports 0 for a
		// stream that has no listeners yet.
		listenerGauge.WithLabelValues(cfg.Name)
	}

	s.routes()
	return s
}

// ReportHealth records a transcoder health event for a stream. An event with
// a non-nil Err marks the stream "degraded" in /status; an event with a nil
// Err, which the driver sends on its first successful encode after being
// degraded, clears it back to "ok".
func (s *Server) ReportHealth(ev transcode.HealthEvent) {
	s.mu.RLock()
	st, ok := s.streams[ev.Stream]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if ev.Err == nil {
		st.degraded.Store(false)
		st.lastErr.Store("")
		return
	}
	st.degraded.Store(true)
	st.lastErr.Store(ev.Err.Error())
	slog.Warn("stream degraded", "stream", ev.Stream, "error", ev.Err)
}

func (s *Server) routes() {
	for name := range s.streams {
		name := name
		s.engine.GET("/"+name, func(c *gin.Context) { s.serveStream(c, name) })
	}
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/current", s.handleCurrent)
	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/openapi.json", s.handleOpenAPI)
	s.engine.GET("/swagger", s.handleSwagger)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down with
// shutdownGrace before returning.
func (s *Server) Run(ctx context.Context, addr string) error {
	// Request contexts derive from ctx, so cancelling it ends every listener
	// loop and lets Shutdown finish within shutdownGrace.
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     s.engine,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("broadcast server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	slog.Info("broadcast server shutting down", "grace", shutdownGrace)
	return httpServer.Shutdown(shutdownCtx)
}
