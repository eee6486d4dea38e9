package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aetherglow-radio/core/internal/broadcastserver"
	"github.com/aetherglow-radio/core/internal/config"
	"github.com/aetherglow-radio/core/internal/liveset"
	"github.com/aetherglow-radio/core/internal/metadata"
	"github.com/aetherglow-radio/core/internal/playout"
	"github.com/aetherglow-radio/core/internal/ringbuffer"
	"github.com/aetherglow-radio/core/internal/schedule"
	"github.com/aetherglow-radio/core/internal/track"
	"github.com/aetherglow-radio/core/internal/transcode"
)

// ringBufferFrames sizes every stream's RingBuffer. Each frame is one encoder
// write of at most 8KB, so a full buffer holds at most about 3.2MB; how much
// audio that covers depends on the stream's bitrate and on how full each
// write is (400 full 8KB frames are about 200 seconds at 128 kbps and about
// 80 seconds at 320 kbps). The same capacity is used for every stream.
const ringBufferFrames = 400

// driverStopGrace bounds how long the schedule engine is given to let an
// in-flight cron job finish once the HTTP acceptor has already drained.
const driverStopGrace = 5 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "config.toml", "path to the station's TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting aetherglow", "station", cfg.Station.Name, "music_dir", cfg.Library.MusicDir)

	tracks, err := track.ScanDirectory(cfg.Library.MusicDir)
	if err != nil {
		slog.Error("scanning music directory", "error", err)
		os.Exit(1)
	}
	slog.Info("library scanned", "tracks", len(tracks))

	library := track.NewLibraryProvider(tracks, cfg.Library.Shuffle, cfg.Library.Repeat)
	controller := playout.New(library)

	var livesetProvider liveset.Provider
	if cfg.Liveset.FeedURL != "" {
		livesetProvider = liveset.NewHTTPProvider(cfg.Liveset.FeedURL)
	}

	schedEngine := schedule.New(cfg, controller, livesetProvider)
	bus := metadata.NewBus()

	enabledStreams := cfg.EnabledStreams()
	if len(enabledStreams) == 0 {
		// Validate already guarantees this can't happen, but a future
		// refactor shouldn't be able to silently start a stationless server.
		slog.Error("no enabled streams")
		os.Exit(1)
	}
	primary := enabledStreams[0].Name

	var srv *broadcastserver.Server
	rings := make(map[string]*ringbuffer.RingBuffer, len(enabledStreams))
	drivers := make([]*transcode.Driver, 0, len(enabledStreams))

	for _, sc := range enabledStreams {
		ring := ringbuffer.New(ringBufferFrames)
		rings[sc.Name] = ring

		encoder := transcode.NewEncoder(cfg.Transcoder.Binary, sc.Format, sc.Bitrate, sc.SampleRate, sc.Channels)

		var driverBus *metadata.Bus
		if sc.Name == primary {
			driverBus = bus
		}

		onDegraded := func(ev transcode.HealthEvent) {
			if srv != nil {
				srv.ReportHealth(ev)
			}
		}
		drivers = append(drivers, transcode.NewDriver(sc.Name, encoder, ring, controller, driverBus, onDegraded))
	}

	srv = broadcastserver.NewServer(cfg.Station, enabledStreams, rings, bus, schedEngine)

	acceptorCtx, cancelAcceptor := context.WithCancel(context.Background())
	driverCtx, cancelDrivers := context.WithCancel(context.Background())

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutdown signal received")
		cancelAcceptor()
	}()

	schedEngine.Start()
	for _, d := range drivers {
		go d.Run(driverCtx)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Bind, cfg.Server.Port)
	if err := srv.Run(acceptorCtx, addr); err != nil {
		slog.Error("broadcast server error", "error", err)
		cancelDrivers()
		os.Exit(1)
	}

	slog.Info("listeners drained, stopping transcoders")
	cancelDrivers()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), driverStopGrace)
	schedEngine.Stop(stopCtx)
	cancelStop()

	slog.Info("shutdown complete")
}
