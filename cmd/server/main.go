package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"audio-chunker/internal/chunker"
	"audio-chunker/internal/platform/config"
	"audio-chunker/internal/platform/logger"
	"audio-chunker/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	dataDir := config.GetEnv("DATA_DIR", "data")
	ffmpegPath := config.GetEnv("FFMPEG_PATH", "ffmpeg")
	ffprobePath := config.GetEnv("FFPROBE_PATH", "ffprobe")
	probeTimeout := config.GetEnvDuration("PROBE_TIMEOUT", chunker.DefaultProbeTimeout)
	segmentTimeout := config.GetEnvDuration("SEGMENT_TIMEOUT", chunker.DefaultSegmentTimeout)
	maxUploadMB := config.GetEnvInt("MAX_UPLOAD_MB", 500)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	store, err := chunker.NewStore(filepath.Join(dataDir, "database.json"), log)
	if err != nil {
		log.Error("store init failed", "error", err)
		os.Exit(1)
	}

	runner := chunker.ExecRunner{}
	prober := chunker.NewProber(runner, ffprobePath, probeTimeout)
	segmenter := chunker.NewSegmenter(runner, prober, ffmpegPath, segmentTimeout)
	hub := chunker.NewHub()
	met := metrics.New()

	svc := chunker.NewService(store, prober, segmenter, hub, log, chunker.ServiceConfig{
		UploadsDir:     filepath.Join(dataDir, "uploads"),
		SegmentsDir:    filepath.Join(dataDir, "segments"),
		MaxUploadBytes: int64(maxUploadMB) << 20,
		Metrics:        met,
	})
	h := chunker.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			stats := svc.Stats()
			met.SetStoredFiles(stats.FileCount)
			met.SetStoredSegments(stats.SegmentCount)
			met.SetProgressObservers(hub.SubscriberCount())
		}).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"data_dir", dataDir,
		"ffmpeg", ffmpegPath,
		"ffprobe", ffprobePath,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
