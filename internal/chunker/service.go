package chunker

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"audio-chunker/internal/platform/metrics"

	"github.com/google/uuid"
)

// MaxUploadBytes is the default upload size cap (500MB).
const MaxUploadBytes = 500 << 20

// ServiceConfig carries the filesystem layout and limits for a Service.
type ServiceConfig struct {
	// UploadsDir is the staging area for original uploads.
	UploadsDir string
	// SegmentsDir holds one subdirectory per source file id.
	SegmentsDir string
	// MaxUploadBytes caps upload size; 0 means MaxUploadBytes.
	MaxUploadBytes int64
	// Metrics may be nil to disable metric recording (e.g. in tests).
	Metrics *metrics.Metrics
}

// Service ties the store, prober, segmenter, and hub together. Chunking
// runs are launched asynchronously; their errors are observable only via
// the hub or by polling segment state, never thrown back at the caller
// that received "accepted".
type Service struct {
	store     *Store
	prober    *Prober
	segmenter *Segmenter
	hub       *Hub
	log       *slog.Logger
	cfg       ServiceConfig

	mu      sync.Mutex
	running map[int64]bool
	wg      sync.WaitGroup
}

// NewService wires a Service from its collaborators.
func NewService(store *Store, prober *Prober, segmenter *Segmenter, hub *Hub, log *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = MaxUploadBytes
	}
	return &Service{
		store:     store,
		prober:    prober,
		segmenter: segmenter,
		hub:       hub,
		log:       log,
		cfg:       cfg,
		running:   make(map[int64]bool),
	}
}

// Hub exposes the progress hub for the realtime endpoint.
func (s *Service) Hub() *Hub { return s.hub }

// Upload validates, stages, probes, and records one uploaded audio file.
func (s *Service) Upload(r io.Reader, originalName, contentType string) (SourceFile, error) {
	if err := validateUpload(originalName, contentType); err != nil {
		return SourceFile{}, err
	}

	if err := os.MkdirAll(s.cfg.UploadsDir, 0o755); err != nil {
		return SourceFile{}, fmt.Errorf("create uploads dir: %w", err)
	}

	stored := uuid.NewString() + ".mp3"
	path := filepath.Join(s.cfg.UploadsDir, stored)

	f, err := os.Create(path)
	if err != nil {
		return SourceFile{}, fmt.Errorf("stage upload: %w", err)
	}

	// Copy one byte past the cap so an oversized body is detectable
	// without buffering it.
	n, err := io.Copy(f, io.LimitReader(r, s.cfg.MaxUploadBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return SourceFile{}, fmt.Errorf("stage upload: %w", err)
	}
	if n > s.cfg.MaxUploadBytes {
		os.Remove(path)
		return SourceFile{}, validationf("file exceeds %dMB limit", s.cfg.MaxUploadBytes>>20)
	}
	if n == 0 {
		os.Remove(path)
		return SourceFile{}, validationf("empty upload")
	}

	probe, err := s.prober.Probe(context.Background(), path)
	if err != nil {
		os.Remove(path)
		return SourceFile{}, err
	}

	file, err := s.store.CreateFile(SourceFile{
		Filename:     stored,
		OriginalName: originalName,
		Path:         path,
		Size:         n,
		Duration:     int64(probe.DurationSeconds),
		Bitrate:      probe.Bitrate,
		ContentType:  contentType,
	})
	if err != nil {
		os.Remove(path)
		return SourceFile{}, err
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncUploads()
	}
	s.log.Info("file uploaded",
		"file_id", file.ID,
		"original_name", originalName,
		"size", n,
		"duration", file.Duration,
	)
	return file, nil
}

// StartChunking validates req and launches the segmenter asynchronously.
// It returns as soon as the run is accepted. A second request for a file
// whose run is still in flight is rejected with ErrRunInProgress rather
// than spawning a run that would interleave writes in the same directory.
func (s *Service) StartChunking(req ChunkRequest) error {
	file, ok := s.store.GetFile(req.FileID)
	if !ok {
		return fmt.Errorf("file %d: %w", req.FileID, ErrNotFound)
	}
	if req.ChunkDuration < 1 || req.ChunkDuration > 60 {
		return validationf("chunkDuration must be between 1 and 60 minutes, got %d", req.ChunkDuration)
	}
	switch req.NamingFormat {
	case NamingSequential, NamingTimestamped:
	case NamingCustom:
		if strings.TrimSpace(req.CustomPrefix) == "" {
			return validationf("customPrefix is required for the custom-prefix naming format")
		}
	case "":
		req.NamingFormat = NamingSequential
	default:
		return validationf("unknown naming format %q", req.NamingFormat)
	}

	s.mu.Lock()
	if s.running[file.ID] {
		s.mu.Unlock()
		return fmt.Errorf("file %d: %w", file.ID, ErrRunInProgress)
	}
	s.running[file.ID] = true
	s.mu.Unlock()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncRunsStarted()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, file.ID)
			s.mu.Unlock()
		}()
		s.runChunking(file, req)
	}()

	return nil
}

// runChunking executes one run in its own goroutine. Each produced
// segment is persisted before the corresponding progress event is
// published, so listSegmentsByFile never lags behind observers.
func (s *Service) runChunking(file SourceFile, req ChunkRequest) {
	outDir := filepath.Join(s.cfg.SegmentsDir, strconv.FormatInt(file.ID, 10))

	commit := func(seg Segment) (Segment, error) {
		stored, err := s.store.CreateSegment(seg)
		if err != nil {
			return Segment{}, err
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncSegmentsCreated()
		}
		return stored, nil
	}

	s.log.Info("chunking run started",
		"file_id", file.ID,
		"chunk_minutes", req.ChunkDuration,
		"naming_format", string(req.NamingFormat),
	)

	segments, err := s.segmenter.Split(context.Background(), file, req, outDir, commit, s.hub.Publish)
	if err != nil {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncRunsFailed()
		}
		s.log.Error("chunking run failed", "file_id", file.ID, "error", err.Error())
		return
	}

	s.log.Info("chunking run complete", "file_id", file.ID, "segments", len(segments))
}

// Wait blocks until all in-flight chunking runs have finished. Used at
// shutdown and in tests.
func (s *Service) Wait() { s.wg.Wait() }

// ListFiles returns all source files.
func (s *Service) ListFiles() []SourceFile { return s.store.ListFiles() }

// ListSegmentsByFile returns a file's segments ordered by index.
func (s *Service) ListSegmentsByFile(fileID int64) []Segment {
	return s.store.ListSegmentsByFile(fileID)
}

// ListAllSegments returns every segment.
func (s *Service) ListAllSegments() []Segment { return s.store.ListAllSegments() }

// DeleteFile removes the source file, all its segment files and records,
// and the original upload from disk. Idempotent if the id is absent.
func (s *Service) DeleteFile(id int64) error {
	file, ok := s.store.GetFile(id)
	if !ok {
		return nil
	}

	for _, seg := range s.store.ListSegmentsByFile(id) {
		if err := removeIfPresent(seg.Path); err != nil {
			return err
		}
	}
	if err := removeIfPresent(file.Path); err != nil {
		return err
	}
	// Per-file segment directory is empty now; best-effort removal.
	os.Remove(filepath.Join(s.cfg.SegmentsDir, strconv.FormatInt(id, 10)))

	if err := s.store.DeleteFile(id); err != nil {
		return err
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncFilesDeleted()
	}
	s.log.Info("file deleted", "file_id", id)
	return nil
}

// DeleteSegment removes one segment's file and record. Idempotent if the
// id is absent.
func (s *Service) DeleteSegment(id int64) error {
	seg, ok := s.store.GetSegment(id)
	if !ok {
		return nil
	}
	if err := removeIfPresent(seg.Path); err != nil {
		return err
	}
	return s.store.DeleteSegment(id)
}

// OpenSegment returns a segment's record and an open handle to its file
// for download streaming. The caller closes the handle.
func (s *Service) OpenSegment(id int64) (Segment, *os.File, error) {
	seg, ok := s.store.GetSegment(id)
	if !ok {
		return Segment{}, nil, fmt.Errorf("segment %d: %w", id, ErrNotFound)
	}
	f, err := os.Open(seg.Path)
	if err != nil {
		return Segment{}, nil, fmt.Errorf("open segment %d: %w", id, err)
	}
	return seg, f, nil
}

// WriteArchive streams a zip of every live segment file for a source
// straight onto w, never buffering whole files in memory. Segments whose
// backing file has gone missing are skipped.
func (s *Service) WriteArchive(fileID int64, w io.Writer) error {
	if _, ok := s.store.GetFile(fileID); !ok {
		return fmt.Errorf("file %d: %w", fileID, ErrNotFound)
	}

	zw := zip.NewWriter(w)
	for _, seg := range s.store.ListSegmentsByFile(fileID) {
		f, err := os.Open(seg.Path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			zw.Close()
			return fmt.Errorf("open segment %d: %w", seg.ID, err)
		}
		entry, err := zw.Create(seg.Filename)
		if err == nil {
			_, err = io.Copy(entry, f)
		}
		f.Close()
		if err != nil {
			zw.Close()
			return fmt.Errorf("archive segment %d: %w", seg.ID, err)
		}
	}
	return zw.Close()
}

// CleanupOrphans delegates to the store's reconciliation pass.
func (s *Service) CleanupOrphans() (CleanupResult, error) { return s.store.CleanupOrphans() }

// Stats delegates to the store.
func (s *Service) Stats() StoreStats { return s.store.Stats() }

func validateUpload(originalName, contentType string) error {
	if !strings.EqualFold(filepath.Ext(originalName), ".mp3") {
		return validationf("only .mp3 files are accepted, got %q", originalName)
	}
	switch {
	case contentType == "",
		contentType == "application/octet-stream",
		strings.HasPrefix(contentType, "audio/"):
		return nil
	}
	return validationf("unsupported content type %q", contentType)
}

func removeIfPresent(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
