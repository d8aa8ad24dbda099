package chunker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// snapshot is the durable on-disk layout of the whole store. It is
// rewritten in full on every mutation.
type snapshot struct {
	Files         []SourceFile `json:"files"`
	Segments      []Segment    `json:"segments"`
	NextFileID    int64        `json:"nextFileId"`
	NextSegmentID int64        `json:"nextSegmentId"`
	LastUpdated   time.Time    `json:"lastUpdated"`
}

// Store is the durable metadata store for source files and segments.
// All access is serialized through one mutex; every mutating operation
// persists the full snapshot before returning, so a crash immediately
// after a call returns cannot lose a committed write. Id counters are
// persisted alongside the data and never derived from the current max,
// so ids are never reused across restarts.
type Store struct {
	mu   sync.RWMutex
	path string
	log  *slog.Logger

	files         map[int64]SourceFile
	segments      map[int64]Segment
	nextFileID    int64
	nextSegmentID int64
	lastUpdated   time.Time
}

// NewStore loads (or initializes) a store persisted at path. A missing or
// malformed snapshot is treated as an empty store: availability over
// strict failure on corrupt state.
func NewStore(path string, log *slog.Logger) (*Store, error) {
	s := &Store{
		path:          path,
		log:           log,
		files:         make(map[int64]SourceFile),
		segments:      make(map[int64]Segment),
		nextFileID:    1,
		nextSegmentID: 1,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("store snapshot unreadable, starting empty", "path", path, "error", err)
		}
		return s, nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Warn("store snapshot malformed, starting empty", "path", path, "error", err)
		return s, nil
	}

	for _, f := range snap.Files {
		s.files[f.ID] = f
	}
	for _, seg := range snap.Segments {
		s.segments[seg.ID] = seg
	}
	if snap.NextFileID > 0 {
		s.nextFileID = snap.NextFileID
	}
	if snap.NextSegmentID > 0 {
		s.nextSegmentID = snap.NextSegmentID
	}
	s.lastUpdated = snap.LastUpdated

	return s, nil
}

// save writes the full snapshot to disk. Caller must hold mu in write
// mode. Write goes through a temp file and rename so a crash mid-write
// leaves the previous snapshot intact.
func (s *Store) save() error {
	s.lastUpdated = time.Now().UTC()

	snap := snapshot{
		Files:         make([]SourceFile, 0, len(s.files)),
		Segments:      make([]Segment, 0, len(s.segments)),
		NextFileID:    s.nextFileID,
		NextSegmentID: s.nextSegmentID,
		LastUpdated:   s.lastUpdated,
	}
	for _, f := range s.files {
		snap.Files = append(snap.Files, f)
	}
	for _, seg := range s.segments {
		snap.Segments = append(snap.Segments, seg)
	}
	sort.Slice(snap.Files, func(i, j int) bool { return snap.Files[i].ID < snap.Files[j].ID })
	sort.Slice(snap.Segments, func(i, j int) bool { return snap.Segments[i].ID < snap.Segments[j].ID })

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write store snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit store snapshot: %w", err)
	}
	return nil
}

// CreateFile allocates an id for the given record and persists it.
// The ID and CreatedAt fields of attrs are assigned by the store.
func (s *Store) CreateFile(attrs SourceFile) (SourceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs.ID = s.nextFileID
	attrs.CreatedAt = time.Now().UTC()
	s.nextFileID++
	s.files[attrs.ID] = attrs

	if err := s.save(); err != nil {
		delete(s.files, attrs.ID)
		return SourceFile{}, err
	}
	return attrs, nil
}

// GetFile returns the file with the given id, if present.
func (s *Store) GetFile(id int64) (SourceFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	return f, ok
}

// ListFiles returns all source files ordered by id ascending.
func (s *Store) ListFiles() []SourceFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SourceFile, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteFile removes a file record and every segment record referencing
// it, atomically with respect to concurrent readers. Deleting an absent
// id is a no-op.
func (s *Store) DeleteFile(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return nil
	}
	delete(s.files, id)
	for segID, seg := range s.segments {
		if seg.FileID == id {
			delete(s.segments, segID)
		}
	}
	return s.save()
}

// CreateSegment allocates an id for the given record and persists it.
// The owning file must exist.
func (s *Store) CreateSegment(attrs Segment) (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[attrs.FileID]; !ok {
		return Segment{}, fmt.Errorf("segment references file %d: %w", attrs.FileID, ErrNotFound)
	}

	attrs.ID = s.nextSegmentID
	attrs.CreatedAt = time.Now().UTC()
	s.nextSegmentID++
	s.segments[attrs.ID] = attrs

	if err := s.save(); err != nil {
		delete(s.segments, attrs.ID)
		return Segment{}, err
	}
	return attrs, nil
}

// GetSegment returns the segment with the given id, if present.
func (s *Store) GetSegment(id int64) (Segment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	return seg, ok
}

// ListSegmentsByFile returns the segments owned by a file, ordered by
// sequence index ascending.
func (s *Store) ListSegmentsByFile(fileID int64) []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Segment, 0)
	for _, seg := range s.segments {
		if seg.FileID == fileID {
			out = append(out, seg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ListAllSegments returns every segment ordered by id ascending.
func (s *Store) ListAllSegments() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteSegment removes one segment record. Deleting an absent id is a
// no-op.
func (s *Store) DeleteSegment(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.segments[id]; !ok {
		return nil
	}
	delete(s.segments, id)
	return s.save()
}

// CleanupOrphans removes every record whose backing file is absent from
// disk and returns how many of each kind were dropped. Segments of a
// removed file are dropped with it. This is the sanctioned repair path
// for drift between store and filesystem after a crash.
func (s *Store) CleanupOrphans() (CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res CleanupResult
	for id, f := range s.files {
		if fileExists(f.Path) {
			continue
		}
		delete(s.files, id)
		res.FilesRemoved++
		for segID, seg := range s.segments {
			if seg.FileID == id {
				delete(s.segments, segID)
				res.SegmentsRemoved++
			}
		}
	}
	for id, seg := range s.segments {
		if !fileExists(seg.Path) {
			delete(s.segments, id)
			res.SegmentsRemoved++
		}
	}

	if res.FilesRemoved == 0 && res.SegmentsRemoved == 0 {
		return res, nil
	}
	return res, s.save()
}

// Stats reports store counts and counters for the diagnostics endpoint.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreStats{
		FileCount:     len(s.files),
		SegmentCount:  len(s.segments),
		NextFileID:    s.nextFileID,
		NextSegmentID: s.nextSegmentID,
		LastUpdated:   s.lastUpdated,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
