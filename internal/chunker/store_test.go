package chunker

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "database.json")
	s, err := NewStore(path, testLogger(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, path
}

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
	return path
}

func TestStore_CreateFile_assigns_ids(t *testing.T) {
	s, _ := newTestStore(t)

	f1, err := s.CreateFile(SourceFile{OriginalName: "a.mp3"})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	f2, err := s.CreateFile(SourceFile{OriginalName: "b.mp3"})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	if f1.ID != 1 || f2.ID != 2 {
		t.Errorf("expected ids 1,2 got %d,%d", f1.ID, f2.ID)
	}
	if f1.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, ok := s.GetFile(f1.ID)
	if !ok || got.OriginalName != "a.mp3" {
		t.Errorf("GetFile: ok=%v got %+v", ok, got)
	}
}

func TestStore_ListFiles_ordered(t *testing.T) {
	s, _ := newTestStore(t)
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		if _, err := s.CreateFile(SourceFile{OriginalName: name}); err != nil {
			t.Fatal(err)
		}
	}
	files := s.ListFiles()
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	for i, f := range files {
		if f.ID != int64(i+1) {
			t.Errorf("expected ascending ids, got %v", files)
		}
	}
}

func TestStore_CreateSegment_requires_file(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.CreateSegment(Segment{FileID: 99})
	if err == nil {
		t.Error("expected error for segment referencing missing file")
	}
}

func TestStore_ListSegmentsByFile_ordered_by_index(t *testing.T) {
	s, _ := newTestStore(t)
	f, _ := s.CreateFile(SourceFile{OriginalName: "a.mp3"})

	// Insert out of index order.
	for _, idx := range []int{2, 1, 3} {
		if _, err := s.CreateSegment(Segment{FileID: f.ID, Index: idx}); err != nil {
			t.Fatal(err)
		}
	}

	segs := s.ListSegmentsByFile(f.ID)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for i, seg := range segs {
		if seg.Index != i+1 {
			t.Errorf("expected index order 1,2,3, got %v", segs)
		}
	}
}

func TestStore_DeleteFile_cascades(t *testing.T) {
	s, _ := newTestStore(t)
	f, _ := s.CreateFile(SourceFile{OriginalName: "a.mp3"})
	other, _ := s.CreateFile(SourceFile{OriginalName: "b.mp3"})
	_, _ = s.CreateSegment(Segment{FileID: f.ID, Index: 1})
	_, _ = s.CreateSegment(Segment{FileID: f.ID, Index: 2})
	kept, _ := s.CreateSegment(Segment{FileID: other.ID, Index: 1})

	if err := s.DeleteFile(f.ID); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	if _, ok := s.GetFile(f.ID); ok {
		t.Error("file should be gone")
	}
	if segs := s.ListSegmentsByFile(f.ID); len(segs) != 0 {
		t.Errorf("cascade should remove segments, got %v", segs)
	}
	if _, ok := s.GetSegment(kept.ID); !ok {
		t.Error("other file's segment should survive")
	}
}

func TestStore_DeleteFile_idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	f, _ := s.CreateFile(SourceFile{OriginalName: "a.mp3"})

	if err := s.DeleteFile(f.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.DeleteFile(f.ID); err != nil {
		t.Errorf("second delete should be a no-op: %v", err)
	}
	if err := s.DeleteFile(4242); err != nil {
		t.Errorf("deleting unknown id should be a no-op: %v", err)
	}
}

func TestStore_DeleteSegment_idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	f, _ := s.CreateFile(SourceFile{OriginalName: "a.mp3"})
	seg, _ := s.CreateSegment(Segment{FileID: f.ID, Index: 1})

	if err := s.DeleteSegment(seg.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.DeleteSegment(seg.ID); err != nil {
		t.Errorf("second delete should be a no-op: %v", err)
	}
}

func TestStore_persistence_survives_reload(t *testing.T) {
	s, path := newTestStore(t)
	f, _ := s.CreateFile(SourceFile{OriginalName: "a.mp3", Size: 42})
	seg, _ := s.CreateSegment(Segment{FileID: f.ID, Index: 1, Start: 0, End: 600})
	// Consume ids then delete, so reloaded counters must not regress to max+1.
	f2, _ := s.CreateFile(SourceFile{OriginalName: "b.mp3"})
	_ = s.DeleteFile(f2.ID)

	reloaded, err := NewStore(path, testLogger(t))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	got, ok := reloaded.GetFile(f.ID)
	if !ok || got.OriginalName != "a.mp3" || got.Size != 42 {
		t.Errorf("reloaded file: ok=%v got %+v", ok, got)
	}
	gotSeg, ok := reloaded.GetSegment(seg.ID)
	if !ok || gotSeg.End != 600 {
		t.Errorf("reloaded segment: ok=%v got %+v", ok, gotSeg)
	}

	stats := reloaded.Stats()
	if stats.NextFileID != 3 {
		t.Errorf("next file id must be persisted, not derived: got %d want 3", stats.NextFileID)
	}
	if stats.NextSegmentID != 2 {
		t.Errorf("next segment id: got %d want 2", stats.NextSegmentID)
	}
}

func TestStore_malformed_snapshot_loads_empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.json")
	touch(t, path) // "x" is not valid JSON

	s, err := NewStore(path, testLogger(t))
	if err != nil {
		t.Fatalf("corrupt snapshot must not be fatal: %v", err)
	}
	if n := len(s.ListFiles()); n != 0 {
		t.Errorf("expected empty store, got %d files", n)
	}
	if stats := s.Stats(); stats.NextFileID != 1 || stats.NextSegmentID != 1 {
		t.Errorf("expected fresh counters, got %+v", stats)
	}
}

func TestStore_CleanupOrphans_noop_when_consistent(t *testing.T) {
	s, _ := newTestStore(t)
	dir := t.TempDir()

	f, _ := s.CreateFile(SourceFile{OriginalName: "a.mp3", Path: touch(t, filepath.Join(dir, "a.mp3"))})
	_, _ = s.CreateSegment(Segment{FileID: f.ID, Index: 1, Path: touch(t, filepath.Join(dir, "seg1.mp3"))})

	res, err := s.CleanupOrphans()
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if res.FilesRemoved != 0 || res.SegmentsRemoved != 0 {
		t.Errorf("expected no-op on consistent store, got %+v", res)
	}
}

func TestStore_CleanupOrphans_removes_only_missing(t *testing.T) {
	s, _ := newTestStore(t)
	dir := t.TempDir()

	f, _ := s.CreateFile(SourceFile{OriginalName: "a.mp3", Path: touch(t, filepath.Join(dir, "a.mp3"))})
	alive, _ := s.CreateSegment(Segment{FileID: f.ID, Index: 1, Path: touch(t, filepath.Join(dir, "seg1.mp3"))})
	orphan, _ := s.CreateSegment(Segment{FileID: f.ID, Index: 2, Path: touch(t, filepath.Join(dir, "seg2.mp3"))})

	// Remove one segment's backing file out of band.
	if err := os.Remove(orphan.Path); err != nil {
		t.Fatal(err)
	}

	res, err := s.CleanupOrphans()
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if res.FilesRemoved != 0 || res.SegmentsRemoved != 1 {
		t.Errorf("expected exactly one segment removed, got %+v", res)
	}
	if _, ok := s.GetSegment(orphan.ID); ok {
		t.Error("orphaned segment record should be gone")
	}
	if _, ok := s.GetSegment(alive.ID); !ok {
		t.Error("live segment record should survive")
	}
}

func TestStore_CleanupOrphans_missing_source_drops_segments(t *testing.T) {
	s, _ := newTestStore(t)
	dir := t.TempDir()

	f, _ := s.CreateFile(SourceFile{OriginalName: "a.mp3", Path: filepath.Join(dir, "gone.mp3")})
	_, _ = s.CreateSegment(Segment{FileID: f.ID, Index: 1, Path: touch(t, filepath.Join(dir, "seg1.mp3"))})

	res, err := s.CleanupOrphans()
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if res.FilesRemoved != 1 || res.SegmentsRemoved != 1 {
		t.Errorf("expected file and its segment removed, got %+v", res)
	}
}

func TestStore_Stats(t *testing.T) {
	s, _ := newTestStore(t)
	f, _ := s.CreateFile(SourceFile{OriginalName: "a.mp3"})
	_, _ = s.CreateSegment(Segment{FileID: f.ID, Index: 1})

	stats := s.Stats()
	if stats.FileCount != 1 || stats.SegmentCount != 1 {
		t.Errorf("counts: %+v", stats)
	}
	if stats.LastUpdated.IsZero() {
		t.Error("LastUpdated should be set after mutations")
	}
}
