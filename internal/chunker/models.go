package chunker

import "time"

// SourceFile is an uploaded audio file tracked by the metadata store.
// Duration and Bitrate are zero until the probe has run.
type SourceFile struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	Duration     int64     `json:"duration"`
	Bitrate      int64     `json:"bitrate"`
	ContentType  string    `json:"content_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Segment is one time-bounded, stream-copied slice of a source file.
// Start/End are whole seconds forming the half-open range [Start, End)
// relative to the source. Index is 1-based in ascending start order.
type Segment struct {
	ID        int64     `json:"id"`
	FileID    int64     `json:"file_id"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Duration  int64     `json:"duration"`
	Start     int64     `json:"start"`
	End       int64     `json:"end"`
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// NamingScheme selects how segment output filenames are derived.
type NamingScheme string

const (
	NamingSequential  NamingScheme = "sequential"
	NamingTimestamped NamingScheme = "timestamped"
	NamingCustom      NamingScheme = "custom-prefix"
)

// ChunkRequest describes one segmentation run. It is never persisted.
type ChunkRequest struct {
	FileID        int64        `json:"fileId"`
	ChunkDuration int          `json:"chunkDuration"` // minutes, 1..60
	NamingFormat  NamingScheme `json:"namingFormat"`
	CustomPrefix  string       `json:"customPrefix,omitempty"`
}

// Event types pushed over the realtime channel.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventFailed   = "failed"
)

// ProgressEvent is the tagged union sent to run observers.
// Type is one of EventProgress, EventComplete, EventFailed; the other
// fields are populated per type.
type ProgressEvent struct {
	Type string `json:"type"`
	Data struct {
		FileID           int64     `json:"fileId"`
		PercentComplete  int       `json:"percentComplete,omitempty"`
		CurrentIndex     int       `json:"currentIndex,omitempty"`
		TotalCount       int       `json:"totalCount,omitempty"`
		EstimatedSecLeft int64     `json:"estimatedSecondsRemaining,omitempty"`
		SpeedMultiplier  float64   `json:"speedMultiplier,omitempty"`
		Segments         []Segment `json:"segments,omitempty"`
		Message          string    `json:"message,omitempty"`
	} `json:"data"`
}

// ProbeResult is what the media inspector extracts from a source file.
type ProbeResult struct {
	DurationSeconds float64
	Bitrate         int64
}

// StoreStats summarizes the metadata store for the diagnostics endpoint.
type StoreStats struct {
	FileCount     int       `json:"file_count"`
	SegmentCount  int       `json:"segment_count"`
	NextFileID    int64     `json:"next_file_id"`
	NextSegmentID int64     `json:"next_segment_id"`
	LastUpdated   time.Time `json:"last_updated"`
}

// CleanupResult reports how many orphaned records a reconciliation removed.
type CleanupResult struct {
	FilesRemoved    int `json:"files_removed"`
	SegmentsRemoved int `json:"segments_removed"`
}

func progressEvent(fileID int64, percent, index, total int, estLeft int64, speed float64) ProgressEvent {
	var ev ProgressEvent
	ev.Type = EventProgress
	ev.Data.FileID = fileID
	ev.Data.PercentComplete = percent
	ev.Data.CurrentIndex = index
	ev.Data.TotalCount = total
	ev.Data.EstimatedSecLeft = estLeft
	ev.Data.SpeedMultiplier = speed
	return ev
}

func completeEvent(fileID int64, segments []Segment) ProgressEvent {
	var ev ProgressEvent
	ev.Type = EventComplete
	ev.Data.FileID = fileID
	ev.Data.Segments = segments
	return ev
}

func failedEvent(fileID int64, message string) ProgressEvent {
	var ev ProgressEvent
	ev.Type = EventFailed
	ev.Data.FileID = fileID
	ev.Data.Message = message
	return ev
}
