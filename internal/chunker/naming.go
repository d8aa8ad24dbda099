package chunker

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// SegmentRange is one planned extraction: the half-open range
// [Start, End) in untruncated seconds relative to the source.
type SegmentRange struct {
	Start float64
	End   float64
}

// PlanSegments splits a total duration into contiguous ranges of at most
// segmentSeconds each. Ranges start at 0, cover [0, duration) exactly, and
// the last range absorbs the remainder. An empty plan is returned when
// either input is non-positive.
func PlanSegments(duration float64, segmentSeconds int) []SegmentRange {
	if duration <= 0 || segmentSeconds <= 0 {
		return nil
	}

	total := int(math.Ceil(duration / float64(segmentSeconds)))
	ranges := make([]SegmentRange, 0, total)
	for i := 0; i < total; i++ {
		start := float64(i * segmentSeconds)
		end := math.Min(start+float64(segmentSeconds), duration)
		ranges = append(ranges, SegmentRange{Start: start, End: end})
	}
	return ranges
}

// SegmentFilename derives the output filename for one segment. index is
// 1-based and zero-padded to 3 digits. start and end are whole seconds;
// the timestamped scheme renders them as floor-divided minutes.
// Deterministic: same inputs always produce the same name.
func SegmentFilename(index int, baseName string, start, end int64, scheme NamingScheme, prefix string) string {
	switch scheme {
	case NamingTimestamped:
		return fmt.Sprintf("%03d - %s (%02d-%02dmin).mp3", index, baseName, start/60, end/60)
	case NamingCustom:
		return fmt.Sprintf("%03d - %s - %s.mp3", index, baseName, prefix)
	default:
		return fmt.Sprintf("%03d - %s.mp3", index, baseName)
	}
}

// BaseName strips the extension from an original filename for use in
// segment names.
func BaseName(original string) string {
	return strings.TrimSuffix(original, filepath.Ext(original))
}
