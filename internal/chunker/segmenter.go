package chunker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultSegmentTimeout bounds one ffmpeg extraction invocation.
const DefaultSegmentTimeout = 60 * time.Second

// Segmenter produces segments by invoking ffmpeg once per target range
// with a stream-copy directive (no re-encode). Invocations are strictly
// serial: progress accounting and per-index naming assume monotonic
// completion order, and parallel heavy processes would contend for
// disk and CPU unpredictably.
type Segmenter struct {
	runner  CommandRunner
	prober  *Prober
	binary  string
	timeout time.Duration
}

// NewSegmenter returns a Segmenter using the given runner, prober, and
// ffmpeg binary. Empty binary and non-positive timeout fall back to
// "ffmpeg" and DefaultSegmentTimeout.
func NewSegmenter(runner CommandRunner, prober *Prober, binary string, timeout time.Duration) *Segmenter {
	if binary == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultSegmentTimeout
	}
	return &Segmenter{runner: runner, prober: prober, binary: binary, timeout: timeout}
}

// Split runs one chunking run for src. Each produced segment is handed to
// commit (which persists it and returns the stored record) before the
// progress event for that index is emitted, so stored state never lags
// behind what observers have seen. Any failed or timed-out invocation
// aborts the run: a failed event is emitted, already-committed segments
// are left alone, and the error is returned.
//
// Descriptors and events carry whole seconds; range computation uses the
// untruncated probe duration so drift does not accumulate across many
// segments.
func (s *Segmenter) Split(
	ctx context.Context,
	src SourceFile,
	req ChunkRequest,
	outDir string,
	commit func(Segment) (Segment, error),
	emit func(ProgressEvent),
) ([]Segment, error) {
	probe, err := s.prober.Probe(ctx, src.Path)
	if err != nil {
		emit(failedEvent(src.ID, err.Error()))
		return nil, err
	}

	plan := PlanSegments(probe.DurationSeconds, req.ChunkDuration*60)
	if len(plan) == 0 {
		err := fmt.Errorf("%s: zero-length plan: %w", src.Path, ErrProbeParse)
		emit(failedEvent(src.ID, err.Error()))
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		err = fmt.Errorf("create segment dir: %w", err)
		emit(failedEvent(src.ID, err.Error()))
		return nil, err
	}

	base := BaseName(src.OriginalName)
	total := len(plan)
	segments := make([]Segment, 0, total)
	runStart := time.Now()

	for i, r := range plan {
		startSec := int64(r.Start)
		endSec := int64(r.End)
		name := SegmentFilename(i+1, base, startSec, endSec, req.NamingFormat, req.CustomPrefix)
		outPath := filepath.Join(outDir, name)

		if err := s.extract(ctx, src.Path, outPath, r); err != nil {
			invErr := err
			var ie *InvocationError
			if errors.As(err, &ie) {
				ie.Index = i + 1
				ie.Total = total
			}
			emit(failedEvent(src.ID, invErr.Error()))
			return nil, invErr
		}

		info, err := os.Stat(outPath)
		if err != nil || info.Size() == 0 {
			invErr := &InvocationError{Index: i + 1, Total: total, Err: errors.New("output file missing or empty")}
			emit(failedEvent(src.ID, invErr.Error()))
			return nil, invErr
		}

		seg := Segment{
			FileID:   src.ID,
			Filename: name,
			Path:     outPath,
			Size:     info.Size(),
			Duration: endSec - startSec,
			Start:    startSec,
			End:      endSec,
			Index:    i + 1,
		}
		stored, err := commit(seg)
		if err != nil {
			emit(failedEvent(src.ID, err.Error()))
			return nil, err
		}
		segments = append(segments, stored)

		done := i + 1
		elapsed := time.Since(runStart)
		percent := int(math.Round(100 * float64(done) / float64(total)))
		var estLeft int64
		var speed float64
		if elapsed > 0 {
			perSegment := elapsed / time.Duration(done)
			estLeft = int64(perSegment.Seconds() * float64(total-done))
			speed = r.End / elapsed.Seconds()
		}
		emit(progressEvent(src.ID, percent, done, total, estLeft, speed))
	}

	emit(completeEvent(src.ID, segments))
	return segments, nil
}

// extract runs one ffmpeg stream-copy invocation for the given range,
// killing the process if it outlives the per-invocation timeout.
func (s *Segmenter) extract(ctx context.Context, srcPath, outPath string, r SegmentRange) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, stderr, err := s.runner.Run(ctx, s.binary,
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(r.Start),
		"-t", formatSeconds(r.End-r.Start),
		"-i", srcPath,
		"-c", "copy",
		"-y",
		outPath,
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &InvocationError{Err: fmt.Errorf("extraction timed out after %s", s.timeout)}
		}
		return &InvocationError{Output: stderrTail(stderr, 512), Err: err}
	}
	return nil
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
