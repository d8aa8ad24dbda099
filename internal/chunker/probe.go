package chunker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// DefaultProbeTimeout bounds one ffprobe invocation.
	DefaultProbeTimeout = 15 * time.Second

	// DefaultBitrate is reported when ffprobe cannot resolve one.
	DefaultBitrate = 128000
)

// Prober extracts duration and bitrate from a media file by invoking
// ffprobe with machine-readable (JSON) output.
type Prober struct {
	runner  CommandRunner
	binary  string
	timeout time.Duration
}

// NewProber returns a Prober using the given runner and ffprobe binary.
// Empty binary and non-positive timeout fall back to "ffprobe" and
// DefaultProbeTimeout.
func NewProber(runner CommandRunner, binary string, timeout time.Duration) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{runner: runner, binary: binary, timeout: timeout}
}

// probeFormat matches the "format" section of ffprobe -of json output.
// ffprobe emits numeric fields as strings.
type probeFormat struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe runs ffprobe against path under the configured timeout. On expiry
// the process is killed and ErrProbeTimeout returned; a non-zero exit is
// ErrProbeFailure; well-formed output without a duration is ErrProbeParse.
func (p *Prober) Probe(ctx context.Context, path string) (ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	stdout, stderr, err := p.runner.Run(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration,bit_rate",
		"-of", "json",
		path,
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProbeResult{}, fmt.Errorf("%s: %w", path, ErrProbeTimeout)
		}
		if tail := stderrTail(stderr, 512); tail != "" {
			return ProbeResult{}, fmt.Errorf("%s: %s: %w", path, tail, ErrProbeFailure)
		}
		return ProbeResult{}, fmt.Errorf("%s: %v: %w", path, err, ErrProbeFailure)
	}

	var out probeFormat
	if err := json.Unmarshal(stdout, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("%s: %v: %w", path, err, ErrProbeParse)
	}

	duration, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return ProbeResult{}, fmt.Errorf("%s: %w", path, ErrProbeParse)
	}

	bitrate := int64(DefaultBitrate)
	if br, err := strconv.ParseInt(out.Format.BitRate, 10, 64); err == nil && br > 0 {
		bitrate = br
	}

	return ProbeResult{DurationSeconds: duration, Bitrate: bitrate}, nil
}
