package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
)

// fakeRunner records invocations and delegates to a scripted run func, so
// probe and segmenter behavior can be tested without ffmpeg installed.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	run   func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return f.run(ctx, name, args...)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// probeJSON builds ffprobe-shaped output. bitrate "" omits the field.
func probeJSON(duration, bitrate string) []byte {
	if bitrate == "" {
		return []byte(fmt.Sprintf(`{"format":{"duration":%q}}`, duration))
	}
	return []byte(fmt.Sprintf(`{"format":{"duration":%q,"bit_rate":%q}}`, duration, bitrate))
}

// mediaToolRunner behaves like working ffprobe+ffmpeg: the probe reports
// the given duration and every extraction materializes its output path.
func mediaToolRunner(duration string) *fakeRunner {
	r := &fakeRunner{}
	r.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		if name == "ffprobe" {
			return probeJSON(duration, "192000"), nil, nil
		}
		outPath := args[len(args)-1]
		if err := os.WriteFile(outPath, []byte("mp3-bytes"), 0o644); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}
	return r
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}
