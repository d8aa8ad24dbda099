package chunker

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandRunner abstracts external process execution so the probe and
// segmenter can be tested without ffmpeg installed. The process must be
// killed when ctx expires, never abandoned.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec. exec.CommandContext kills the
// process when the context is cancelled or times out.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return out.Bytes(), errBuf.Bytes(), err
}

// stderrTail keeps the last n bytes of process stderr for error messages.
func stderrTail(stderr []byte, n int) string {
	s := bytes.TrimSpace(stderr)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return string(s)
}
