package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/maauso/vidcompress/internal/platform"
)

// Error represents a failed ffmpeg or ffprobe run, including the stderr output.
type Error struct {
	Binary string
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v\nargs: %v\nstderr: %s", e.Binary, e.Err, e.Args, e.Stderr)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// run executes binary with args and returns stdout. A binary that cannot be
// started is reported as platform.ErrInvocation; a non-zero exit as *Error.
func run(ctx context.Context, binary string, args []string) ([]byte, error) {
	// #nosec G204 - binary paths are set by the application, not user input
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s cancelled: %w", binary, ctx.Err())
		}
		if isStartFailure(err) {
			return nil, fmt.Errorf("%w: start %s: %w", platform.ErrInvocation, binary, err)
		}
		return nil, &Error{
			Binary: binary,
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.Bytes(), nil
}

// isStartFailure reports whether err means the process never ran.
func isStartFailure(err error) bool {
	var exitErr *exec.ExitError
	return !errors.As(err, &exitErr)
}
