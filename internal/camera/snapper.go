package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/franz/fieldcam/internal/util"
)

// Snapper produces one encoded JPEG frame per call. The call blocks for
// the duration of the exposure; the scheduler accounts for that the same
// way it does for audio frame reads.
type Snapper interface {
	Snap(ctx context.Context) ([]byte, error)
}

// ExecSnapper shells out to a still-capture tool that writes JPEG bytes
// to stdout, e.g.
//
//	libcamera-still -n -o - --width 1600 --height 1200
//	ffmpeg -f v4l2 -i /dev/video0 -frames:v 1 -f image2 -
type ExecSnapper struct {
	command string
	timeout time.Duration
}

// NewExecSnapper creates a snapper running the given command line.
func NewExecSnapper(command string, timeout time.Duration) *ExecSnapper {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ExecSnapper{command: command, timeout: timeout}
}

// Snap runs the capture command and returns its stdout as the frame.
func (e *ExecSnapper) Snap(ctx context.Context) ([]byte, error) {
	parts := strings.Fields(e.command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty capture command", util.ErrInvalidConfig)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: capture command: %v (%s)", util.ErrHardware, err, msg)
		}
		return nil, fmt.Errorf("%w: capture command: %v", util.ErrHardware, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: capture command produced no frame", util.ErrHardware)
	}
	return stdout.Bytes(), nil
}
