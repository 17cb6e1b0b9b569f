package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/franz/fieldcam/internal/util"
)

// PipeSource reads raw mono 16-bit little-endian PCM from the stdout of
// an external recorder process, e.g.
//
//	arecord -q -f S16_LE -r 16000 -c 1 -t raw
//
// This is the fallback wiring for boards whose microphone is only
// reachable through ALSA tooling.
type PipeSource struct {
	command      string
	frameSamples int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
}

// NewPipeSource creates a source running the given shell-style command
// line. frameSamples is the number of samples per frame.
func NewPipeSource(command string, frameSamples int) *PipeSource {
	return &PipeSource{
		command:      command,
		frameSamples: frameSamples,
		buf:          make([]byte, frameSamples*2),
	}
}

// Start launches the recorder process.
func (p *PipeSource) Start() error {
	parts := strings.Fields(p.command)
	if len(parts) == 0 {
		return fmt.Errorf("%w: empty recorder command", util.ErrInvalidConfig)
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: recorder pipe: %v", util.ErrHardware, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: recorder start (%s): %v", util.ErrHardware, parts[0], err)
	}
	p.cmd = cmd
	p.stdout = stdout
	util.InfoLog("Audio: recorder process started: %s", p.command)
	return nil
}

// ReadFrame blocks until a full frame of PCM has been read from the pipe.
func (p *PipeSource) ReadFrame() ([]int16, error) {
	if p.stdout == nil {
		return nil, fmt.Errorf("%w: recorder not started", util.ErrHardware)
	}
	if _, err := io.ReadFull(p.stdout, p.buf); err != nil {
		return nil, fmt.Errorf("%w: recorder read: %v", util.ErrHardware, err)
	}
	samples := make([]int16, p.frameSamples)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(p.buf[i*2:]))
	}
	return samples, nil
}

// Close terminates the recorder process.
func (p *PipeSource) Close() error {
	if p.cmd == nil {
		return nil
	}
	p.stdout.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	p.cmd.Wait()
	p.cmd = nil
	return nil
}
