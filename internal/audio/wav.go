package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/franz/fieldcam/internal/util"
)

const wavHeaderSize = 44

// WAVWriter writes a canonical 44-byte RIFF/WAVE/fmt/data header followed
// by mono 16-bit PCM samples. The header's declared data length is zero
// until Finalize rewrites it in place with the actual byte count, so a
// clip interrupted by power loss is recognizably truncated.
type WAVWriter struct {
	f          *os.File
	path       string
	sampleRate int
	samples    int
}

// NewWAVWriter creates the file at path and writes a provisional header.
func NewWAVWriter(path string, sampleRate int) (*WAVWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav %s: %w", path, err)
	}
	w := &WAVWriter{f: f, path: path, sampleRate: sampleRate}
	if err := w.writeHeader(0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *WAVWriter) writeHeader(dataBytes uint32) error {
	var hdr [wavHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataBytes)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(w.sampleRate)*2) // byte rate
	binary.LittleEndian.PutUint16(hdr[32:34], 2)                      // block align
	binary.LittleEndian.PutUint16(hdr[34:36], 16)                     // bits per sample
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataBytes)

	if _, err := w.f.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to seek wav header: %w", err)
	}
	n, err := w.f.Write(hdr[:])
	if err != nil {
		return fmt.Errorf("failed to write wav header: %w", err)
	}
	if n != wavHeaderSize {
		return util.ErrShortWrite
	}
	return nil
}

// WriteSamples appends PCM samples to the data chunk.
func (w *WAVWriter) WriteSamples(samples []int16) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	n, err := w.f.Write(buf)
	if err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	if n != len(buf) {
		return util.ErrShortWrite
	}
	w.samples += len(samples)
	return nil
}

// Samples returns the number of samples written so far.
func (w *WAVWriter) Samples() int {
	return w.samples
}

// Path returns the output file path.
func (w *WAVWriter) Path() string {
	return w.path
}

// Finalize rewrites the header with the final data length, flushes, and
// closes the file.
func (w *WAVWriter) Finalize() error {
	if err := w.writeHeader(uint32(w.samples * 2)); err != nil {
		w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to sync wav: %w", err)
	}
	return w.f.Close()
}

// Abort closes and deletes the file. Used when a clip comes in under the
// minimum duration and is discarded.
func (w *WAVWriter) Abort() {
	w.f.Close()
	os.Remove(w.path)
}
