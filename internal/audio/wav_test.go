package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestWAVHeaderAndFinalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	w, err := NewWAVWriter(path, 16000)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	samples := []int16{0, 1000, -1000, 32767, -32768}
	if err := w.WriteSamples(samples); err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}
	if err := w.WriteSamples(samples); err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}
	if w.Samples() != 10 {
		t.Fatalf("expected 10 samples, got %d", w.Samples())
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read wav: %v", err)
	}
	if len(data) != wavHeaderSize+20 {
		t.Fatalf("expected %d bytes, got %d", wavHeaderSize+20, len(data))
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		t.Error("missing fmt/data chunks")
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != 36+20 {
		t.Errorf("RIFF size = %d, want %d", got, 36+20)
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != 1 {
		t.Errorf("channels = %d, want mono", got)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(data[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	// The declared data length must equal the actual bytes written.
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 20 {
		t.Errorf("data length = %d, want 20", got)
	}

	// Round-trip a couple of samples.
	if got := int16(binary.LittleEndian.Uint16(data[44+2:])); got != 1000 {
		t.Errorf("sample 1 = %d, want 1000", got)
	}
	if got := int16(binary.LittleEndian.Uint16(data[44+4:])); got != -1000 {
		t.Errorf("sample 2 = %d, want -1000", got)
	}
}

func TestWAVAbortRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	w, err := NewWAVWriter(path, 16000)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	if err := w.WriteSamples([]int16{1, 2, 3}); err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}
	w.Abort()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("aborted clip should be deleted")
	}
}
