package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/franz/fieldcam/internal/util"
)

// MalgoSource captures from the default input device through miniaudio.
// The device callback runs on miniaudio's own thread and hands sample
// chunks to ReadFrame over a bounded channel; when the control loop falls
// behind (a long upload mid-frame), excess chunks are dropped rather than
// letting the callback block the audio driver.
type MalgoSource struct {
	sampleRate   int
	frameSamples int

	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	chunks  chan []int16
	pending []int16
	dropped int
}

// NewMalgoSource creates a miniaudio-backed source producing frames of
// frameSamples mono 16-bit samples at sampleRate.
func NewMalgoSource(sampleRate, frameSamples int) *MalgoSource {
	return &MalgoSource{
		sampleRate:   sampleRate,
		frameSamples: frameSamples,
		chunks:       make(chan []int16, 64),
	}
}

// Start initializes the capture device and begins streaming.
func (m *MalgoSource) Start() error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: audio context init: %v", util.ErrHardware, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.Alsa.NoMMap = 1

	onRecv := func(_, input []byte, frameCount uint32) {
		samples := make([]int16, frameCount)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(input[i*2:]))
		}
		select {
		case m.chunks <- samples:
		default:
			m.dropped++
		}
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: audio device init: %v", util.ErrHardware, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: audio device start: %v", util.ErrHardware, err)
	}

	m.ctx = ctx
	m.device = device
	util.InfoLog("Audio: miniaudio capture started (%d Hz, %d-sample frames)",
		m.sampleRate, m.frameSamples)
	return nil
}

// ReadFrame blocks until a full frame has been captured.
func (m *MalgoSource) ReadFrame() ([]int16, error) {
	for len(m.pending) < m.frameSamples {
		chunk, ok := <-m.chunks
		if !ok {
			return nil, fmt.Errorf("%w: audio stream closed", util.ErrHardware)
		}
		m.pending = append(m.pending, chunk...)
	}
	frame := m.pending[:m.frameSamples:m.frameSamples]
	m.pending = append([]int16(nil), m.pending[m.frameSamples:]...)
	return frame, nil
}

// Close stops the device and releases miniaudio resources.
func (m *MalgoSource) Close() error {
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
	if m.dropped > 0 {
		util.WarnLog("Audio: dropped %d capture chunks while loop was busy", m.dropped)
	}
	return nil
}
