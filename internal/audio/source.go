package audio

import "math"

// Source is a capture backend delivering fixed-size frames of mono
// 16-bit PCM. ReadFrame blocks until a full frame is available; this is
// the scheduler's suspension point and the dominant source of loop
// latency, which is why the control loop gates other work while a
// recording is active.
//
// Two implementations exist for the two microphone wiring modes:
// MalgoSource drives the miniaudio backend directly, PipeSource reads
// raw PCM from an external recorder process. The backend is selected
// once at initialization.
type Source interface {
	Start() error
	ReadFrame() ([]int16, error)
	Close() error
}

// RMS computes root-mean-square energy of a frame, the loudness proxy
// driving voice-activity detection.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
