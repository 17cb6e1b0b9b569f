package audio

import (
	"fmt"
	"path/filepath"

	"github.com/franz/fieldcam/internal/layout"
	"github.com/franz/fieldcam/internal/manifest"
	"github.com/franz/fieldcam/internal/report"
	"github.com/franz/fieldcam/internal/timesync"
	"github.com/franz/fieldcam/internal/util"
)

// Cause identifies what triggered a recording.
type Cause string

const (
	CauseVoice     Cause = "voice"     // VAD hysteresis fired
	CausePhoto     Cause = "photo"     // ambient context around a photo capture
	CauseHeartbeat Cause = "heartbeat" // periodic forced clip
)

// Config holds the recorder's tuning. All durations are expressed in
// samples; the scheduler derives them from millisecond settings once at
// startup so the tick path never touches time arithmetic.
type Config struct {
	SampleRate   int
	FrameSamples int

	PrerollSamples    int
	ForcedPostSamples int
	MaxSamples        int // hard cap on any clip
	MinSamples        int // clips shorter than this are discarded

	StartMult   float64 // rms > floor*StartMult counts toward start
	StopMult    float64 // rms < floor*StopMult counts toward stop
	StartFrames int     // consecutive loud frames to start
	StopFrames  int     // consecutive quiet frames to stop

	NoiseAlpha float64 // EMA weight for the noise floor
	SpikeMult  float64 // skip floor update when rms exceeds floor*SpikeMult
	FloorMin   float64 // floor never adapts below this
}

// Recorder is the voice-activity state machine: IDLE -> RECORDING ->
// IDLE. One Tick consumes exactly one audio frame from the source. The
// recorder owns the preroll ring and the adaptive noise floor and writes
// finished clips straight into the manifest store.
type Recorder struct {
	cfg     Config
	src     Source
	store   *manifest.Store
	clock   *timesync.Clock
	journal *report.Journal
	root    string
	paused  func() bool

	ring  *Ring
	floor float64
	above int
	quiet int

	recording    bool
	forced       bool
	forcedBudget int
	pendingForce Cause
	wav          *WAVWriter
	clipSeq      uint32
	clipEpoch    uint32
}

// NewRecorder wires a recorder. paused gates new recordings during
// storage emergencies; it is consulted at trigger time only, an active
// recording always runs to completion.
func NewRecorder(cfg Config, src Source, store *manifest.Store, clock *timesync.Clock,
	journal *report.Journal, root string, paused func() bool) *Recorder {
	return &Recorder{
		cfg:     cfg,
		src:     src,
		store:   store,
		clock:   clock,
		journal: journal,
		root:    root,
		paused:  paused,
		ring:    NewRing(cfg.PrerollSamples),
		floor:   cfg.FloorMin,
	}
}

// Recording reports whether a clip is currently open.
func (r *Recorder) Recording() bool {
	return r.recording
}

// NoiseFloor returns the current adaptive floor estimate.
func (r *Recorder) NoiseFloor() float64 {
	return r.floor
}

// ForceClip schedules a forced recording with the given cause. Ignored
// while a recording is active or another force is pending; the next idle
// tick starts the clip so the preroll covers the triggering moment.
func (r *Recorder) ForceClip(cause Cause) {
	if r.recording || r.pendingForce != "" {
		return
	}
	r.pendingForce = cause
}

// Tick consumes one frame from the source and advances the state
// machine. This call blocks for the frame duration; it is the control
// loop's suspension point.
func (r *Recorder) Tick() error {
	frame, err := r.src.ReadFrame()
	if err != nil {
		return err
	}
	r.process(frame)
	return nil
}

func (r *Recorder) process(frame []int16) {
	rms := RMS(frame)

	if !r.recording {
		r.ring.Push(frame)
		r.updateFloor(rms)

		if r.pendingForce != "" {
			cause := r.pendingForce
			r.pendingForce = ""
			r.start(cause, true)
			return
		}

		if rms > r.floor*r.cfg.StartMult {
			r.above++
			if r.above >= r.cfg.StartFrames {
				r.start(CauseVoice, false)
			}
		} else {
			r.above = 0
		}
		return
	}

	if err := r.wav.WriteSamples(frame); err != nil {
		util.ErrorLog("Recorder: write failed, discarding clip %d: %v", r.clipSeq, err)
		r.abort(err)
		return
	}

	if r.forced {
		if r.wav.Samples() >= r.forcedBudget || r.wav.Samples() >= r.cfg.MaxSamples {
			r.stop()
		}
		return
	}

	if rms < r.floor*r.cfg.StopMult {
		r.quiet++
	} else {
		r.quiet = 0
	}
	if r.quiet >= r.cfg.StopFrames || r.wav.Samples() >= r.cfg.MaxSamples {
		r.stop()
	}
}

// updateFloor adapts the noise estimate, but only while idle and only
// when the frame is not spiking. Without the spike guard, the onset of
// speech drags the floor up and the start threshold chases itself.
func (r *Recorder) updateFloor(rms float64) {
	if rms > r.floor*r.cfg.SpikeMult {
		return
	}
	r.floor = r.floor*(1-r.cfg.NoiseAlpha) + rms*r.cfg.NoiseAlpha
	if r.floor < r.cfg.FloorMin {
		r.floor = r.cfg.FloorMin
	}
}

func (r *Recorder) start(cause Cause, forced bool) {
	if r.paused != nil && r.paused() {
		util.DebugLog("Recorder: trigger (%s) refused, capture paused", cause)
		r.above = 0
		return
	}

	seq, err := r.store.NextSeq()
	if err != nil {
		util.ErrorLog("Recorder: cannot allocate sequence: %v", err)
		r.above = 0
		return
	}
	epoch, synced := r.clock.Epoch()
	path := layout.AudioPath(r.root, r.clock.Now(), synced, seq)
	if err := util.RetryableMkdirAll(filepath.Dir(path), 0o755, nil); err != nil {
		util.ErrorLog("Recorder: cannot create clip dir: %v", err)
		r.above = 0
		return
	}
	wav, err := NewWAVWriter(path, r.cfg.SampleRate)
	if err != nil {
		util.ErrorLog("Recorder: cannot open clip file: %v", err)
		r.above = 0
		return
	}

	// Preroll first so the clip covers the sound that triggered it.
	preroll := r.ring.Drain()
	if err := wav.WriteSamples(preroll); err != nil {
		util.ErrorLog("Recorder: preroll write failed: %v", err)
		wav.Abort()
		r.above = 0
		return
	}

	r.recording = true
	r.forced = forced
	r.forcedBudget = r.cfg.PrerollSamples + r.cfg.ForcedPostSamples
	r.wav = wav
	r.clipSeq = seq
	r.clipEpoch = epoch
	r.above = 0
	r.quiet = 0

	util.InfoLog("Recorder: clip %d started (%s, preroll %d samples)", seq, cause, len(preroll))
	r.journal.Record(report.Event{Event: report.EventClip, Seq: seq, Path: path, Cause: string(cause)})
}

func (r *Recorder) stop() {
	samples := r.wav.Samples()
	path := r.wav.Path()

	if samples < r.cfg.MinSamples {
		r.wav.Abort()
		util.InfoLog("Recorder: clip %d discarded (%d samples < minimum %d)",
			r.clipSeq, samples, r.cfg.MinSamples)
		r.journal.Record(report.Event{Event: report.EventDiscard, Seq: r.clipSeq, Path: path,
			Reason: fmt.Sprintf("%d samples below minimum", samples)})
		r.reset()
		return
	}

	if err := r.wav.Finalize(); err != nil {
		util.ErrorLog("Recorder: finalize failed, clip %d lost: %v", r.clipSeq, err)
		r.journal.Record(report.Event{Event: report.EventError, Seq: r.clipSeq, Error: err.Error()})
		r.reset()
		return
	}

	it := &manifest.Item{
		Filepath:        path,
		Seq:             r.clipSeq,
		CapturedAtEpoch: r.clipEpoch,
		Status:          manifest.StatusPending,
		ItemType:        manifest.TypeAudio,
		ContentType:     "audio/wav",
	}
	if err := r.store.Put(it); err != nil {
		// Orphaned wav without a manifest is harmless; nothing references it.
		util.ErrorLog("Recorder: manifest write failed for clip %d: %v", r.clipSeq, err)
		r.journal.Record(report.Event{Event: report.EventError, Seq: r.clipSeq, Error: err.Error()})
		r.reset()
		return
	}

	durMs := int64(samples) * 1000 / int64(r.cfg.SampleRate)
	util.InfoLog("Recorder: clip %d finished (%d samples, %dms)", r.clipSeq, samples, durMs)
	r.journal.Record(report.Event{Event: report.EventClip, Seq: r.clipSeq, Path: path,
		Bytes: int64(samples) * 2, DurationMs: durMs})
	r.reset()
}

func (r *Recorder) abort(err error) {
	r.wav.Abort()
	r.journal.Record(report.Event{Event: report.EventError, Seq: r.clipSeq, Error: err.Error()})
	r.reset()
}

func (r *Recorder) reset() {
	r.recording = false
	r.forced = false
	r.wav = nil
	r.quiet = 0
	r.above = 0
	r.ring.Reset()
}
