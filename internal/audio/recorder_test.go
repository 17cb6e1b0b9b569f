package audio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/fieldcam/internal/manifest"
	"github.com/franz/fieldcam/internal/report"
	"github.com/franz/fieldcam/internal/timesync"
)

func testConfig() Config {
	return Config{
		SampleRate:        1000,
		FrameSamples:      10,
		PrerollSamples:    30,
		ForcedPostSamples: 50,
		MaxSamples:        200,
		MinSamples:        20,
		StartMult:         3,
		StopMult:          1.5,
		StartFrames:       3,
		StopFrames:        5,
		NoiseAlpha:        0.1,
		SpikeMult:         2,
		FloorMin:          10,
	}
}

func newTestRecorder(t *testing.T, cfg Config, paused func() bool) (*Recorder, *manifest.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := manifest.Open(root, 3)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	clock := timesync.New("")
	r := NewRecorder(cfg, nil, store, clock, report.Null(), root, paused)
	return r, store, root
}

// frame builds a constant-amplitude frame of n samples.
func frame(amp int16, n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = amp
	}
	return f
}

func manifestItems(t *testing.T, store *manifest.Store) []*manifest.Item {
	t.Helper()
	items, err := store.All()
	if err != nil {
		t.Fatalf("failed to list manifests: %v", err)
	}
	return items
}

func TestQuietEnvironmentNeverStarts(t *testing.T) {
	r, store, _ := newTestRecorder(t, testConfig(), nil)

	for i := 0; i < 200; i++ {
		r.process(frame(0, 10))
	}

	if r.Recording() {
		t.Fatal("recorder started in a quiet environment")
	}
	if items := manifestItems(t, store); len(items) != 0 {
		t.Errorf("expected no manifests, got %d", len(items))
	}
}

func TestVADStartRequiresConsecutiveLoudFrames(t *testing.T) {
	r, _, _ := newTestRecorder(t, testConfig(), nil)

	// Two loud frames, then silence: the counter must reset.
	r.process(frame(1000, 10))
	r.process(frame(1000, 10))
	r.process(frame(0, 10))
	if r.Recording() {
		t.Fatal("recorder started on non-consecutive loud frames")
	}

	r.process(frame(1000, 10))
	r.process(frame(1000, 10))
	r.process(frame(1000, 10))
	if !r.Recording() {
		t.Fatal("recorder did not start after consecutive loud frames")
	}
}

func TestVADStopHysteresisAndManifest(t *testing.T) {
	r, store, _ := newTestRecorder(t, testConfig(), nil)

	for i := 0; i < 3; i++ {
		r.process(frame(1000, 10))
	}
	if !r.Recording() {
		t.Fatal("recorder did not start")
	}

	// A loud frame mid-stream resets the quiet counter.
	for i := 0; i < 4; i++ {
		r.process(frame(0, 10))
	}
	r.process(frame(1000, 10))
	if !r.Recording() {
		t.Fatal("recording stopped despite loud interruption")
	}

	for i := 0; i < 5; i++ {
		r.process(frame(0, 10))
	}
	if r.Recording() {
		t.Fatal("recorder did not stop after consecutive quiet frames")
	}

	items := manifestItems(t, store)
	if len(items) != 1 {
		t.Fatalf("expected one manifest, got %d", len(items))
	}
	it := items[0]
	if it.Status != manifest.StatusPending {
		t.Errorf("expected PENDING, got %s", it.Status)
	}
	if it.ItemType != manifest.TypeAudio || it.ContentType != "audio/wav" {
		t.Errorf("unexpected item type/content: %+v", it)
	}
	if it.CapturedAtEpoch != 0 {
		t.Errorf("unsynced clock should record epoch 0, got %d", it.CapturedAtEpoch)
	}
	if !strings.Contains(it.Filepath, "unsynced_audio") {
		t.Errorf("unsynced clip should land in unsynced_audio, got %s", it.Filepath)
	}
	if _, err := os.Stat(it.Filepath); err != nil {
		t.Errorf("clip file missing: %v", err)
	}
}

func TestForcedClipHasFixedBudget(t *testing.T) {
	r, store, _ := newTestRecorder(t, testConfig(), nil)

	// Ambient sound always below the stop threshold; a forced clip of
	// preroll+post samples must be produced anyway.
	for i := 0; i < 3; i++ {
		r.process(frame(0, 10))
	}
	r.ForceClip(CausePhoto)

	for i := 0; i < 40 && len(manifestItems(t, store)) == 0; i++ {
		r.process(frame(0, 10))
	}

	items := manifestItems(t, store)
	if len(items) != 1 {
		t.Fatalf("expected one forced clip, got %d manifests", len(items))
	}
	info, err := os.Stat(items[0].Filepath)
	if err != nil {
		t.Fatalf("clip file missing: %v", err)
	}
	// 80 samples (30 preroll + 50 post) of 16-bit PCM plus the header.
	wantBytes := int64(80*2 + 44)
	if info.Size() != wantBytes {
		t.Errorf("forced clip size = %d bytes, want %d", info.Size(), wantBytes)
	}
}

func TestForcedClipIgnoredWhileRecording(t *testing.T) {
	r, store, _ := newTestRecorder(t, testConfig(), nil)

	for i := 0; i < 3; i++ {
		r.process(frame(1000, 10))
	}
	if !r.Recording() {
		t.Fatal("recorder did not start")
	}
	r.ForceClip(CauseHeartbeat) // must be a no-op

	for i := 0; i < 5; i++ {
		r.process(frame(0, 10))
	}
	if r.Recording() {
		t.Fatal("recorder did not stop")
	}
	// No second clip should start from the swallowed force.
	r.process(frame(0, 10))
	if r.Recording() {
		t.Fatal("stale forced trigger started a clip")
	}
	if items := manifestItems(t, store); len(items) != 1 {
		t.Errorf("expected exactly one clip, got %d", len(items))
	}
}

func TestShortClipDiscarded(t *testing.T) {
	cfg := testConfig()
	cfg.MinSamples = 100 // above the forced budget of 80
	r, store, root := newTestRecorder(t, cfg, nil)

	r.ForceClip(CauseHeartbeat)
	for i := 0; i < 20; i++ {
		r.process(frame(0, 10))
	}
	if r.Recording() {
		t.Fatal("forced clip did not stop at its budget")
	}

	if items := manifestItems(t, store); len(items) != 0 {
		t.Fatalf("discarded clip must leave no manifest, got %d", len(items))
	}
	// And no stray wav files either.
	var wavs []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && strings.HasSuffix(path, ".wav") {
			wavs = append(wavs, path)
		}
		return nil
	})
	if len(wavs) != 0 {
		t.Errorf("discarded clip left files behind: %v", wavs)
	}
}

func TestMaxDurationCap(t *testing.T) {
	r, store, _ := newTestRecorder(t, testConfig(), nil)

	// Loud forever: only the cap can stop the clip.
	for i := 0; i < 60 && !r.Recording(); i++ {
		r.process(frame(1000, 10))
	}
	for i := 0; i < 60 && r.Recording(); i++ {
		r.process(frame(1000, 10))
	}
	if r.Recording() {
		t.Fatal("recorder never hit the duration cap")
	}

	items := manifestItems(t, store)
	if len(items) != 1 {
		t.Fatalf("expected one capped clip, got %d", len(items))
	}
	info, err := os.Stat(items[0].Filepath)
	if err != nil {
		t.Fatalf("clip file missing: %v", err)
	}
	if info.Size() != int64(200*2+44) {
		t.Errorf("capped clip size = %d, want %d", info.Size(), 200*2+44)
	}
}

func TestTriggersRefusedWhilePaused(t *testing.T) {
	r, store, _ := newTestRecorder(t, testConfig(), func() bool { return true })

	for i := 0; i < 10; i++ {
		r.process(frame(1000, 10))
	}
	if r.Recording() {
		t.Fatal("VAD trigger accepted while paused")
	}

	r.ForceClip(CausePhoto)
	for i := 0; i < 10; i++ {
		r.process(frame(0, 10))
	}
	if r.Recording() {
		t.Fatal("forced trigger accepted while paused")
	}
	if items := manifestItems(t, store); len(items) != 0 {
		t.Errorf("paused recorder wrote %d manifests", len(items))
	}
}

func TestNoiseFloorSpikeGuard(t *testing.T) {
	cfg := testConfig()
	cfg.StartFrames = 1000 // keep VAD out of the way
	r, _, _ := newTestRecorder(t, cfg, nil)

	// Moderate ambient noise pulls the floor up...
	for i := 0; i < 200; i++ {
		r.process(frame(15, 10))
	}
	floorAfterAmbient := r.NoiseFloor()
	if floorAfterAmbient <= 10 {
		t.Fatalf("floor did not adapt to ambient noise: %f", floorAfterAmbient)
	}

	// ...but a sudden spike must not drag it further.
	for i := 0; i < 50; i++ {
		r.process(frame(5000, 10))
	}
	if r.NoiseFloor() > floorAfterAmbient+0.001 {
		t.Errorf("spike dragged floor from %f to %f", floorAfterAmbient, r.NoiseFloor())
	}
}
