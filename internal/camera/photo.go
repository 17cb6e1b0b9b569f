// Package camera captures still photos and persists them with PENDING
// manifests. The drivers are thin; all upload and retention logic lives
// elsewhere and keys off the manifest alone.
package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/franz/fieldcam/internal/layout"
	"github.com/franz/fieldcam/internal/manifest"
	"github.com/franz/fieldcam/internal/report"
	"github.com/franz/fieldcam/internal/timesync"
	"github.com/franz/fieldcam/internal/util"
)

// Camera owns the photo pipeline: snap, place in a dated folder, write
// fully, then manifest. A short write is a hard failure for the capture
// and leaves no manifest; the orphaned file is harmless since nothing
// references it.
type Camera struct {
	snapper Snapper
	store   *manifest.Store
	clock   *timesync.Clock
	journal *report.Journal
	root    string
}

// New wires a photo pipeline.
func New(snapper Snapper, store *manifest.Store, clock *timesync.Clock,
	journal *report.Journal, root string) *Camera {
	return &Camera{
		snapper: snapper,
		store:   store,
		clock:   clock,
		journal: journal,
		root:    root,
	}
}

// Capture takes one photo and returns its manifest item.
func (c *Camera) Capture(ctx context.Context) (*manifest.Item, error) {
	frame, err := c.snapper.Snap(ctx)
	if err != nil {
		return nil, err
	}

	seq, err := c.store.NextSeq()
	if err != nil {
		return nil, fmt.Errorf("cannot allocate sequence: %w", err)
	}
	epoch, synced := c.clock.Epoch()
	path := layout.PhotoPath(c.root, c.clock.Now(), synced, seq)

	if err := util.RetryableMkdirAll(filepath.Dir(path), 0o755, nil); err != nil {
		return nil, fmt.Errorf("cannot create photo dir: %w", err)
	}
	if err := writeFull(path, frame); err != nil {
		return nil, fmt.Errorf("photo %d: %w", seq, err)
	}

	it := &manifest.Item{
		Filepath:        path,
		Seq:             seq,
		CapturedAtEpoch: epoch,
		Status:          manifest.StatusPending,
		ItemType:        manifest.TypePhoto,
		ContentType:     "image/jpeg",
	}
	if err := c.store.Put(it); err != nil {
		return nil, fmt.Errorf("photo %d manifest: %w", seq, err)
	}

	util.InfoLog("Camera: photo %d captured (%d bytes) -> %s", seq, len(frame), path)
	c.journal.Record(report.Event{Event: report.EventPhoto, Seq: seq, Path: path,
		Bytes: int64(len(frame))})
	return it, nil
}

// writeFull writes buf to path, treating a partial write as failure.
func writeFull(path string, buf []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	n, err := f.Write(buf)
	if err == nil && n != len(buf) {
		err = util.ErrShortWrite
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
