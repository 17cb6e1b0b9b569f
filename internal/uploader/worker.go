// Package uploader drains the manifest backlog toward the ingestion
// backend. One attempt is three sequential remote calls: request a
// target, stream the bytes, notify ingest. Any failure aborts the
// attempt, records it against the item, and leaves the item to the
// backoff schedule; the attempt cap then makes FAILED terminal.
package uploader

import (
	"context"
	"path/filepath"
	"time"

	"github.com/franz/fieldcam/internal/backend"
	"github.com/franz/fieldcam/internal/manifest"
	"github.com/franz/fieldcam/internal/report"
	"github.com/franz/fieldcam/internal/util"
)

// Worker selects the oldest eligible pending item and pushes it through
// the three-call attempt. At most BatchSize items are processed per
// scheduler tick to bound loop latency.
type Worker struct {
	client    *backend.Client
	store     *manifest.Store
	journal   *report.Journal
	batchSize int
}

// New creates an upload worker.
func New(client *backend.Client, store *manifest.Store, journal *report.Journal, batchSize int) *Worker {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Worker{
		client:    client,
		store:     store,
		journal:   journal,
		batchSize: batchSize,
	}
}

// ProcessBatch runs up to one batch of upload attempts, stopping early
// when no further eligible item exists. now is the eligibility epoch.
// Returns how many items reached UPLOADED.
func (w *Worker) ProcessBatch(ctx context.Context, now uint32) int {
	uploaded := 0
	for i := 0; i < w.batchSize; i++ {
		it, err := w.store.OldestPending(now)
		if err != nil {
			util.ErrorLog("Uploader: backlog scan failed: %v", err)
			return uploaded
		}
		if it == nil {
			return uploaded
		}
		if w.attempt(ctx, it, now) {
			uploaded++
		}
		if ctx.Err() != nil {
			return uploaded
		}
	}
	return uploaded
}

// attempt runs one full upload attempt for an item. Returns true when
// the item reached UPLOADED.
func (w *Worker) attempt(ctx context.Context, it *manifest.Item, now uint32) bool {
	started := time.Now()
	filename := filepath.Base(it.Filepath)

	target, err := w.client.RequestTarget(ctx, filename, it.ContentType, it.Seq)
	if err != nil {
		w.recordFailure(it, now, err)
		return false
	}

	if err := w.client.PutFile(ctx, target, it.Filepath, it.ContentType); err != nil {
		w.recordFailure(it, now, err)
		return false
	}

	if err := w.client.NotifyIngest(ctx, it, target.ObjectKey); err != nil {
		w.recordFailure(it, now, err)
		return false
	}

	if err := w.store.MarkUploaded(it); err != nil {
		util.ErrorLog("Uploader: seq %d uploaded but status write failed: %v", it.Seq, err)
		return false
	}

	util.InfoLog("Uploader: seq %d uploaded as %s (%v)", it.Seq, target.ObjectKey,
		time.Since(started).Round(time.Millisecond))
	w.journal.Record(report.Event{
		Event:      report.EventUpload,
		Seq:        it.Seq,
		Path:       it.Filepath,
		Attempts:   it.UploadAttempts + 1,
		DurationMs: time.Since(started).Milliseconds(),
	})
	return true
}

func (w *Worker) recordFailure(it *manifest.Item, now uint32, cause error) {
	util.WarnLog("Uploader: seq %d attempt %d failed: %v", it.Seq, it.UploadAttempts+1, cause)
	if err := w.store.RecordAttempt(it, now); err != nil {
		util.ErrorLog("Uploader: seq %d attempt bookkeeping failed: %v", it.Seq, err)
		return
	}
	if it.Status == manifest.StatusFailed {
		w.journal.Record(report.Event{
			Event:    report.EventAbandon,
			Seq:      it.Seq,
			Path:     it.Filepath,
			Attempts: it.UploadAttempts,
			Error:    cause.Error(),
		})
	}
}
