// Package retention frees storage by deleting the oldest
// already-uploaded items, escalating to a global capture pause when even
// that cannot recover enough space. The pause is the only mechanism by
// which the node intentionally stops producing new data.
package retention

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/franz/fieldcam/internal/manifest"
	"github.com/franz/fieldcam/internal/report"
	"github.com/franz/fieldcam/internal/util"
)

// DiskUsageFunc reports total and free bytes for the storage root.
// Injected so tests can script shrinking disks.
type DiskUsageFunc func(path string) (total, free uint64, err error)

// Enforcer watches free space against two thresholds. Below MinFreePct
// it reclaims UPLOADED items oldest-first; still below EmergencyPct with
// nothing left to delete, capture is paused until a later check recovers.
type Enforcer struct {
	store        *manifest.Store
	journal      *report.Journal
	root         string
	minFreePct   float64
	emergencyPct float64
	usage        DiskUsageFunc

	paused bool
}

// New creates an enforcer over the given storage root.
func New(store *manifest.Store, journal *report.Journal, root string,
	minFreePct, emergencyPct float64, usage DiskUsageFunc) *Enforcer {
	if usage == nil {
		usage = util.DiskUsage
	}
	return &Enforcer{
		store:        store,
		journal:      journal,
		root:         root,
		minFreePct:   minFreePct,
		emergencyPct: emergencyPct,
		usage:        usage,
	}
}

// Paused reports whether capture is currently suspended.
func (e *Enforcer) Paused() bool {
	return e.paused
}

func (e *Enforcer) freePct() (float64, uint64, uint64, error) {
	total, free, err := e.usage(e.root)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("disk usage: %w", err)
	}
	if total == 0 {
		return 0, 0, 0, fmt.Errorf("disk usage: zero capacity")
	}
	return float64(free) / float64(total) * 100, total, free, nil
}

// Check runs one retention pass.
func (e *Enforcer) Check() error {
	pct, _, free, err := e.freePct()
	if err != nil {
		return err
	}

	if pct >= e.minFreePct {
		e.resume(pct)
		return nil
	}

	util.InfoLog("Retention: free space %.1f%% (%s) below %.1f%%, reclaiming",
		pct, humanize.Bytes(free), e.minFreePct)

	for pct < e.minFreePct {
		it, err := e.store.OldestUploaded()
		if err != nil {
			return err
		}
		if it == nil {
			break
		}
		if err := e.store.Delete(it); err != nil {
			// A stuck delete must not wedge the loop; next check retries.
			util.ErrorLog("Retention: failed to reclaim seq %d: %v", it.Seq, err)
			break
		}
		util.InfoLog("Retention: reclaimed seq %d (%s)", it.Seq, it.Filepath)
		e.journal.Record(report.Event{Event: report.EventRetention, Seq: it.Seq, Path: it.Filepath})

		pct, _, _, err = e.freePct()
		if err != nil {
			return err
		}
	}

	switch {
	case pct < e.emergencyPct:
		if !e.paused {
			util.ErrorLog("Retention: free space %.1f%% below emergency %.1f%%, pausing capture",
				pct, e.emergencyPct)
			e.journal.Record(report.Event{Event: report.EventPause,
				Reason: fmt.Sprintf("free %.1f%% below emergency %.1f%%", pct, e.emergencyPct)})
		}
		e.paused = true
	case pct >= e.minFreePct:
		e.resume(pct)
	}
	// Between emergency and minimum: keep the previous pause state and
	// let a later check decide.
	return nil
}

func (e *Enforcer) resume(pct float64) {
	if e.paused {
		util.InfoLog("Retention: free space recovered to %.1f%%, resuming capture", pct)
		e.journal.Record(report.Event{Event: report.EventResume,
			Reason: fmt.Sprintf("free %.1f%%", pct)})
	}
	e.paused = false
}
