// Package report keeps a best-effort JSONL journal of capture and
// delivery events on local storage. The journal is operator forensics
// for a headless box ("why is last Tuesday missing?"); it is never load
// bearing and every write failure is swallowed after one warning.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/franz/fieldcam/internal/util"
)

// EventType labels journal entries.
type EventType string

const (
	EventPhoto     EventType = "photo"
	EventClip      EventType = "clip"
	EventDiscard   EventType = "discard"
	EventUpload    EventType = "upload"
	EventAbandon   EventType = "abandon"
	EventRetention EventType = "retention"
	EventPause     EventType = "pause"
	EventResume    EventType = "resume"
	EventError     EventType = "error"
)

// Event is a single journal entry.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	Event      EventType `json:"event"`
	Seq        uint32    `json:"seq,omitempty"`
	Path       string    `json:"path,omitempty"`
	Cause      string    `json:"cause,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Bytes      int64     `json:"bytes,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Journal appends events to a per-boot JSONL file.
type Journal struct {
	file    *os.File
	encoder *json.Encoder
	path    string
	warned  bool
}

// keepJournals bounds how many per-boot files survive; older boots are
// pruned on open so the journal never eats into capture space.
const keepJournals = 10

// Open creates a new journal file in dir, named by boot time, and prunes
// journals from old boots.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}
	prune(dir)
	path := filepath.Join(dir, fmt.Sprintf("events-%s.jsonl", time.Now().Format("20060102-150405")))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}
	return &Journal{
		file:    file,
		encoder: json.NewEncoder(file),
		path:    path,
	}, nil
}

// prune deletes the oldest journal files beyond the retention count.
// Timestamped names sort chronologically, so lexical order is age order.
func prune(dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl"))
	if err != nil || len(matches) < keepJournals {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-keepJournals+1] {
		if err := os.Remove(old); err != nil {
			util.WarnLog("Journal: failed to prune %s: %v", old, err)
		}
	}
}

// Null returns a journal that discards everything. Used when the journal
// directory cannot be created; the node keeps running.
func Null() *Journal {
	return &Journal{}
}

// Path returns the journal file path, or "" for a null journal.
func (j *Journal) Path() string {
	return j.path
}

// Record appends one event. Fills in the timestamp if unset.
func (j *Journal) Record(ev Event) {
	if j == nil || j.encoder == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := j.encoder.Encode(ev); err != nil && !j.warned {
		util.WarnLog("Journal: write failed, journaling disabled: %v", err)
		j.warned = true
		j.encoder = nil
	}
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	if j == nil || j.file == nil {
		return nil
	}
	return j.file.Close()
}
