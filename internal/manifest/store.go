// Package manifest implements the durable capture ledger.
//
// Every captured media file gets exactly one JSON manifest under
// <root>/manifests/<seq>.json. All writes go through a temp file and an
// atomic rename so an abrupt power loss never leaves a half-written or
// duplicated record. The sequence counter persists across reboots in the
// same directory.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/franz/fieldcam/internal/layout"
	"github.com/franz/fieldcam/internal/util"
)

const seqFile = "seq"

// Store is the persistent manifest store. It is owned by the single
// control loop; no internal locking is needed or provided.
type Store struct {
	dir         string
	maxAttempts int
	lastSeq     uint32
	retry       *util.RetryConfig
}

// Open opens (or initializes) the manifest store under the storage root.
func Open(root string, maxAttempts int) (*Store, error) {
	dir := layout.ManifestDir(root)
	if err := util.RetryableMkdirAll(dir, 0o755, nil); err != nil {
		return nil, fmt.Errorf("failed to create manifest dir: %w", err)
	}

	s := &Store{
		dir:         dir,
		maxAttempts: maxAttempts,
		retry:       util.SDRetryConfig(),
	}

	if err := s.loadSeq(); err != nil {
		return nil, err
	}
	return s, nil
}

// MaxAttempts returns the bounded-retry cap items are held to.
func (s *Store) MaxAttempts() int {
	return s.maxAttempts
}

func (s *Store) loadSeq() error {
	data, err := os.ReadFile(filepath.Join(s.dir, seqFile))
	if err == nil {
		v, perr := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
		if perr == nil {
			s.lastSeq = uint32(v)
			return nil
		}
		util.WarnLog("Manifest: corrupt sequence file, rebuilding from manifests")
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read sequence file: %w", err)
	}

	// Counter file missing or corrupt: recover the high-water mark by
	// scanning existing manifests.
	items, err := s.All()
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.Seq > s.lastSeq {
			s.lastSeq = it.Seq
		}
	}
	return s.persistSeq()
}

func (s *Store) persistSeq() error {
	return s.atomicWrite(filepath.Join(s.dir, seqFile),
		[]byte(strconv.FormatUint(uint64(s.lastSeq), 10)))
}

// NextSeq allocates the next sequence number, persisting the counter
// before returning it so a reboot never reuses a number.
func (s *Store) NextSeq() (uint32, error) {
	s.lastSeq++
	if err := s.persistSeq(); err != nil {
		s.lastSeq--
		return 0, fmt.Errorf("failed to persist sequence counter: %w", err)
	}
	return s.lastSeq, nil
}

func (s *Store) manifestPath(seq uint32) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json", seq))
}

// atomicWrite writes data to a temp path and renames it into place.
func (s *Store) atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	n, err := f.Write(data)
	if err == nil && n != len(data) {
		err = util.ErrShortWrite
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := util.RetryableRename(tmp, path, s.retry); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Put durably writes the manifest record for an item.
func (s *Store) Put(it *Item) error {
	data, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("failed to encode manifest %d: %w", it.Seq, err)
	}
	if err := s.atomicWrite(s.manifestPath(it.Seq), data); err != nil {
		return fmt.Errorf("failed to write manifest %d: %w", it.Seq, err)
	}
	return nil
}

// Get loads a single manifest by sequence number.
func (s *Store) Get(seq uint32) (*Item, error) {
	data, err := os.ReadFile(s.manifestPath(seq))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read manifest %d: %w", seq, err)
	}
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("corrupt manifest %d: %w", seq, err)
	}
	return &it, nil
}

// All enumerates every manifest in the store. Unreadable or corrupt
// records are skipped with a warning; one bad sector must not take the
// whole backlog offline.
func (s *Store) All() ([]*Item, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest dir: %w", err)
	}
	var items []*Item
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		seq, perr := strconv.ParseUint(strings.TrimSuffix(name, ".json"), 10, 32)
		if perr != nil {
			continue
		}
		it, gerr := s.Get(uint32(seq))
		if gerr != nil {
			util.WarnLog("Manifest: skipping unreadable record %s: %v", name, gerr)
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// OldestPending returns the oldest PENDING item eligible for an upload
// attempt at the given epoch, or nil when nothing is eligible.
func (s *Store) OldestPending(now uint32) (*Item, error) {
	items, err := s.All()
	if err != nil {
		return nil, err
	}
	var best *Item
	for _, it := range items {
		if !it.Eligible(now, s.maxAttempts) {
			continue
		}
		if best == nil || older(it, best) {
			best = it
		}
	}
	return best, nil
}

// OldestUploaded returns the oldest UPLOADED item, or nil when none
// remain. Retention reclaims space from these.
func (s *Store) OldestUploaded() (*Item, error) {
	items, err := s.All()
	if err != nil {
		return nil, err
	}
	var best *Item
	for _, it := range items {
		if it.Status != StatusUploaded {
			continue
		}
		if best == nil || older(it, best) {
			best = it
		}
	}
	return best, nil
}

// PendingCount reports the upload backlog size (all PENDING items,
// eligible or not).
func (s *Store) PendingCount() (int, error) {
	items, err := s.All()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		if it.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

// RecordAttempt records a failed upload attempt. The attempt counter is
// monotonically non-decreasing; reaching the cap transitions the record
// to FAILED as a terminal state with no further retry.
func (s *Store) RecordAttempt(it *Item, now uint32) error {
	if it.Terminal() {
		return fmt.Errorf("manifest %d is terminal (%s)", it.Seq, it.Status)
	}
	it.UploadAttempts++
	it.LastAttemptEpoch = now
	if it.UploadAttempts >= s.maxAttempts {
		it.Status = StatusFailed
		util.WarnLog("Manifest: seq %d abandoned after %d attempts", it.Seq, it.UploadAttempts)
	}
	return s.Put(it)
}

// MarkUploaded transitions an item to its UPLOADED terminal state.
func (s *Store) MarkUploaded(it *Item) error {
	if it.Terminal() {
		return fmt.Errorf("manifest %d is terminal (%s)", it.Seq, it.Status)
	}
	it.Status = StatusUploaded
	return s.Put(it)
}

// Delete removes an item's media file and manifest. Only the retention
// enforcer calls this, and only for UPLOADED items.
func (s *Store) Delete(it *Item) error {
	if err := util.RetryableRemove(it.Filepath, s.retry); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove media %s: %w", it.Filepath, err)
	}
	if err := util.RetryableRemove(s.manifestPath(it.Seq), s.retry); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove manifest %d: %w", it.Seq, err)
	}
	return nil
}
