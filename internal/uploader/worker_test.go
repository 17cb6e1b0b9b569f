package uploader

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/franz/fieldcam/internal/backend"
	"github.com/franz/fieldcam/internal/manifest"
	"github.com/franz/fieldcam/internal/report"
)

const testToken = "device-secret"

// fakeIngestion stands in for the backend's three contracts plus the
// issued upload target.
type fakeIngestion struct {
	t *testing.T

	api *httptest.Server
	put *httptest.Server

	failTarget bool
	failIngest bool

	targetCalls int
	putCalls    int
	ingestCalls int

	putBody    []byte
	lastIngest map[string]interface{}
}

func newFakeIngestion(t *testing.T) *fakeIngestion {
	t.Helper()
	f := &fakeIngestion{t: t}

	f.put = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		f.putCalls++
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.putBody = body
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(f.put.Close)

	putURL, _ := url.Parse(f.put.URL)
	putPort, _ := strconv.Atoi(putURL.Port())

	mux := http.NewServeMux()
	mux.HandleFunc("/api/device/upload_target", func(w http.ResponseWriter, r *http.Request) {
		f.targetCalls++
		if r.Header.Get("X-Device-Token") != testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.failTarget {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"upload_host": putURL.Hostname(),
			"upload_port": putPort,
			"upload_path": "/media/obj-1",
			"object_key":  "obj-1",
		})
	})
	mux.HandleFunc("/api/device/ingest", func(w http.ResponseWriter, r *http.Request) {
		f.ingestCalls++
		if r.Header.Get("X-Device-Token") != testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.failIngest {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.lastIngest = body
		w.WriteHeader(http.StatusOK)
	})
	f.api = httptest.NewServer(mux)
	t.Cleanup(f.api.Close)

	return f
}

func newTestWorker(t *testing.T, f *fakeIngestion, batch int) (*Worker, *manifest.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := manifest.Open(root, 3)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	client := backend.New(f.api.URL, testToken)
	return New(client, store, report.Null(), batch), store, root
}

func addPending(t *testing.T, store *manifest.Store, root string, seq, epoch uint32, content []byte) *manifest.Item {
	t.Helper()
	media := filepath.Join(root, "media")
	if err := os.MkdirAll(media, 0o755); err != nil {
		t.Fatalf("failed to create media dir: %v", err)
	}
	path := filepath.Join(media, strconv.Itoa(int(seq))+".jpg")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write media: %v", err)
	}
	it := &manifest.Item{
		Filepath:        path,
		Seq:             seq,
		CapturedAtEpoch: epoch,
		Status:          manifest.StatusPending,
		ItemType:        manifest.TypePhoto,
		ContentType:     "image/jpeg",
	}
	if err := store.Put(it); err != nil {
		t.Fatalf("failed to put manifest: %v", err)
	}
	return it
}

func TestUploadSuccess(t *testing.T) {
	f := newFakeIngestion(t)
	w, store, root := newTestWorker(t, f, 3)
	content := []byte("jpeg-bytes-here")
	addPending(t, store, root, 1, 1700000000, content)

	uploaded := w.ProcessBatch(context.Background(), 1700000100)
	if uploaded != 1 {
		t.Fatalf("expected 1 upload, got %d", uploaded)
	}
	if f.targetCalls != 1 || f.putCalls != 1 || f.ingestCalls != 1 {
		t.Errorf("expected one call per step, got target=%d put=%d ingest=%d",
			f.targetCalls, f.putCalls, f.ingestCalls)
	}
	if string(f.putBody) != string(content) {
		t.Errorf("streamed bytes mismatch: got %q", f.putBody)
	}

	it, err := store.Get(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if it.Status != manifest.StatusUploaded {
		t.Errorf("expected UPLOADED, got %s", it.Status)
	}

	if f.lastIngest["object_key"] != "obj-1" {
		t.Errorf("ingest object_key = %v", f.lastIngest["object_key"])
	}
	if f.lastIngest["ntp_synced"] != true {
		t.Errorf("expected ntp_synced=true for timestamped item")
	}
	if _, ok := f.lastIngest["captured_at"]; !ok {
		t.Error("expected captured_at for timestamped item")
	}
}

func TestUnsyncedItemOmitsCapturedAt(t *testing.T) {
	f := newFakeIngestion(t)
	w, store, root := newTestWorker(t, f, 3)
	addPending(t, store, root, 1, 0, []byte("x"))

	if got := w.ProcessBatch(context.Background(), 1000); got != 1 {
		t.Fatalf("expected upload, got %d", got)
	}
	if f.lastIngest["ntp_synced"] != false {
		t.Error("expected ntp_synced=false for unsynced item")
	}
	if _, ok := f.lastIngest["captured_at"]; ok {
		t.Error("captured_at must be omitted for unsynced item")
	}
}

func TestFailedAttemptRecordsBackoff(t *testing.T) {
	f := newFakeIngestion(t)
	f.failTarget = true
	w, store, root := newTestWorker(t, f, 3)
	addPending(t, store, root, 1, 100, []byte("x"))

	if got := w.ProcessBatch(context.Background(), 1000); got != 0 {
		t.Fatalf("expected no uploads, got %d", got)
	}
	it, _ := store.Get(1)
	if it.Status != manifest.StatusPending || it.UploadAttempts != 1 {
		t.Errorf("expected PENDING with 1 attempt, got %s/%d", it.Status, it.UploadAttempts)
	}
	if it.LastAttemptEpoch != 1000 {
		t.Errorf("expected last attempt epoch 1000, got %d", it.LastAttemptEpoch)
	}
}

// Bounded retry end to end: three failed attempts spaced by the backoff
// schedule, then FAILED and no further remote calls.
func TestOfflineBacklogExhaustsAttempts(t *testing.T) {
	f := newFakeIngestion(t)
	f.failTarget = true
	w, store, root := newTestWorker(t, f, 3)
	addPending(t, store, root, 1, 100, []byte("x"))

	ctx := context.Background()

	w.ProcessBatch(ctx, 1000) // attempt 1
	if f.targetCalls != 1 {
		t.Fatalf("expected 1 target call, got %d", f.targetCalls)
	}

	w.ProcessBatch(ctx, 1030) // inside 60s backoff: no attempt
	if f.targetCalls != 1 {
		t.Fatalf("attempt fired inside backoff window, calls=%d", f.targetCalls)
	}

	w.ProcessBatch(ctx, 1060)     // attempt 2
	w.ProcessBatch(ctx, 1060+299) // inside 300s backoff
	if f.targetCalls != 2 {
		t.Fatalf("expected 2 target calls, got %d", f.targetCalls)
	}

	w.ProcessBatch(ctx, 1060+300) // attempt 3 -> FAILED
	if f.targetCalls != 3 {
		t.Fatalf("expected 3 target calls, got %d", f.targetCalls)
	}

	it, _ := store.Get(1)
	if it.Status != manifest.StatusFailed {
		t.Fatalf("expected FAILED after 3 attempts, got %s", it.Status)
	}

	w.ProcessBatch(ctx, 1<<30) // no 4th attempt, ever
	if f.targetCalls != 3 {
		t.Errorf("FAILED item was retried, calls=%d", f.targetCalls)
	}
}

// An already-UPLOADED item is invisible to the worker; ingest is never
// re-triggered for it.
func TestUploadedItemIsNoop(t *testing.T) {
	f := newFakeIngestion(t)
	w, store, root := newTestWorker(t, f, 3)
	it := addPending(t, store, root, 1, 100, []byte("x"))
	if err := store.MarkUploaded(it); err != nil {
		t.Fatalf("MarkUploaded failed: %v", err)
	}

	if got := w.ProcessBatch(context.Background(), 1<<30); got != 0 {
		t.Fatalf("expected no work, got %d", got)
	}
	if f.targetCalls != 0 || f.putCalls != 0 || f.ingestCalls != 0 {
		t.Errorf("remote calls made for uploaded item: target=%d put=%d ingest=%d",
			f.targetCalls, f.putCalls, f.ingestCalls)
	}
}

func TestBatchSizeBoundsWork(t *testing.T) {
	f := newFakeIngestion(t)
	w, store, root := newTestWorker(t, f, 2)
	addPending(t, store, root, 1, 100, []byte("a"))
	addPending(t, store, root, 2, 200, []byte("b"))
	addPending(t, store, root, 3, 300, []byte("c"))

	if got := w.ProcessBatch(context.Background(), 1000); got != 2 {
		t.Fatalf("expected 2 uploads in batch, got %d", got)
	}
	it, _ := store.Get(3)
	if it.Status != manifest.StatusPending {
		t.Errorf("third item should wait for the next tick, got %s", it.Status)
	}
}

func TestIngestFailureRetriesWholeAttempt(t *testing.T) {
	f := newFakeIngestion(t)
	f.failIngest = true
	w, store, root := newTestWorker(t, f, 3)
	addPending(t, store, root, 1, 100, []byte("x"))

	ctx := context.Background()
	if got := w.ProcessBatch(ctx, 1000); got != 0 {
		t.Fatalf("expected failure, got %d uploads", got)
	}
	it, _ := store.Get(1)
	if it.Status != manifest.StatusPending || it.UploadAttempts != 1 {
		t.Fatalf("expected PENDING/1 after ingest failure, got %s/%d", it.Status, it.UploadAttempts)
	}

	// The ingest call is idempotent on the backend, so the retry redoes
	// all three steps.
	f.failIngest = false
	if got := w.ProcessBatch(ctx, 1060); got != 1 {
		t.Fatalf("expected retry to succeed, got %d", got)
	}
	if f.putCalls != 2 {
		t.Errorf("expected media re-streamed on retry, put calls=%d", f.putCalls)
	}
}
