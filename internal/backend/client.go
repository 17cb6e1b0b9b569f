// Package backend is the device's HTTP client for the three ingestion
// contracts: upload-target issuance, ingest notification, and the
// telemetry sink. The backend is an opaque remote service whose only
// guarantee is "eventually reachable, may fail transiently"; every call
// here is synchronous and bounded by an explicit timeout.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/fieldcam/internal/manifest"
)

const (
	targetPath    = "/api/device/upload_target"
	ingestPath    = "/api/device/ingest"
	telemetryPath = "/api/device/telemetry"

	tokenHeader = "X-Device-Token"

	// putChunkSize bounds how much media is held in memory at once
	// while streaming an upload.
	putChunkSize = 8 * 1024
)

// Client talks to the ingestion backend with a device credential.
type Client struct {
	base  string
	token string
	http  *http.Client
	put   *http.Client
}

// New creates a client for the given API base URL and device token.
func New(base, token string) *Client {
	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 5 * time.Second},
		put:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Target is an issued upload destination.
type Target struct {
	UploadHost string `json:"upload_host"`
	UploadPort int    `json:"upload_port"`
	UploadPath string `json:"upload_path"`
	ObjectKey  string `json:"object_key"`
}

// RequestTarget asks the backend where to put a media file.
func (c *Client) RequestTarget(ctx context.Context, filename, contentType string, seq uint32) (*Target, error) {
	body := map[string]interface{}{
		"filename":     filename,
		"content_type": contentType,
		"seq":          seq,
	}
	var target Target
	if err := c.postJSON(ctx, c.base+targetPath, body, &target); err != nil {
		return nil, fmt.Errorf("upload target request: %w", err)
	}
	if target.UploadHost == "" || target.ObjectKey == "" {
		return nil, fmt.Errorf("upload target request: incomplete response")
	}
	return &target, nil
}

// PutFile streams the media file's bytes to the issued target. Transport
// is https when the target port is 443, plain http otherwise. Success is
// any 2xx status.
func (c *Client) PutFile(ctx context.Context, t *Target, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat media: %w", err)
	}

	scheme := "http"
	if t.UploadPort == 443 {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s:%d%s", scheme, t.UploadHost, t.UploadPort, t.UploadPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, &chunkReader{r: f})
	if err != nil {
		return fmt.Errorf("build put request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", contentType)

	resp, err := c.put.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("put %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// NotifyIngest tells the backend a media object is in place. The backend
// treats the call as idempotent keyed by sequence/object key, so a retry
// after a lost response is safe. captured_at is only included when the
// item carries a real synchronized timestamp.
func (c *Client) NotifyIngest(ctx context.Context, it *manifest.Item, objectKey string) error {
	synced := it.CapturedAtEpoch != 0
	body := map[string]interface{}{
		"object_key":        objectKey,
		"seq":               it.Seq,
		"content_type":      it.ContentType,
		"item_type":         it.ItemType,
		"original_filename": filepath.Base(it.Filepath),
		"ntp_synced":        synced,
	}
	if synced {
		body["captured_at"] = it.CapturedAtEpoch
	}
	if err := c.postJSON(ctx, c.base+ingestPath, body, nil); err != nil {
		return fmt.Errorf("ingest notify: %w", err)
	}
	return nil
}

// Telemetry is the periodic health payload.
type Telemetry struct {
	UptimeSeconds   uint32 `json:"uptime_seconds"`
	SDUsedMB        uint64 `json:"sd_used_mb"`
	SDFreeMB        uint64 `json:"sd_free_mb"`
	BacklogCount    int    `json:"backlog_count"`
	WifiRSSI        int    `json:"wifi_rssi"`
	FirmwareVersion string `json:"firmware_version"`
}

// PostTelemetry ships a health report. Best effort; the caller just logs
// failures.
func (c *Client) PostTelemetry(ctx context.Context, t *Telemetry) error {
	if err := c.postJSON(ctx, c.base+telemetryPath, t, nil); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// chunkReader caps each Read at putChunkSize so the transport never
// pulls more than one small chunk of media into memory at a time.
type chunkReader struct {
	r io.Reader
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > putChunkSize {
		p = p[:putChunkSize]
	}
	return c.r.Read(p)
}
