package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChunkReaderCapsReadSize(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, putChunkSize*2+17)
	cr := &chunkReader{r: bytes.NewReader(payload)}

	buf := make([]byte, putChunkSize*4)
	n, err := cr.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n > putChunkSize {
		t.Errorf("single Read returned %d bytes, cap is %d", n, putChunkSize)
	}

	rest, err := io.ReadAll(cr)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if n+len(rest) != len(payload) {
		t.Errorf("total bytes = %d, want %d", n+len(rest), len(payload))
	}
}

func TestRequestTargetSendsToken(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Device-Token")
		if r.URL.Path != "/api/device/upload_target" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Target{
			UploadHost: "media.example.com",
			UploadPort: 9000,
			UploadPath: "/media/k",
			ObjectKey:  "k",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	tgt, err := c.RequestTarget(context.Background(), "img_1.jpg", "image/jpeg", 1)
	if err != nil {
		t.Fatalf("RequestTarget failed: %v", err)
	}
	if gotToken != "secret" {
		t.Errorf("token header = %q", gotToken)
	}
	if tgt.ObjectKey != "k" || tgt.UploadPort != 9000 {
		t.Errorf("unexpected target %+v", tgt)
	}
}

func TestPostJSONRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	err := c.PostTelemetry(context.Background(), &Telemetry{UptimeSeconds: 1})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}
