package main

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/fieldcam/internal/config"
	"github.com/franz/fieldcam/internal/layout"
	"github.com/franz/fieldcam/internal/manifest"
	"github.com/franz/fieldcam/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the node",
	Long: `Run diagnostic checks to ensure the node can capture and deliver.

This command checks:
- Storage root writability and free space
- Manifest store integrity and backlog counts
- Photo capture command availability
- Audio recorder command availability (pipe backend)
- Ingestion backend reachability

Use this command on a freshly provisioned node before leaving it in the
field.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== fieldcam doctor ===")
	util.InfoLog("")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	results := []checkResult{
		checkStorage(cfg),
		checkManifests(cfg),
		checkPhotoCommand(cfg),
		checkAudio(cfg),
		checkBackend(cfg),
	}

	util.InfoLog("")
	hasErrors := false
	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
		}
		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}
		switch {
		case r.error:
			util.ErrorLog("%s", line)
		case r.warning:
			util.WarnLog("%s", line)
		default:
			util.InfoLog("%s", line)
		}
	}

	if hasErrors {
		return fmt.Errorf("diagnostics found problems")
	}
	return nil
}

func checkStorage(cfg *config.Config) checkResult {
	r := checkResult{name: "storage root"}
	if err := os.MkdirAll(cfg.StorageRoot, 0o755); err != nil {
		r.error = true
		r.message = err.Error()
		return r
	}
	probe := filepath.Join(cfg.StorageRoot, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		r.error = true
		r.message = fmt.Sprintf("not writable: %v", err)
		return r
	}
	os.Remove(probe)

	total, free, err := util.DiskUsage(cfg.StorageRoot)
	if err != nil {
		r.warning = true
		r.message = fmt.Sprintf("writable, but disk usage unknown: %v", err)
		return r
	}
	pct := float64(free) / float64(total) * 100
	r.message = fmt.Sprintf("%s free of %s (%.1f%%)", humanize.Bytes(free), humanize.Bytes(total), pct)
	if pct < cfg.EmergencyFreePct {
		r.error = true
		r.message += " - below emergency threshold"
	} else if pct < cfg.MinFreePct {
		r.warning = true
		r.message += " - below retention threshold"
	}
	return r
}

func checkManifests(cfg *config.Config) checkResult {
	r := checkResult{name: "manifest store"}
	store, err := manifest.Open(cfg.StorageRoot, cfg.MaxAttempts)
	if err != nil {
		r.error = true
		r.message = err.Error()
		return r
	}
	items, err := store.All()
	if err != nil {
		r.error = true
		r.message = err.Error()
		return r
	}
	counts := map[manifest.Status]int{}
	for _, it := range items {
		counts[it.Status]++
	}
	r.message = fmt.Sprintf("%d records (%d pending, %d uploaded, %d failed), dir %s",
		len(items), counts[manifest.StatusPending], counts[manifest.StatusUploaded],
		counts[manifest.StatusFailed], layout.ManifestDir(cfg.StorageRoot))
	return r
}

func checkPhotoCommand(cfg *config.Config) checkResult {
	r := checkResult{name: "photo command"}
	parts := strings.Fields(cfg.PhotoCommand)
	if len(parts) == 0 {
		r.warning = true
		r.message = "not configured, photo capture disabled"
		return r
	}
	tool := parts[0]
	path, err := exec.LookPath(tool)
	if err != nil {
		r.error = true
		r.message = fmt.Sprintf("%s not found in PATH", tool)
		return r
	}
	r.message = path
	return r
}

func checkAudio(cfg *config.Config) checkResult {
	r := checkResult{name: "audio capture"}
	if !cfg.AudioEnabled {
		r.warning = true
		r.message = "disabled in configuration"
		return r
	}
	if cfg.AudioBackend == "pipe" {
		parts := strings.Fields(cfg.RecorderCommand)
		if len(parts) == 0 {
			r.error = true
			r.message = "pipe backend selected but audio.recorder_command is empty"
			return r
		}
		path, err := exec.LookPath(parts[0])
		if err != nil {
			r.error = true
			r.message = fmt.Sprintf("recorder %s not found in PATH", parts[0])
			return r
		}
		r.message = fmt.Sprintf("pipe backend via %s", path)
		return r
	}
	r.message = fmt.Sprintf("miniaudio backend, %d Hz", cfg.SampleRate)
	return r
}

func checkBackend(cfg *config.Config) checkResult {
	r := checkResult{name: "ingestion backend"}
	if cfg.APIBase == "" {
		r.warning = true
		r.message = "api.base not configured, node will capture offline only"
		return r
	}
	u, err := url.Parse(cfg.APIBase)
	if err != nil || u.Host == "" {
		r.error = true
		r.message = fmt.Sprintf("api.base is not a valid URL: %s", cfg.APIBase)
		return r
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	addr := net.JoinHostPort(u.Hostname(), port)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		r.warning = true
		r.message = fmt.Sprintf("%s unreachable: %v", addr, err)
		return r
	}
	conn.Close()
	r.message = fmt.Sprintf("%s reachable", addr)
	if cfg.DeviceToken == "" {
		r.warning = true
		r.message += ", but api.token is not set"
	}
	return r
}
