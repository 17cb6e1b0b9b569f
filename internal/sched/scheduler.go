// Package sched runs the node's single cooperative control loop. One
// iteration is: one audio frame tick (the blocking suspension point),
// then a pass over the other duties gated by independent elapsed-time
// timers. Everything but the audio tick is skipped while a recording is
// active so a multi-second HTTP call never interrupts the time-sensitive
// capture window.
package sched

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/franz/fieldcam/internal/audio"
	"github.com/franz/fieldcam/internal/backend"
	"github.com/franz/fieldcam/internal/camera"
	"github.com/franz/fieldcam/internal/config"
	"github.com/franz/fieldcam/internal/manifest"
	"github.com/franz/fieldcam/internal/report"
	"github.com/franz/fieldcam/internal/retention"
	"github.com/franz/fieldcam/internal/timesync"
	"github.com/franz/fieldcam/internal/uploader"
	"github.com/franz/fieldcam/internal/util"
)

// Device is the single owner of all node state. Components receive it
// by pointer from the loop; nothing else holds mutable globals.
type Device struct {
	Cfg       *config.Config
	Clock     *timesync.Clock
	Store     *manifest.Store
	Recorder  *audio.Recorder // nil when audio is disabled or its hardware failed
	Camera    *camera.Camera  // nil when no capture command is configured
	Uploader  *uploader.Worker
	Retention *retention.Enforcer
	Backend   *backend.Client
	Journal   *report.Journal
	Version   string

	online bool

	lastProbe     time.Time
	lastSync      time.Time
	lastPhoto     time.Time
	lastHeartbeat time.Time
	lastUpload    time.Time
	lastRetention time.Time
	lastTelemetry time.Time
}

// Run drives the control loop until ctx is cancelled. Hardware failures
// degrade the affected subsystem and the loop continues; nothing here is
// fatal to the process.
func (d *Device) Run(ctx context.Context) error {
	frameDur := time.Duration(d.Cfg.FrameMs) * time.Millisecond
	// The heartbeat timer starts armed-from-boot; the first forced clip
	// should come one interval in, not immediately on power-up.
	d.lastHeartbeat = time.Now()

	util.InfoLog("Scheduler: loop started (audio=%v, camera=%v)",
		d.Recorder != nil, d.Camera != nil)

	for ctx.Err() == nil {
		if d.Recorder != nil {
			if err := d.Recorder.Tick(); err != nil {
				util.ErrorLog("Scheduler: audio tick failed, disabling audio: %v", err)
				d.Journal.Record(report.Event{Event: report.EventError, Error: err.Error()})
				d.Recorder = nil
			}
		} else {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(frameDur):
			}
		}

		// While a clip is open every other duty waits; a slow upload in
		// the middle of a recording would gap the audio.
		if d.Recorder != nil && d.Recorder.Recording() {
			continue
		}

		if due(&d.lastProbe, d.Cfg.ProbeInterval) {
			d.probeLink()
		}
		if d.online && due(&d.lastSync, d.Cfg.SyncInterval) {
			if err := d.Clock.Sync(); err != nil {
				util.DebugLog("Scheduler: time sync failed: %v", err)
			}
		}
		if d.Camera != nil && due(&d.lastPhoto, d.Cfg.PhotoInterval) {
			d.takePhoto(ctx)
		}
		if d.Recorder != nil && due(&d.lastHeartbeat, d.Cfg.HeartbeatInterval) {
			d.Recorder.ForceClip(audio.CauseHeartbeat)
		}
		if d.online && due(&d.lastUpload, d.Cfg.UploadInterval) {
			d.Uploader.ProcessBatch(ctx, d.nowEpoch())
		}
		if due(&d.lastRetention, d.Cfg.RetentionInterval) {
			if err := d.Retention.Check(); err != nil {
				util.ErrorLog("Scheduler: retention check failed: %v", err)
			}
		}
		if d.online && due(&d.lastTelemetry, d.Cfg.TelemetryInterval) {
			d.postTelemetry(ctx)
		}
	}
	return nil
}

// due reports whether the duty's interval has elapsed, resetting its
// timer when it has. A zero interval disables the duty.
func due(last *time.Time, every time.Duration) bool {
	if every <= 0 {
		return false
	}
	if time.Since(*last) < every {
		return false
	}
	*last = time.Now()
	return true
}

// nowEpoch is the eligibility timebase for upload backoff: real epoch
// once synchronized, seconds-since-boot before that. The one-time jump
// at first sync only makes pending items eligible sooner.
func (d *Device) nowEpoch() uint32 {
	if epoch, ok := d.Clock.Epoch(); ok {
		return epoch
	}
	return d.Clock.Uptime()
}

func (d *Device) takePhoto(ctx context.Context) {
	if d.Retention.Paused() {
		util.DebugLog("Scheduler: photo skipped, capture paused")
		return
	}
	if _, err := d.Camera.Capture(ctx); err != nil {
		util.ErrorLog("Scheduler: photo capture failed: %v", err)
		d.Journal.Record(report.Event{Event: report.EventError, Error: err.Error()})
		return
	}
	// A fresh photo always gets ambient audio context around it,
	// regardless of loudness.
	if d.Recorder != nil {
		d.Recorder.ForceClip(audio.CausePhoto)
	}
}

// probeLink is the Wi-Fi reconnect analog: a cheap TCP dial to the
// backend host deciding whether network duties run this cycle.
func (d *Device) probeLink() {
	addr := dialAddr(d.Cfg.APIBase)
	if addr == "" {
		d.online = false
		return
	}
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		if d.online {
			util.WarnLog("Scheduler: link lost (%s): %v", addr, err)
		}
		d.online = false
		return
	}
	conn.Close()
	if !d.online {
		util.InfoLog("Scheduler: link up (%s)", addr)
	}
	d.online = true
}

// dialAddr extracts host:port from the API base URL.
func dialAddr(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return ""
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return net.JoinHostPort(host, port)
}

func (d *Device) postTelemetry(ctx context.Context) {
	total, free, err := util.DiskUsage(d.Cfg.StorageRoot)
	if err != nil {
		util.WarnLog("Scheduler: disk usage for telemetry failed: %v", err)
	}
	backlog, err := d.Store.PendingCount()
	if err != nil {
		util.WarnLog("Scheduler: backlog count for telemetry failed: %v", err)
	}

	t := &backend.Telemetry{
		UptimeSeconds:   d.Clock.Uptime(),
		SDUsedMB:        (total - free) / (1024 * 1024),
		SDFreeMB:        free / (1024 * 1024),
		BacklogCount:    backlog,
		WifiRSSI:        util.WifiRSSI(),
		FirmwareVersion: d.Version,
	}
	if err := d.Backend.PostTelemetry(ctx, t); err != nil {
		util.WarnLog("Scheduler: telemetry post failed: %v", err)
	}
}
