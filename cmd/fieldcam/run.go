package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/franz/fieldcam/internal/audio"
	"github.com/franz/fieldcam/internal/backend"
	"github.com/franz/fieldcam/internal/camera"
	"github.com/franz/fieldcam/internal/config"
	"github.com/franz/fieldcam/internal/layout"
	"github.com/franz/fieldcam/internal/manifest"
	"github.com/franz/fieldcam/internal/report"
	"github.com/franz/fieldcam/internal/retention"
	"github.com/franz/fieldcam/internal/sched"
	"github.com/franz/fieldcam/internal/timesync"
	"github.com/franz/fieldcam/internal/uploader"
	"github.com/franz/fieldcam/internal/util"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the capture-and-delivery loop",
	Long: `Run the node's control loop: audio frame ticks, periodic photos,
forced heartbeat clips, upload batches, retention checks, and telemetry,
all interleaved on one cooperative loop.

Hardware that fails to initialize disables its subsystem; the loop keeps
running with whatever peripherals are left.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.APIBase == "" || cfg.DeviceToken == "" {
		return fmt.Errorf("api.base and api.token are required to run (flags --api-base/--api-token)")
	}

	if err := os.MkdirAll(cfg.StorageRoot, 0o755); err != nil {
		return fmt.Errorf("cannot create storage root: %w", err)
	}

	journal, err := report.Open(layout.EventDir(cfg.StorageRoot))
	if err != nil {
		util.WarnLog("Event journal unavailable: %v", err)
		journal = report.Null()
	}
	defer journal.Close()

	store, err := manifest.Open(cfg.StorageRoot, cfg.MaxAttempts)
	if err != nil {
		return fmt.Errorf("manifest store: %w", err)
	}

	clock := timesync.New(cfg.TimeServer)
	client := backend.New(cfg.APIBase, cfg.DeviceToken)
	enforcer := retention.New(store, journal, cfg.StorageRoot,
		cfg.MinFreePct, cfg.EmergencyFreePct, nil)
	worker := uploader.New(client, store, journal, cfg.UploadBatch)

	var cam *camera.Camera
	if cfg.PhotoCommand != "" {
		cam = camera.New(camera.NewExecSnapper(cfg.PhotoCommand, cfg.PhotoTimeout),
			store, clock, journal, cfg.StorageRoot)
	} else {
		util.WarnLog("No photo.command configured, photo capture disabled")
	}

	var rec *audio.Recorder
	if cfg.AudioEnabled {
		src := buildAudioSource(cfg)
		if err := src.Start(); err != nil {
			util.ErrorLog("Audio init failed, audio capture disabled: %v", err)
		} else {
			defer src.Close()
			rec = audio.NewRecorder(recorderConfig(cfg), src, store, clock,
				journal, cfg.StorageRoot, enforcer.Paused)
		}
	}

	device := &sched.Device{
		Cfg:       cfg,
		Clock:     clock,
		Store:     store,
		Recorder:  rec,
		Camera:    cam,
		Uploader:  worker,
		Retention: enforcer,
		Backend:   client,
		Journal:   journal,
		Version:   Version,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	util.InfoLog("fieldcam %s starting (storage %s, backend %s)", Version, cfg.StorageRoot, cfg.APIBase)
	return device.Run(ctx)
}

func buildAudioSource(cfg *config.Config) audio.Source {
	if cfg.AudioBackend == "pipe" {
		return audio.NewPipeSource(cfg.RecorderCommand, cfg.FrameSamples())
	}
	return audio.NewMalgoSource(cfg.SampleRate, cfg.FrameSamples())
}

func recorderConfig(cfg *config.Config) audio.Config {
	return audio.Config{
		SampleRate:        cfg.SampleRate,
		FrameSamples:      cfg.FrameSamples(),
		PrerollSamples:    cfg.PrerollSamples(),
		ForcedPostSamples: cfg.ForcedPostSamples(),
		MaxSamples:        cfg.MaxClipSamples(),
		MinSamples:        cfg.MinClipSamples(),
		StartMult:         cfg.StartMult,
		StopMult:          cfg.StopMult,
		StartFrames:       cfg.StartFrames,
		StopFrames:        cfg.StopFrames,
		NoiseAlpha:        cfg.NoiseAlpha,
		SpikeMult:         cfg.SpikeMult,
		FloorMin:          cfg.FloorMin,
	}
}
