package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franz/fieldcam/internal/camera"
	"github.com/franz/fieldcam/internal/config"
	"github.com/franz/fieldcam/internal/manifest"
	"github.com/franz/fieldcam/internal/report"
	"github.com/franz/fieldcam/internal/timesync"
	"github.com/franz/fieldcam/internal/util"
)

var snapCmd = &cobra.Command{
	Use:   "snap",
	Short: "Capture a single photo to local storage",
	Long: `Capture one photo through the configured capture command and persist
it with a PENDING manifest, exactly as the periodic capture would. The
next run of the control loop picks it up for upload.`,
	RunE: runSnap,
}

func init() {
	rootCmd.AddCommand(snapCmd)
}

func runSnap(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.PhotoCommand == "" {
		return fmt.Errorf("photo.command is not configured")
	}

	store, err := manifest.Open(cfg.StorageRoot, cfg.MaxAttempts)
	if err != nil {
		return fmt.Errorf("manifest store: %w", err)
	}

	clock := timesync.New(cfg.TimeServer)
	if err := clock.Sync(); err != nil {
		util.WarnLog("Time sync failed, photo will land in the unsynced folder: %v", err)
	}

	cam := camera.New(camera.NewExecSnapper(cfg.PhotoCommand, cfg.PhotoTimeout),
		store, clock, report.Null(), cfg.StorageRoot)

	it, err := cam.Capture(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("captured seq %d -> %s\n", it.Seq, it.Filepath)
	return nil
}
