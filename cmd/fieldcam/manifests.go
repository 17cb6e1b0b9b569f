package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/fieldcam/internal/config"
	"github.com/franz/fieldcam/internal/manifest"
)

var manifestsCmd = &cobra.Command{
	Use:   "manifests",
	Short: "List the capture backlog from the manifest store",
	Long: `List every manifest record on local storage with its upload state.
Useful when pulling a card from a node to see what was still pending.`,
	RunE: runManifests,
}

func init() {
	rootCmd.AddCommand(manifestsCmd)
	manifestsCmd.Flags().String("status", "", "filter by status (PENDING, UPLOADED, FAILED)")
}

func runManifests(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	statusFilter, _ := cmd.Flags().GetString("status")

	store, err := manifest.Open(cfg.StorageRoot, cfg.MaxAttempts)
	if err != nil {
		return fmt.Errorf("manifest store: %w", err)
	}

	items, err := store.All()
	if err != nil {
		return err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })

	counts := map[manifest.Status]int{}
	fmt.Printf("%-8s %-6s %-9s %-9s %-20s %s\n",
		"SEQ", "TYPE", "STATUS", "ATTEMPTS", "CAPTURED", "PATH")
	for _, it := range items {
		counts[it.Status]++
		if statusFilter != "" && string(it.Status) != statusFilter {
			continue
		}
		captured := "unsynced"
		if it.CapturedAtEpoch != 0 {
			captured = time.Unix(int64(it.CapturedAtEpoch), 0).UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-8d %-6s %-9s %-9d %-20s %s\n",
			it.Seq, it.ItemType, it.Status, it.UploadAttempts, captured, it.Filepath)
	}

	fmt.Printf("\n%d total: %d pending, %d uploaded, %d failed\n", len(items),
		counts[manifest.StatusPending], counts[manifest.StatusUploaded], counts[manifest.StatusFailed])
	return nil
}
