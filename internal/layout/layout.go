// Package layout builds the on-storage paths for captured media.
//
// Synchronized captures land in dated folders so an operator pulling the
// card can navigate by day; captures taken before the first successful
// time sync go to flat "unsynced" folders keyed by sequence number only.
package layout

import (
	"fmt"
	"path/filepath"
	"time"
)

// PhotoPath returns the storage path for a photo with the given sequence
// number. t is ignored when synced is false.
func PhotoPath(root string, t time.Time, synced bool, seq uint32) string {
	if !synced {
		return filepath.Join(root, "unsynced", fmt.Sprintf("img_%d.jpg", seq))
	}
	return filepath.Join(root,
		t.Format("20060102"),
		fmt.Sprintf("%s_%d.jpg", t.Format("150405"), seq))
}

// AudioPath returns the storage path for an audio clip with the given
// sequence number. t is ignored when synced is false.
func AudioPath(root string, t time.Time, synced bool, seq uint32) string {
	if !synced {
		return filepath.Join(root, "unsynced_audio", fmt.Sprintf("audio_%d.wav", seq))
	}
	return filepath.Join(root, "audio",
		t.Format("20060102"),
		fmt.Sprintf("%s_%d.wav", t.Format("150405"), seq))
}

// ManifestDir returns the manifest directory under root.
func ManifestDir(root string) string {
	return filepath.Join(root, "manifests")
}

// EventDir returns the event journal directory under root.
func EventDir(root string) string {
	return filepath.Join(root, "events")
}
