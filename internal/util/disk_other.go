//go:build !linux && !darwin
// +build !linux,!darwin

package util

import "fmt"

// DiskUsage is a stub for unsupported platforms
func DiskUsage(path string) (total, free uint64, err error) {
	return 0, 0, fmt.Errorf("disk usage not supported on this platform")
}
