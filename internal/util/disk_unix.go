//go:build linux || darwin
// +build linux darwin

package util

import "syscall"

// DiskUsage reports total and free bytes of the filesystem holding path.
func DiskUsage(path string) (total, free uint64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize)
	return uint64(stat.Blocks) * bsize, uint64(stat.Bavail) * bsize, nil
}
