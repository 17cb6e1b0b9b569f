//go:build !linux
// +build !linux

package util

// WifiRSSI is a stub for platforms without /proc/net/wireless
func WifiRSSI() int {
	return 0
}
