//go:build linux
// +build linux

package util

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// WifiRSSI reads the signal level of the first wireless interface from
// /proc/net/wireless. Returns 0 when no wireless interface is present
// (wired nodes report 0 in telemetry).
func WifiRSSI() int {
	f, err := os.Open("/proc/net/wireless")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if line <= 2 {
			// two header lines
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		// fields[3] is the signal level in dBm, printed with a trailing dot
		level := strings.TrimSuffix(fields[3], ".")
		v, err := strconv.ParseFloat(level, 64)
		if err != nil {
			continue
		}
		return int(v)
	}
	return 0
}
