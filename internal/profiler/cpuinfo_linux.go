//go:build linux

package profiler

import (
	"os"
	"strconv"
	"strings"
)

// readCPUInfo scrapes model name and clock speed from /proc/cpuinfo, matching
// the only source of this information available without a cgo dependency.
func readCPUInfo() (model string, freqMHz uint64) {
	model = "Unknown"
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return model, 0
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "model name") {
			if idx := strings.Index(line, ":"); idx >= 0 {
				model = strings.TrimSpace(line[idx+1:])
			}
		} else if strings.HasPrefix(line, "cpu MHz") {
			if idx := strings.Index(line, ":"); idx >= 0 {
				if mhz, err := strconv.ParseFloat(strings.TrimSpace(line[idx+1:]), 64); err == nil {
					freqMHz = uint64(mhz)
				}
			}
		}
		if model != "Unknown" && freqMHz > 0 {
			break
		}
	}
	return model, freqMHz
}
