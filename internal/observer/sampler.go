package observer

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Resources is a point-in-time process resource sample.
type Resources struct {
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
	RSSBytes   uint64 `json:"rss_bytes"`
}

// sampleResources reads runtime stats and, on Linux, the process RSS.
func sampleResources() Resources {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Resources{
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
		RSSBytes:   readRSS(),
	}
}

// readRSS parses VmRSS from /proc/self/status. Returns 0 where procfs is
// unavailable.
func readRSS() uint64 {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}
