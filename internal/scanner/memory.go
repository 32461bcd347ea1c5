package scanner

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// processRSS returns the current process resident set size in bytes.
// Swapped in tests.
var processRSS = func() (uint64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// overMemoryThreshold reports whether RSS exceeds the configured threshold.
// Measurement failures read as "not over": the guard is a soft heuristic
// and must never stall the pipeline.
func overMemoryThreshold(threshold uint64) bool {
	if threshold == 0 {
		return false
	}
	rss, err := processRSS()
	if err != nil {
		return false
	}
	return rss > threshold
}
