//go:build windows
// +build windows

package handler

// getDiskStats returns disk usage statistics for the given path.
// Stubbed on Windows; deployments run in Linux containers.
func getDiskStats(path string) (total, free, used int64, usedPct float64) {
	return 0, 0, 0, 0
}

// getCPUUsage returns the CPU usage percentage for this process.
// Stubbed on Windows; deployments run in Linux containers.
func getCPUUsage() float64 {
	return 0
}
