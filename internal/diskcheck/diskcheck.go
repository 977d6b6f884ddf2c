// Package diskcheck provides a disk-space preflight for the local
// backend. Adapted from the teacher's internal/health/health_check.go
// checkDiskSpace: the syscall.Statfs-based usage calculation carries
// over; the HTTP liveness/readiness probe surface, the periodic
// ticker, and the /proc-based file-descriptor and memory checks are
// dropped since this SDK is an embedded library, not a probed service.
package diskcheck

import (
	"fmt"
	"syscall"
)

// HighWaterMark is the usage percentage at or above which EnsureRoom
// reports that a path is too full to safely write to.
const HighWaterMark = 95.0

// Usage reports a filesystem's space usage.
type Usage struct {
	UsagePercent   float64
	AvailableBytes uint64
}

// Check samples free space on the filesystem containing path.
func Check(path string) (Usage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return Usage{}, fmt.Errorf("diskcheck: statfs %q: %w", path, err)
	}

	available := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return Usage{}, nil
	}
	used := total - stat.Bfree*uint64(stat.Bsize)
	usagePercent := float64(used) / float64(total) * 100

	return Usage{UsagePercent: usagePercent, AvailableBytes: available}, nil
}

// EnsureRoom returns an error if path's filesystem is at or above
// HighWaterMark. Callers treat this as a retryable condition, not an
// input validation failure.
func EnsureRoom(path string) error {
	usage, err := Check(path)
	if err != nil {
		// Best-effort: a platform where Statfs isn't meaningful
		// shouldn't block writes outright.
		return nil
	}
	if usage.UsagePercent >= HighWaterMark {
		return fmt.Errorf("diskcheck: %q is %.1f%% full (%d bytes available)", path, usage.UsagePercent, usage.AvailableBytes)
	}
	return nil
}
