//go:build !windows

package localfs

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// AvailableSpace returns the bytes available to unprivileged users on the
// filesystem containing path, or 0 if it cannot be determined.
func AvailableSpace(path string) int64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(path), &stat); err != nil {
		return 0
	}
	return int64(stat.Bavail) * int64(stat.Bsize)
}
