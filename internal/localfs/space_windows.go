//go:build windows

package localfs

import (
	"path/filepath"

	"golang.org/x/sys/windows"
)

// AvailableSpace returns the bytes available to the current user on the
// volume containing path, or 0 if it cannot be determined.
func AvailableSpace(path string) int64 {
	dir, err := windows.UTF16PtrFromString(filepath.Dir(path))
	if err != nil {
		return 0
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &free, &total, &totalFree); err != nil {
		return 0
	}
	return int64(free)
}
