package localfs

import "strings"

// IsDiskFullError checks if an error is likely caused by running out of disk
// space while saving a download. Matches the wording of Linux, macOS,
// Windows and quota systems.
func IsDiskFullError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"no space left on device",
		"disk full",
		"out of disk space",
		"insufficient disk space",
		"not enough space",
		"enospc",
		"disk quota exceeded",
	} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}
