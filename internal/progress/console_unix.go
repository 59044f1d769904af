//go:build !windows

package progress

import "os"

// enableWindowsANSI does nothing outside Windows; ANSI works natively.
func enableWindowsANSI(*os.File) {}
