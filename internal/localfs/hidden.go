// Package localfs exposes local files and directories as dropped entries.
// Hidden file detection and directory listing live here so uploads, the
// flat fallback and the dropzone filter the same way.
package localfs

import (
	"path/filepath"
	"strings"
)

// IsHidden returns true if the file or directory at the given path is hidden.
// On Unix systems, this checks if the base name starts with a dot.
// The path can be relative or absolute.
func IsHidden(path string) bool {
	return IsHiddenName(filepath.Base(path))
}

// IsHiddenName returns true if the given filename (not path) represents a hidden file.
// Special entries "." and ".." are not considered hidden.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}

// IsTemporaryName reports names editors and browsers use for partial writes
// (vim swap files, "~" backups, .part/.crdownload downloads). The dropzone
// ignores them until they are renamed to their final name.
func IsTemporaryName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "~") ||
		strings.HasSuffix(lower, ".swp") ||
		strings.HasSuffix(lower, ".part") ||
		strings.HasSuffix(lower, ".crdownload") ||
		strings.HasSuffix(lower, ".tmp")
}
