// Package entry defines the dropped-entry tree that traversal walks.
//
// An Entry is either a FileEntry, which yields a Blob, or a DirectoryEntry,
// whose children are only discoverable through a paginated reader. Sources
// (local filesystem, S3 prefixes, Azure container prefixes) implement these
// interfaces; traversal never needs to know which one it is walking.
package entry

import (
	"context"
	"io"
)

// Entry is a named node of a dropped tree.
type Entry interface {
	Name() string
}

// FileEntry is a leaf that yields its content.
type FileEntry interface {
	Entry
	File(ctx context.Context) (Blob, error)
}

// DirectoryEntry is an inner node. Each call to Reader starts a new listing.
type DirectoryEntry interface {
	Entry
	Reader() DirectoryReader
}

// DirectoryReader lists a directory one page at a time. ReadEntries returns an
// empty page (and a nil error) once the listing is exhausted; callers must
// keep calling it until then.
type DirectoryReader interface {
	ReadEntries(ctx context.Context) ([]Entry, error)
}

// Blob is file content of a known size that can be streamed.
type Blob interface {
	Name() string
	Size() int64
	Open(ctx context.Context) (io.ReadCloser, error)
}
