package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sharedrop/sharedrop/internal/entry"
)

// FileEntry represents a file or directory in the local filesystem.
type FileEntry struct {
	Path    string      // Full path to the file
	Name    string      // Base name of the file
	Size    int64       // Size in bytes (0 for directories)
	IsDir   bool        // True if this is a directory
	ModTime time.Time   // Last modification time
	Mode    fs.FileMode // File mode/permissions
}

// ListDirectory returns the contents of a directory, filtered by options.
// Returns FileEntry slice sorted by the filesystem's native order.
func ListDirectory(path string, opts ListOptions) ([]FileEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	result := make([]FileEntry, 0, len(entries))
	for _, de := range entries {
		name := de.Name()

		if !opts.IncludeHidden && IsHiddenName(name) {
			continue
		}

		info, err := de.Info()
		if err != nil {
			// Skip entries we can't stat (permission issues, removed mid-listing)
			continue
		}

		result = append(result, FileEntry{
			Path:    filepath.Join(path, name),
			Name:    name,
			Size:    info.Size(),
			IsDir:   de.IsDir(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		})
	}

	return result, nil
}

// ErrUnsupportedType is returned for paths that are neither regular files nor
// directories (sockets, devices, named pipes).
var ErrUnsupportedType = errors.New("not a regular file or directory")

// Open returns the dropped entry for a local path. A symlink given directly is
// followed; symlinked directories found while listing are skipped.
func Open(path string, opts ListOptions) (entry.Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return newEntry(path, info, opts)
}

// OpenBlob returns the content of a local file without treating it as part of
// a tree. Used by the flat fallback.
func OpenBlob(path string) (entry.Blob, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedType)
	}
	return &File{path: path, name: filepath.Base(path), size: info.Size()}, nil
}

func newEntry(path string, info fs.FileInfo, opts ListOptions) (entry.Entry, error) {
	name := filepath.Base(path)
	switch {
	case info.IsDir():
		return &Directory{path: path, name: name, opts: opts}, nil
	case info.Mode().IsRegular():
		return &File{path: path, name: name, size: info.Size()}, nil
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedType)
	}
}

// File is a local regular file. It is both a FileEntry and its own Blob.
type File struct {
	path string
	name string
	size int64
}

// Name returns the base name.
func (f *File) Name() string { return f.name }

// Size returns the size recorded when the file was last stat'ed.
func (f *File) Size() int64 { return f.size }

// Path returns the local path.
func (f *File) Path() string { return f.path }

// File re-stats the file so the size reflects the content at traversal time.
func (f *File) File(ctx context.Context) (entry.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, err
	}
	return &File{path: f.path, name: f.name, size: info.Size()}, nil
}

// Open opens the file for reading.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(f.path)
}

// Directory is a local directory.
type Directory struct {
	path string
	name string
	opts ListOptions
}

// Name returns the base name.
func (d *Directory) Name() string { return d.name }

// Path returns the local path.
func (d *Directory) Path() string { return d.path }

// Reader starts a new paginated listing.
func (d *Directory) Reader() entry.DirectoryReader {
	return &dirReader{dir: d}
}

// dirReader pages through os.File.ReadDir. The directory handle is opened on
// the first call and closed when the listing is exhausted or fails.
type dirReader struct {
	mu   sync.Mutex
	dir  *Directory
	f    *os.File
	done bool
}

// ReadEntries returns the next non-empty page of visible children, or an
// empty page at the end of the listing.
func (r *dirReader) ReadEntries(ctx context.Context) ([]entry.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return nil, nil
	}
	if r.f == nil {
		f, err := os.Open(r.dir.path)
		if err != nil {
			r.done = true
			return nil, err
		}
		r.f = f
	}

	for {
		if err := ctx.Err(); err != nil {
			r.close()
			return nil, err
		}

		des, err := r.f.ReadDir(r.dir.opts.pageSize())
		page := r.convert(des)

		if err != nil {
			r.close()
			if errors.Is(err, io.EOF) {
				return page, nil
			}
			return page, fmt.Errorf("listing %s: %w", r.dir.path, err)
		}
		// A page that filtered down to nothing must not look like the end
		if len(page) > 0 {
			return page, nil
		}
	}
}

func (r *dirReader) convert(des []fs.DirEntry) []entry.Entry {
	page := make([]entry.Entry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if !r.dir.opts.IncludeHidden && IsHiddenName(name) {
			continue
		}
		childPath := filepath.Join(r.dir.path, name)
		info, err := os.Stat(childPath)
		if err != nil {
			// Dangling symlink or removed mid-listing
			continue
		}
		// Symlinked directories are not descended; they can form cycles
		if de.Type()&fs.ModeSymlink != 0 && info.IsDir() {
			continue
		}
		e, err := newEntry(childPath, info, r.dir.opts)
		if err != nil {
			continue
		}
		page = append(page, e)
	}
	return page
}

func (r *dirReader) close() {
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}
	r.done = true
}
