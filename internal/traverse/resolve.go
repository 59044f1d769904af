// Package traverse flattens dropped entry trees into a list of files to upload.
package traverse

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/entry"
)

// ResolvedFile is one non-empty file found during traversal.
type ResolvedFile struct {
	Content      entry.Blob
	RelativePath string // posix style: ancestor directory names joined with "/"
	SizeBytes    int64
}

// ErrTooManyPages is returned when a directory listing never ends.
var ErrTooManyPages = errors.New("directory listing exceeded page limit")

// Options tunes a traversal. The zero value is ready to use.
type Options struct {
	// MaxPages bounds the pages read per directory. Zero means constants.MaxListingPages.
	MaxPages int

	// OnVisit, when set, is called once per completed visit (file or directory).
	OnVisit func(relativePath string, isDir bool)
}

type resolver struct {
	opts Options

	mu    sync.Mutex
	files []ResolvedFile
	errs  []error
}

// Resolve visits every entry and all of its descendants and returns the
// non-empty files sorted by relative path.
//
// Children of a directory are visited concurrently and the directory completes
// only after all of them have. A failed listing or blob fetch is recorded and
// the branch completes; siblings are unaffected. The returned error joins every
// branch failure and the partial result is still returned with it.
func Resolve(ctx context.Context, entries []entry.Entry) ([]ResolvedFile, error) {
	return ResolveWithOptions(ctx, entries, Options{})
}

// ResolveWithOptions is Resolve with tuning.
func ResolveWithOptions(ctx context.Context, entries []entry.Entry, opts Options) ([]ResolvedFile, error) {
	if opts.MaxPages <= 0 {
		opts.MaxPages = constants.MaxListingPages
	}
	r := &resolver{opts: opts}

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e entry.Entry) {
			defer wg.Done()
			r.visit(ctx, e, "")
		}(e)
	}
	wg.Wait()

	sort.Slice(r.files, func(i, j int) bool {
		return r.files[i].RelativePath < r.files[j].RelativePath
	})
	return r.files, errors.Join(r.errs...)
}

// visit returns exactly once per entry, after every descendant has returned.
func (r *resolver) visit(ctx context.Context, e entry.Entry, prefix string) {
	switch v := e.(type) {
	case entry.FileEntry:
		r.visitFile(ctx, v, prefix)
	case entry.DirectoryEntry:
		r.visitDirectory(ctx, v, prefix)
	default:
		r.fail(fmt.Errorf("%s%s: unsupported entry type %T", prefix, e.Name(), e))
		r.visited(prefix+e.Name(), false)
	}
}

func (r *resolver) visitFile(ctx context.Context, fe entry.FileEntry, prefix string) {
	path := prefix + fe.Name()
	defer r.visited(path, false)

	blob, err := fe.File(ctx)
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", path, err))
		return
	}
	// Empty files are never uploaded
	if blob.Size() <= 0 {
		return
	}

	r.mu.Lock()
	r.files = append(r.files, ResolvedFile{
		Content:      blob,
		RelativePath: path,
		SizeBytes:    blob.Size(),
	})
	r.mu.Unlock()
}

func (r *resolver) visitDirectory(ctx context.Context, de entry.DirectoryEntry, prefix string) {
	path := prefix + de.Name()
	defer r.visited(path, true)

	children, err := r.list(ctx, de)
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", path, err))
		// Children listed before the failure are still visited
	}
	if len(children) == 0 {
		return
	}

	childPrefix := path + "/"
	var wg sync.WaitGroup
	for _, child := range children {
		wg.Add(1)
		go func(child entry.Entry) {
			defer wg.Done()
			r.visit(ctx, child, childPrefix)
		}(child)
	}
	wg.Wait()
}

// list reads pages until an empty one is returned.
func (r *resolver) list(ctx context.Context, de entry.DirectoryEntry) ([]entry.Entry, error) {
	reader := de.Reader()
	var all []entry.Entry
	for pages := 0; ; pages++ {
		if pages >= r.opts.MaxPages {
			return all, ErrTooManyPages
		}
		if err := ctx.Err(); err != nil {
			return all, err
		}
		page, err := reader.ReadEntries(ctx)
		all = append(all, page...)
		if err != nil {
			return all, err
		}
		if len(page) == 0 {
			return all, nil
		}
	}
}

func (r *resolver) fail(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *resolver) visited(path string, isDir bool) {
	if r.opts.OnVisit != nil {
		r.opts.OnVisit(path, isDir)
	}
}

// ResolveFlat is the fallback for sources without entry traversal: every blob
// is taken by its bare name with no prefix and no recursion. Empty blobs are
// still excluded and input order is kept.
func ResolveFlat(blobs []entry.Blob) []ResolvedFile {
	files := make([]ResolvedFile, 0, len(blobs))
	for _, b := range blobs {
		if b.Size() <= 0 {
			continue
		}
		files = append(files, ResolvedFile{
			Content:      b,
			RelativePath: b.Name(),
			SizeBytes:    b.Size(),
		})
	}
	return files
}
