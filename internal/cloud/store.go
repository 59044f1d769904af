// Package cloud exposes bucket prefixes in object stores as dropped entries,
// so a remote "directory" can be uploaded to the share server exactly like a
// local one. The s3 and azure subpackages implement Store.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/sharedrop/sharedrop/internal/entry"
)

// Object is one stored object returned by a listing.
type Object struct {
	Key  string
	Size int64
}

// Page is one page of a delimited listing: objects directly under the
// prefix, and the common prefixes ("subdirectories", ending in "/").
type Page struct {
	Objects  []Object
	Prefixes []string
	Next     string // continuation token; empty when the listing is complete
}

// Store is a flat object namespace with "/"-delimited listings.
type Store interface {
	// List returns one page of the children of prefix.
	List(ctx context.Context, prefix, token string) (Page, error)
	// Stat reports the size of key; found is false when no such object exists.
	Stat(ctx context.Context, key string) (size int64, found bool, err error)
	// Get streams the object at key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Location is a parsed remote reference such as s3://bucket/some/prefix.
type Location struct {
	Scheme    string // "s3" or "az"
	Container string // bucket or container name
	Key       string // object key or prefix, without a leading slash
}

// ErrUnsupportedScheme is returned by ParseLocation for anything but s3:// and az://.
var ErrUnsupportedScheme = errors.New("unsupported remote scheme")

// IsRemote reports whether arg looks like a remote reference.
func IsRemote(arg string) bool {
	return strings.HasPrefix(arg, "s3://") || strings.HasPrefix(arg, "az://")
}

// ParseLocation parses s3://bucket/prefix and az://container/prefix.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("invalid remote reference %q: %w", raw, err)
	}
	if u.Scheme != "s3" && u.Scheme != "az" {
		return Location{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("invalid remote reference %q: missing bucket or container", raw)
	}
	return Location{Scheme: u.Scheme, Container: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
}

// Open resolves key to a file entry when an object exists there, and to a
// directory entry over the prefix otherwise. An empty key or one ending in
// "/" is always a directory; rootName names it when the key has no base name.
func Open(ctx context.Context, store Store, key, rootName string) (entry.Entry, error) {
	if key == "" || strings.HasSuffix(key, "/") {
		return newDirectory(store, key, rootName), nil
	}

	size, found, err := store.Stat(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if found {
		return &File{store: store, key: key, size: size}, nil
	}
	return newDirectory(store, key+"/", rootName), nil
}

// File is a remote object. It is its own Blob.
type File struct {
	store Store
	key   string
	size  int64
}

// Name returns the last segment of the key.
func (f *File) Name() string { return path.Base(f.key) }

// Size returns the object size from the listing or stat.
func (f *File) Size() int64 { return f.size }

// Key returns the full object key.
func (f *File) Key() string { return f.key }

// File implements entry.FileEntry.
func (f *File) File(context.Context) (entry.Blob, error) { return f, nil }

// Open streams the object.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	return f.store.Get(ctx, f.key)
}

// Directory is a "/"-terminated prefix.
type Directory struct {
	store  Store
	prefix string
	name   string
}

func newDirectory(store Store, prefix, rootName string) *Directory {
	name := path.Base(strings.TrimSuffix(prefix, "/"))
	if prefix == "" || name == "." || name == "/" {
		name = rootName
	}
	return &Directory{store: store, prefix: prefix, name: name}
}

// Name returns the last segment of the prefix.
func (d *Directory) Name() string { return d.name }

// Prefix returns the listing prefix.
func (d *Directory) Prefix() string { return d.prefix }

// Reader implements entry.DirectoryEntry. Each reader starts a new listing.
func (d *Directory) Reader() entry.DirectoryReader {
	return &dirReader{dir: d}
}

type dirReader struct {
	dir   *Directory
	token string
	done  bool
}

// ReadEntries returns one listing page. Pages that hold nothing usable
// are skipped so an empty result only ever means the end.
func (r *dirReader) ReadEntries(ctx context.Context) ([]entry.Entry, error) {
	for !r.done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := r.dir.store.List(ctx, r.dir.prefix, r.token)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", r.dir.prefix, err)
		}
		r.token = page.Next
		r.done = page.Next == ""

		entries := make([]entry.Entry, 0, len(page.Objects)+len(page.Prefixes))
		for _, p := range page.Prefixes {
			if p == r.dir.prefix {
				continue
			}
			entries = append(entries, newDirectory(r.dir.store, p, ""))
		}
		for _, o := range page.Objects {
			// Folder placeholder objects created by web consoles
			if o.Key == r.dir.prefix || strings.HasSuffix(o.Key, "/") {
				continue
			}
			entries = append(entries, &File{store: r.dir.store, key: o.Key, size: o.Size})
		}
		if len(entries) > 0 {
			return entries, nil
		}
	}
	return nil, nil
}
