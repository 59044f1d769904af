package cli

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"

	"github.com/sharedrop/sharedrop/internal/cloud"
	azstore "github.com/sharedrop/sharedrop/internal/cloud/azure"
	s3store "github.com/sharedrop/sharedrop/internal/cloud/s3"
	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/entry"
	"github.com/sharedrop/sharedrop/internal/localfs"
	"github.com/sharedrop/sharedrop/internal/logging"
	"github.com/sharedrop/sharedrop/internal/traverse"
	"github.com/sharedrop/sharedrop/internal/upload"
)

// errFlatDirectory is returned when --flat is given a directory.
var errFlatDirectory = errors.New("flat mode accepts files only")

// sourceOptions controls how drop arguments are opened.
type sourceOptions struct {
	Flat          bool // bare names, no recursion
	IncludeHidden bool
}

// sourceOpener turns command-line arguments (local paths, s3:// and az://
// references) into batch items. Remote stores are created once per bucket
// or container.
type sourceOpener struct {
	cfg        *config.Config
	httpClient *nethttp.Client
	opts       sourceOptions
	logger     *logging.Logger

	stores map[string]cloud.Store
}

func newSourceOpener(cfg *config.Config, httpClient *nethttp.Client, opts sourceOptions, logger *logging.Logger) *sourceOpener {
	return &sourceOpener{
		cfg:        cfg,
		httpClient: httpClient,
		opts:       opts,
		logger:     logger,
		stores:     make(map[string]cloud.Store),
	}
}

// Items resolves every argument into upload items. A traversal error in one
// branch is returned together with the items that did resolve.
func (o *sourceOpener) Items(ctx context.Context, args []string) ([]upload.Item, error) {
	if o.opts.Flat {
		blobs := make([]entry.Blob, 0, len(args))
		for _, arg := range args {
			b, err := o.openBlob(ctx, arg)
			if err != nil {
				return nil, err
			}
			blobs = append(blobs, b)
		}
		return upload.ItemsFromResolved(traverse.ResolveFlat(blobs), false), nil
	}

	entries := make([]entry.Entry, 0, len(args))
	for _, arg := range args {
		e, err := o.openEntry(ctx, arg)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	files, err := traverse.ResolveWithOptions(ctx, entries, traverse.Options{
		OnVisit: func(relativePath string, isDir bool) {
			o.logger.Debug().Str("path", relativePath).Bool("dir", isDir).Msg("visited")
		},
	})
	return upload.ItemsFromResolved(files, true), err
}

func (o *sourceOpener) openEntry(ctx context.Context, arg string) (entry.Entry, error) {
	if !cloud.IsRemote(arg) {
		e, err := localfs.Open(arg, localfs.ListOptions{IncludeHidden: o.opts.IncludeHidden})
		if err != nil {
			return nil, fmt.Errorf("cannot open %s: %w", arg, err)
		}
		return e, nil
	}

	loc, err := cloud.ParseLocation(arg)
	if err != nil {
		return nil, err
	}
	store, err := o.store(ctx, loc)
	if err != nil {
		return nil, err
	}
	e, err := cloud.Open(ctx, store, loc.Key, loc.Container)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", arg, err)
	}
	return e, nil
}

func (o *sourceOpener) openBlob(ctx context.Context, arg string) (entry.Blob, error) {
	if !cloud.IsRemote(arg) {
		b, err := localfs.OpenBlob(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot open %s: %w", arg, err)
		}
		return b, nil
	}

	e, err := o.openEntry(ctx, arg)
	if err != nil {
		return nil, err
	}
	fe, ok := e.(entry.FileEntry)
	if !ok {
		return nil, fmt.Errorf("%s: %w", arg, errFlatDirectory)
	}
	return fe.File(ctx)
}

// store returns the cached store for a bucket or container.
func (o *sourceOpener) store(ctx context.Context, loc cloud.Location) (cloud.Store, error) {
	cacheKey := loc.Scheme + "://" + loc.Container
	if s, ok := o.stores[cacheKey]; ok {
		return s, nil
	}

	var (
		s   cloud.Store
		err error
	)
	switch loc.Scheme {
	case "s3":
		s, err = s3store.NewStore(ctx, loc.Container, o.cfg.S3, s3store.Options{HTTPClient: o.httpClient})
	case "az":
		retries := o.cfg.MaxRetries
		if retries == 0 {
			retries = -1 // retries stay off unless configured
		}
		s, err = azstore.NewStore(loc.Container, o.cfg.Azure, azstore.Options{
			HTTPClient: o.httpClient,
			MaxRetries: retries,
		})
	default:
		err = fmt.Errorf("%w: %q", cloud.ErrUnsupportedScheme, loc.Scheme)
	}
	if err != nil {
		return nil, err
	}

	o.stores[cacheKey] = s
	return s, nil
}
