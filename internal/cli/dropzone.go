package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/localfs"
	"github.com/sharedrop/sharedrop/internal/logging"
)

func newDropzoneCmd() *cobra.Command {
	var flags uploadFlags
	var includeExisting bool

	cmd := &cobra.Command{
		Use:   "dropzone <dir>",
		Short: "Upload whatever is dropped into a folder",
		Long: `Watch a hot folder. Files and folders that appear in it are uploaded:
everything that arrives before the folder has been quiet for a moment is
one drop, walked and sent as one batch. Batches may overlap.

Entries already present when the command starts are left alone unless
--include-existing is given. Editor and partial-download files are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			if err := flags.validate(); err != nil {
				return err
			}

			apiClient, err := getAPIClient()
			if err != nil {
				return err
			}

			d := newDropper(apiClient, flags, logger, cmd.OutOrStdout())
			z, err := newDropzone(args[0], flags.includeHidden || apiClient.GetConfig().IncludeHidden, includeExisting, logger)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)...\n", z.dir)
			return z.Run(GetContext(), func(ctx context.Context, paths []string) {
				if _, err := d.Drop(ctx, paths, false); err != nil {
					logger.Warn().Err(err).Msg("Drop incomplete")
				}
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&includeExisting, "include-existing", false, "Treat entries already in the folder as the first drop")

	return cmd
}

// dropFunc receives one settled drop: the full paths of the new top-level entries.
type dropFunc func(ctx context.Context, paths []string)

// dropzone groups filesystem activity in a folder into drops.
type dropzone struct {
	dir           string
	includeHidden bool
	settle        func(f func())
	logger        *logging.Logger

	mu      sync.Mutex
	seen    map[string]bool // top-level names already dropped or present at start
	pending map[string]bool // new names waiting for the folder to settle
}

func newDropzone(dir string, includeHidden, includeExisting bool, logger *logging.Logger) (*dropzone, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	z := &dropzone{
		dir:           abs,
		includeHidden: includeHidden,
		settle:        debounce.New(constants.DropzoneSettleDelay),
		logger:        logger,
		seen:          make(map[string]bool),
		pending:       make(map[string]bool),
	}

	existing, err := localfs.ListDirectory(abs, localfs.ListOptions{IncludeHidden: includeHidden})
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if !z.accept(e.Name) {
			continue
		}
		if includeExisting {
			z.pending[e.Name] = true
		} else {
			z.seen[e.Name] = true
		}
	}
	return z, nil
}

// Run watches until ctx is cancelled and waits for in-flight drops.
func (z *dropzone) Run(ctx context.Context, drop dropFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(z.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", z.dir, err)
	}

	var inflight sync.WaitGroup
	flush := func() {
		paths := z.take()
		if len(paths) == 0 {
			return
		}
		z.logger.Debug().Strs("paths", paths).Msg("Drop settled")
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			drop(ctx, paths)
		}()
	}

	z.mu.Lock()
	hasPending := len(z.pending) > 0
	z.mu.Unlock()
	if hasPending {
		z.settle(flush)
	}

	for {
		select {
		case <-ctx.Done():
			inflight.Wait()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				inflight.Wait()
				return nil
			}
			if z.observe(watcher, event) {
				z.settle(flush)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				inflight.Wait()
				return nil
			}
			z.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// observe records an event and reports whether it should (re)start the
// settle timer.
func (z *dropzone) observe(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	rel, err := filepath.Rel(z.dir, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	top := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	if !z.accept(top) || !z.accept(filepath.Base(event.Name)) {
		return false
	}

	// Watch new directories so writes deep inside a copied tree keep the drop open
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = watcher.Add(event.Name)
		}
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if rel == top {
			// Gone from the top level; dropping it again uploads it again
			delete(z.seen, top)
			delete(z.pending, top)
			return len(z.pending) > 0
		}
		return z.pending[top]
	}

	if z.seen[top] {
		return false
	}
	z.pending[top] = true
	return true
}

// take moves every pending name that still exists to seen and returns their paths.
func (z *dropzone) take() []string {
	z.mu.Lock()
	defer z.mu.Unlock()

	paths := make([]string, 0, len(z.pending))
	for name := range z.pending {
		delete(z.pending, name)
		p := filepath.Join(z.dir, name)
		if _, err := os.Lstat(p); err != nil {
			continue
		}
		z.seen[name] = true
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (z *dropzone) accept(name string) bool {
	if localfs.IsTemporaryName(name) {
		return false
	}
	return z.includeHidden || !localfs.IsHiddenName(name)
}
