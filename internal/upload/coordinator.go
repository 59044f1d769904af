// Package upload coordinates batches of uploads and fires the reload side
// effect once every item of a batch has finished.
package upload

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sharedrop/sharedrop/internal/api"
	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/entry"
	"github.com/sharedrop/sharedrop/internal/logging"
	"github.com/sharedrop/sharedrop/internal/models"
	"github.com/sharedrop/sharedrop/internal/traverse"
)

// Item is one file of a batch.
type Item struct {
	Content        entry.Blob
	RelativePath   string
	IsFolderMember bool
}

// ItemsFromResolved converts traversal output to batch items. Only items that
// came from entry traversal can be folder members, and only when their path
// has a directory component.
func ItemsFromResolved(files []traverse.ResolvedFile, viaEntries bool) []Item {
	items := make([]Item, len(files))
	for i, f := range files {
		items[i] = Item{
			Content:        f.Content,
			RelativePath:   f.RelativePath,
			IsFolderMember: viaEntries && strings.Contains(f.RelativePath, "/"),
		}
	}
	return items
}

// CleanPath strips leading slashes from a relative path before it is sent.
func CleanPath(p string) string {
	return strings.TrimLeft(p, "/")
}

// Uploader sends one file. *api.Client satisfies it.
type Uploader interface {
	Upload(ctx context.Context, req api.UploadRequest) (*models.UploadResponse, error)
}

// Observer is told about each item as its upload starts. It must be safe for
// concurrent use.
type Observer interface {
	Started(relativePath string, size int64) ItemObserver
}

// ItemObserver follows a single upload.
type ItemObserver interface {
	Progress(sent, total int64)
	Complete(fileID string, err error)
}

// Reloader is the batch's completion side effect.
type Reloader interface {
	Reload(ctx context.Context, result Result)
}

// ReloadFunc adapts a function to Reloader.
type ReloadFunc func(ctx context.Context, result Result)

// Reload calls f.
func (f ReloadFunc) Reload(ctx context.Context, result Result) { f(ctx, result) }

// BatchState is the completion counter of one batch. CompletedCount only
// grows, by one per terminal outcome.
type BatchState struct {
	ID             string
	TotalExpected  int
	CompletedCount int
}

// Finished reports whether every item has reached a terminal outcome.
func (s BatchState) Finished() bool {
	return s.CompletedCount >= s.TotalExpected
}

// ItemResult is the terminal outcome of one item.
type ItemResult struct {
	Item   Item
	FileID string
	Err    error
}

// Result summarises a finished batch. Both slices keep submission order.
type Result struct {
	BatchID   string
	Succeeded []ItemResult
	Failed    []ItemResult
}

// Options configures a Coordinator.
type Options struct {
	Device        config.DeviceInfo
	MaxConcurrent int           // 1..10, zero means constants.DefaultMaxConcurrent
	ReloadDelay   time.Duration // zero means constants.ReloadDelay
	Observer      Observer
	Reloader      Reloader
	Logger        *logging.Logger

	// OnProgress, when set, receives a snapshot after every increment of the
	// completion counter. It is called with the batch lock held and must not
	// call back into the batch.
	OnProgress func(BatchState)
}

// Coordinator turns item lists into batches. It holds no per-batch state, so
// batches may overlap.
type Coordinator struct {
	uploader Uploader
	opts     Options
}

// NewCoordinator creates a coordinator that sends files through uploader.
func NewCoordinator(uploader Uploader, opts Options) *Coordinator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = constants.DefaultMaxConcurrent
	}
	if opts.MaxConcurrent > constants.MaxMaxConcurrent {
		opts.MaxConcurrent = constants.MaxMaxConcurrent
	}
	if opts.ReloadDelay <= 0 {
		opts.ReloadDelay = constants.ReloadDelay
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return &Coordinator{uploader: uploader, opts: opts}
}

// Batch tracks one submitted set of items.
type Batch struct {
	mu       sync.Mutex
	state    BatchState
	results  []ItemResult
	finished []bool
	wg       sync.WaitGroup
	reloaded chan struct{}
}

// SubmitBatch starts one upload per item and returns immediately. Every item
// counts toward completion whether it succeeds or fails; when the last one
// finishes the reloader runs once after the reload delay. An empty batch
// completes at once and never reloads.
func (c *Coordinator) SubmitBatch(ctx context.Context, items []Item) *Batch {
	b := &Batch{
		state: BatchState{
			ID:            uuid.NewString(),
			TotalExpected: len(items),
		},
		results:  make([]ItemResult, len(items)),
		finished: make([]bool, len(items)),
		reloaded: make(chan struct{}),
	}

	log := c.opts.Logger
	log.Debug().Str("batch", b.state.ID).Int("items", len(items)).Msg("batch submitted")

	if len(items) == 0 {
		close(b.reloaded)
		return b
	}

	sem := make(chan struct{}, c.opts.MaxConcurrent)
	b.wg.Add(len(items))
	for i, item := range items {
		go func(i int, item Item) {
			defer b.wg.Done()

			var fileID string
			var err error
			select {
			case sem <- struct{}{}:
				fileID, err = c.uploadOne(ctx, item)
				<-sem
			case <-ctx.Done():
				err = fmt.Errorf("%s: %w", item.RelativePath, ctx.Err())
			}
			c.finish(ctx, b, i, ItemResult{Item: item, FileID: fileID, Err: err})
		}(i, item)
	}
	return b
}

func (c *Coordinator) uploadOne(ctx context.Context, item Item) (string, error) {
	if item.Content == nil {
		return "", fmt.Errorf("%s: no content", item.RelativePath)
	}
	size := item.Content.Size()

	var obs ItemObserver
	if c.opts.Observer != nil {
		obs = c.opts.Observer.Started(item.RelativePath, size)
	}

	fileID, err := c.send(ctx, item, obs)

	if obs != nil {
		obs.Complete(fileID, err)
	} else if err != nil {
		c.opts.Logger.Error().Err(err).Str("path", item.RelativePath).Msg("upload failed")
	}
	return fileID, err
}

func (c *Coordinator) send(ctx context.Context, item Item, obs ItemObserver) (string, error) {
	rc, err := item.Content.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", item.RelativePath, err)
	}
	defer rc.Close()

	req := api.UploadRequest{
		Content:  rc,
		Size:     item.Content.Size(),
		Filename: item.Content.Name(),
		Path:     CleanPath(item.RelativePath),
		IsFolder: item.IsFolderMember,
		Device:   c.opts.Device,
	}
	if obs != nil {
		req.Progress = obs.Progress
	}

	resp, err := c.uploader.Upload(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.FileID, nil
}

// finish records one terminal outcome. The goroutine that brings the counter
// to TotalExpected schedules the reload; the counter never passes it, so this
// happens exactly once.
func (c *Coordinator) finish(ctx context.Context, b *Batch, i int, r ItemResult) {
	b.mu.Lock()
	b.results[i] = r
	b.finished[i] = true
	b.state.CompletedCount++
	state := b.state
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(state)
	}
	b.mu.Unlock()

	if state.CompletedCount != state.TotalExpected {
		return
	}

	result := b.Result()
	c.opts.Logger.Debug().
		Str("batch", state.ID).
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Dur("delay", c.opts.ReloadDelay).
		Msg("batch finished, reload scheduled")

	time.AfterFunc(c.opts.ReloadDelay, func() {
		defer close(b.reloaded)
		if c.opts.Reloader != nil {
			c.opts.Reloader.Reload(context.WithoutCancel(ctx), result)
		}
	})
}

// ID returns the batch identifier.
func (b *Batch) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.ID
}

// State returns a snapshot of the completion counter.
func (b *Batch) State() BatchState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Wait blocks until every item has reached a terminal outcome.
func (b *Batch) Wait() {
	b.wg.Wait()
}

// Reloaded is closed after the reloader has returned. For an empty batch it
// is closed immediately and the reloader is never called.
func (b *Batch) Reloaded() <-chan struct{} {
	return b.reloaded
}

// Result returns the outcomes recorded so far, split by success.
func (b *Batch) Result() Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	res := Result{BatchID: b.state.ID}
	for i, r := range b.results {
		if !b.finished[i] {
			continue
		}
		if r.Err != nil {
			res.Failed = append(res.Failed, r)
		} else {
			res.Succeeded = append(res.Succeeded, r)
		}
	}
	return res
}
