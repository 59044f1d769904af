package progress

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/upload"
)

// UploadUI manages the progress bars of one upload batch using mpb.
// It implements upload.Observer.
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer // non-TTY status lines
	target     string    // server host shown after the arrow
	isTerminal bool
	totalFiles int
	started    int32 // Atomic counter for file index (1, 2, 3, ...)
	completed  int32
	failed     int32
}

// FileBar represents a single file upload progress bar
type FileBar struct {
	bar        *mpb.Bar
	ui         *UploadUI
	index      int
	path       string
	size       int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
}

// NewUploadUIWithOutput creates an upload UI for a batch of totalFiles files
// sent to target. Without a terminal, per-file result lines go to out.
func NewUploadUIWithOutput(totalFiles int, target string, out io.Writer, isTerminal bool) *UploadUI {
	return &UploadUI{
		progress:   newMultiProgress(isTerminal),
		out:        out,
		target:     target,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// Started implements upload.Observer.
func (u *UploadUI) Started(relativePath string, size int64) upload.ItemObserver {
	return u.AddFileBar(relativePath, size)
}

// AddFileBar creates a new progress bar for a file upload
func (u *UploadUI) AddFileBar(relativePath string, size int64) *FileBar {
	// Atomic increment to get unique file index across all concurrent uploads
	index := int(atomic.AddInt32(&u.started, 1))
	shown := truncatePath(relativePath, 3)

	fb := &FileBar{
		ui:         u,
		index:      index,
		path:       relativePath,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		label := fmt.Sprintf("[%d/%d] %s (%s) → %s", index, u.totalFiles, shown, FormatSize(size), u.target)
		fb.bar = u.progress.New(size,
			barStyle(),
			mpb.PrependDecorators(
				decor.Name(label, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Name("ETA ", decor.WCSyncWidth),
				decor.EwmaETA(decor.ET_STYLE_GO, 30),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Uploading [%d/%d]: %s (%s) → %s\n",
			index, u.totalFiles, shown, FormatSize(size), u.target)
	}

	return fb
}

// Progress implements upload.ItemObserver. Updates are throttled; mpb still
// gets the elapsed time on each one so EWMA speed stays accurate.
func (f *FileBar) Progress(sent, total int64) {
	if f.bar == nil {
		return
	}

	now := time.Now()
	elapsed := now.Sub(f.lastUpdate)
	if elapsed < constants.ProgressUpdateInterval && sent < total {
		return
	}

	f.bar.EwmaIncrBy(int(sent-f.lastBytes), elapsed)
	f.lastBytes = sent
	f.lastUpdate = now
}

// Complete marks the upload as finished and prints a summary line. Failures
// are printed inline and never stop the other bars.
func (f *FileBar) Complete(fileID string, err error) {
	elapsed := time.Since(f.startTime)

	var msg string
	if err == nil {
		if f.bar != nil {
			// Ensure exact 100% completion (no rounding errors)
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true) // Mark done, trigger BarRemoveOnComplete
		}

		id := fileID
		if id == "" {
			id = "-"
		}
		msg = fmt.Sprintf("✓ %s → %s (FileID: %s, %s, %s, %s/s)\n",
			f.path, f.ui.target, id, FormatSize(f.size),
			elapsed.Round(time.Millisecond*100), FormatSize(rate(f.size, elapsed)))
	} else {
		if f.bar != nil {
			f.bar.Abort(false) // false = don't remove (show failure)
		}
		atomic.AddInt32(&f.ui.failed, 1)
		msg = fmt.Sprintf("✗ %s → %s: %v\n", f.path, f.ui.target, err)
	}

	// Write through mpb's writer (not stdout) to avoid tearing the bars
	_, _ = f.ui.Writer().Write([]byte(msg))
	atomic.AddInt32(&f.ui.completed, 1)
}

// Wait blocks until all progress bars complete
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that safely prints above the progress bars.
func (u *UploadUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if output is to a terminal (progress bars are active).
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// Counts returns completed and failed item counts.
func (u *UploadUI) Counts() (completed, failed int) {
	return int(atomic.LoadInt32(&u.completed)), int(atomic.LoadInt32(&u.failed))
}

func rate(size int64, elapsed time.Duration) int64 {
	if elapsed <= 0 {
		return 0
	}
	return int64(float64(size) / elapsed.Seconds())
}

// FormatSize renders a byte count the way the server formats sizes ("1.50 KB").
func FormatSize(size int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	f := float64(size)
	for _, unit := range units[:len(units)-1] {
		if f < 1024 {
			return fmt.Sprintf("%.2f %s", f, unit)
		}
		f /= 1024
	}
	return fmt.Sprintf("%.2f %s", f, units[len(units)-1])
}

// truncatePath truncates a file path to show only the last N components
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.ToSlash(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}
