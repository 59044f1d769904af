package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/sharedrop/sharedrop/internal/constants"
)

// DownloadUI manages concurrent download progress bars using mpb
type DownloadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalFiles int
	started    int32
	completed  int32
	failed     int32
}

// DownloadFileBar represents a single file download progress bar
type DownloadFileBar struct {
	bar        *mpb.Bar
	ui         *DownloadUI
	fileID     string
	localPath  string
	size       int64 // -1 when unknown
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64 // bytes seen so far
	reported   int64 // bytes already passed to mpb
}

// NewDownloadUI creates a new download UI with the given number of total files
func NewDownloadUI(totalFiles int) *DownloadUI {
	return NewDownloadUIWithOutput(totalFiles, os.Stdout, StderrIsTerminal())
}

// NewDownloadUIWithOutput is NewDownloadUI with explicit non-TTY output and
// terminal detection.
func NewDownloadUIWithOutput(totalFiles int, out io.Writer, isTerminal bool) *DownloadUI {
	return &DownloadUI{
		progress:   newMultiProgress(isTerminal),
		out:        out,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar creates a new progress bar for the download of fileID into localPath.
func (u *DownloadUI) AddFileBar(fileID, localPath string, size int64) *DownloadFileBar {
	index := int(atomic.AddInt32(&u.started, 1))
	destPath := truncatePath(localPath, 2)

	fb := &DownloadFileBar{
		ui:         u,
		fileID:     fileID,
		localPath:  localPath,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	sizeLabel := "unknown size"
	if size >= 0 {
		sizeLabel = FormatSize(size)
	}

	if u.isTerminal {
		total := size
		if total < 0 {
			total = 0 // mpb treats a non-positive total as unknown
		}
		label := fmt.Sprintf("[%d/%d] %s (%s) ← %s", index, u.totalFiles, destPath, sizeLabel, fileID)
		fb.bar = u.progress.New(total,
			barStyle(),
			mpb.PrependDecorators(
				decor.Name(label, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Any(func(s decor.Statistics) string {
					if s.Total <= 0 {
						return "   ?  %"
					}
					return fmt.Sprintf("%6.2f%%", float64(s.Current)/float64(s.Total)*100)
				}, decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Downloading [%d/%d]: %s (%s) ← %s\n",
			index, u.totalFiles, destPath, sizeLabel, fileID)
	}

	return fb
}

// Reader wraps r so that reads advance the bar.
func (f *DownloadFileBar) Reader(r io.Reader) io.Reader {
	return &barReader{r: r, bar: f}
}

type barReader struct {
	r    io.Reader
	bar  *DownloadFileBar
	read int64
}

func (b *barReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.read += int64(n)
	b.bar.Progress(b.read)
	return n, err
}

// Progress records that current bytes have arrived. Updates are throttled
// and always pass elapsed time so EWMA speed stays accurate.
func (f *DownloadFileBar) Progress(current int64) {
	now := time.Now()
	elapsed := now.Sub(f.lastUpdate)
	if f.bar != nil && elapsed >= constants.ProgressUpdateInterval {
		f.bar.EwmaIncrBy(int(current-f.reported), elapsed)
		f.lastUpdate = now
		f.reported = current
	}
	f.lastBytes = current
}

// Complete marks the download as finished and prints a summary
func (f *DownloadFileBar) Complete(err error) {
	elapsed := time.Since(f.startTime)

	var msg string
	if err == nil {
		if f.bar != nil {
			if f.size >= 0 {
				f.bar.SetCurrent(f.size)
				f.bar.SetTotal(f.size, true)
			} else {
				f.bar.SetCurrent(f.lastBytes)
				f.bar.SetTotal(-1, true) // total becomes current
			}
		}
		msg = fmt.Sprintf("✓ %s ← %s (%s, %s, %s/s)\n",
			truncatePath(f.localPath, 2), f.fileID, FormatSize(f.lastBytes),
			elapsed.Round(time.Millisecond*100), FormatSize(rate(f.lastBytes, elapsed)))
	} else {
		if f.bar != nil {
			f.bar.Abort(false)
		}
		atomic.AddInt32(&f.ui.failed, 1)
		msg = fmt.Sprintf("✗ %s ← %s: %v\n", truncatePath(f.localPath, 2), f.fileID, err)
	}

	_, _ = f.ui.Writer().Write([]byte(msg))
	atomic.AddInt32(&f.ui.completed, 1)
}

// Wait blocks until all progress bars complete
func (u *DownloadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that safely prints above the progress bars.
func (u *DownloadUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return u.out
}

// Counts returns completed and failed download counts.
func (u *DownloadUI) Counts() (completed, failed int) {
	return int(atomic.LoadInt32(&u.completed)), int(atomic.LoadInt32(&u.failed))
}

// IsTerminal returns whether output is to a terminal
func (u *DownloadUI) IsTerminal() bool {
	return u.isTerminal
}
