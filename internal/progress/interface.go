package progress

import (
	"io"
	"os"

	"github.com/vbauerster/mpb/v8"
	"golang.org/x/term"

	"github.com/sharedrop/sharedrop/internal/constants"
)

// ProgressUI is what both the upload and download multi-bar UIs offer to
// callers that only need to print safely while bars are rendering.
type ProgressUI interface {
	// Wait blocks until all progress bars complete
	Wait()

	// Writer returns an io.Writer that safely outputs above the progress bars.
	// Returns mpb's writer if in terminal mode, otherwise the plain output.
	Writer() io.Writer

	// IsTerminal returns true if output is to a terminal (progress bars are active)
	IsTerminal() bool
}

var (
	_ ProgressUI = (*UploadUI)(nil)
	_ ProgressUI = (*DownloadUI)(nil)
)

// StderrIsTerminal reports whether progress bars can be drawn on stderr.
func StderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// newMultiProgress creates the shared mpb container. Non-TTY output gets a
// container that renders nowhere so callers need no special cases.
func newMultiProgress(isTerminal bool) *mpb.Progress {
	if !isTerminal {
		return mpb.New(mpb.WithOutput(io.Discard))
	}
	enableWindowsANSI(os.Stderr)
	return mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithRefreshRate(constants.ProgressRefreshRate),
		mpb.WithWidth(100),
	)
}

// barStyle is the block-character style shared by every bar.
func barStyle() mpb.BarStyleComposer {
	return mpb.BarStyle().
		Lbound("[").
		Filler("█"). // U+2588 - Full block for completed portion
		Tip("█").    // Full block at leading edge
		Padding("░"). // U+2591 - Light shade for remaining portion
		Rbound("]")
}
