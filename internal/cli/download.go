package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/sharedrop/sharedrop/internal/api"
	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/localfs"
	"github.com/sharedrop/sharedrop/internal/logging"
	"github.com/sharedrop/sharedrop/internal/progress"
)

var (
	// errFileExists is returned when a download target exists and --force is not set.
	errFileExists = errors.New("file already exists (use --force to overwrite)")

	// errDuplicateTarget is returned when another id of the same run saves to the same name.
	errDuplicateTarget = errors.New("another download in this run saves to the same file")
)

// targets records the destinations claimed by one download run.
type targets struct {
	mu    sync.Mutex
	taken map[string]string // dest -> file id
}

// claim reserves dest for fileID and reports whether it was free.
func (t *targets) claim(dest, fileID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.taken == nil {
		t.taken = make(map[string]string)
	}
	if _, ok := t.taken[dest]; ok {
		return false
	}
	t.taken[dest] = fileID
	return true
}

func newDownloadCmd() *cobra.Command {
	var outputDir string
	var maxConcurrent int
	var force bool

	cmd := &cobra.Command{
		Use:   "download <file-id> [file-id...]",
		Short: "Download files over HTTP",
		Long: `Download files by id. Each file is saved under the name from the
server's Content-Disposition header.

Examples:
  sharedrop download 3f2a9c
  sharedrop download 3f2a9c 81bd07 --output ./incoming`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			if maxConcurrent < constants.MinMaxConcurrent || maxConcurrent > constants.MaxMaxConcurrent {
				return fmt.Errorf("--max-concurrent must be between %d and %d, got %d",
					constants.MinMaxConcurrent, constants.MaxMaxConcurrent, maxConcurrent)
			}

			apiClient, err := getAPIClient()
			if err != nil {
				return err
			}

			if outputDir == "" {
				outputDir = config.DownloadDirectory()
			}
			return executeDownload(GetContext(), args, outputDir, maxConcurrent, force, apiClient, logger)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: Downloads)")
	cmd.Flags().IntVarP(&maxConcurrent, "max-concurrent", "m", constants.DefaultMaxConcurrent,
		fmt.Sprintf("Maximum concurrent downloads (%d-%d)", constants.MinMaxConcurrent, constants.MaxMaxConcurrent))
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing files")

	return cmd
}

// downloader is the subset of *api.Client used by executeDownload.
type downloader interface {
	Download(ctx context.Context, fileID string) (*api.Download, error)
}

func executeDownload(ctx context.Context, fileIDs []string, outputDir string, maxConcurrent int, force bool, client downloader, logger *logging.Logger) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ui := progress.NewDownloadUI(len(fileIDs))
	if ui.IsTerminal() {
		prev := logger.Output()
		logger.SetOutput(ui.Writer())
		defer logger.SetOutput(prev)
	}

	sem := make(chan struct{}, maxConcurrent)
	claimed := &targets{}
	var wg sync.WaitGroup
	for _, fileID := range fileIDs {
		wg.Add(1)
		go func(fileID string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				fmt.Fprintf(ui.Writer(), "✗ %s: %v\n", fileID, ctx.Err())
				return
			}
			if err := downloadOne(ctx, client, ui, claimed, fileID, outputDir, force); err != nil {
				logger.Debug().Err(err).Str("file_id", fileID).Msg("download failed")
			}
		}(fileID)
	}
	wg.Wait()
	ui.Wait()

	completed, failed := ui.Counts()
	if failed > 0 || completed < len(fileIDs) {
		return fmt.Errorf("%d of %d downloads failed", len(fileIDs)-(completed-failed), len(fileIDs))
	}
	return nil
}

func downloadOne(ctx context.Context, client downloader, ui *progress.DownloadUI, claimed *targets, fileID, outputDir string, force bool) error {
	dl, err := client.Download(ctx, fileID)
	if err != nil {
		err = describeAPIError(fileID, err)
		bar := ui.AddFileBar(fileID, filepath.Join(outputDir, fileID), -1)
		bar.Complete(err)
		return err
	}
	defer dl.Body.Close()

	dest := filepath.Join(outputDir, safeFilename(dl.Filename, fileID))
	bar := ui.AddFileBar(fileID, dest, dl.Size)

	if !claimed.claim(dest, fileID) {
		err := fmt.Errorf("%s: %w", filepath.Base(dest), errDuplicateTarget)
		bar.Complete(err)
		return err
	}

	if err := localfs.CheckAvailableSpace(dest, dl.Size, localfs.SpaceSafetyMargin); err != nil {
		bar.Complete(err)
		return err
	}

	err = writeFile(dest, bar.Reader(dl.Body), force)
	bar.Complete(err)
	return err
}

// writeFile streams r into dest through a temporary file, so a failed
// transfer never leaves a truncated file under the final name.
func writeFile(dest string, r io.Reader, force bool) error {
	if !force {
		if _, err := os.Stat(dest); err == nil {
			return errFileExists
		}
	}

	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	tmp := f.Name()

	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		if localfs.IsDiskFullError(err) {
			return fmt.Errorf("disk full: %w", err)
		}
		return err
	}

	// CreateTemp uses 0600.
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
