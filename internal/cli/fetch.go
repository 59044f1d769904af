package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/events"
	"github.com/sharedrop/sharedrop/internal/localfs"
	"github.com/sharedrop/sharedrop/internal/models"
	"github.com/sharedrop/sharedrop/internal/realtime"
)

func newFetchCmd() *cobra.Command {
	var outputDir string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "fetch <file-id> [file-id...]",
		Short: "Fetch files over the real-time channel",
		Long: `Request files with request_file over the real-time channel and save the
file_data replies under the file names the server sends.

Use this when plain HTTP downloads are blocked but the websocket connection
works; 'download' streams over HTTP instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			apiClient, err := getAPIClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(GetContext())
			defer cancel()

			bus := events.NewEventBus(constants.EventBusDefaultBuffer)
			defer bus.Close()

			client, err := realtime.NewClient(apiClient.BaseURL(), apiClient.HTTPClient(), bus, logger)
			if err != nil {
				return fmt.Errorf("failed to create real-time client: %w", err)
			}

			runErr := make(chan error, 1)
			go func() { runErr <- client.Run(ctx) }()

			err = executeFetch(ctx, args, client, watchLoop(runErr), outputDir, timeout, cmd.OutOrStdout())
			cancel()
			return err
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: Downloads)")
	cmd.Flags().DurationVar(&timeout, "timeout", constants.FetchTimeout, "How long to wait for each reply")

	return cmd
}

// fetcher is the subset of *realtime.Client used by executeFetch.
type fetcher interface {
	Fetch(ctx context.Context, fileID string) (*models.FileData, error)
}

// loopState records how the real-time loop ended; err is set before done closes.
type loopState struct {
	done chan struct{}
	err  error
}

func watchLoop(runErr <-chan error) *loopState {
	s := &loopState{done: make(chan struct{})}
	go func() {
		err := <-runErr
		if err == nil {
			err = context.Canceled
		}
		s.err = err
		close(s.done)
	}()
	return s
}

func (s *loopState) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// executeFetch requests each id in turn and stops at the first id once the
// real-time loop has exited.
func executeFetch(ctx context.Context, fileIDs []string, client fetcher, loop *loopState, outputDir string, timeout time.Duration, out io.Writer) error {
	failed := 0
	for i, fileID := range fileIDs {
		if loop.stopped() {
			return fmt.Errorf("real-time channel stopped after %d of %d fetches: %w", i, len(fileIDs), loop.err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fetchCtx, fetchCancel := context.WithTimeout(ctx, timeout)
		data, err := fetchOne(fetchCtx, client, loop, fileID)
		fetchCancel()
		if err != nil {
			failed++
			fmt.Fprintf(out, "✗ %s: %v\n", fileID, err)
			continue
		}

		dest, err := saveFileData(outputDir, data)
		if err != nil {
			failed++
			fmt.Fprintf(out, "✗ %s: %v\n", fileID, err)
			continue
		}
		fmt.Fprintf(out, "✓ %s → %s\n", fileID, dest)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d fetches failed", failed, len(fileIDs))
	}
	return nil
}

// fetchOne waits for a reply, giving up early when the real-time loop stops.
func fetchOne(ctx context.Context, client fetcher, loop *loopState, fileID string) (*models.FileData, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type reply struct {
		data *models.FileData
		err  error
	}
	replies := make(chan reply, 1)
	go func() {
		data, err := client.Fetch(ctx, fileID)
		replies <- reply{data, err}
	}()

	select {
	case r := <-replies:
		if errors.Is(r.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("no reply from server: %w", r.err)
		}
		return r.data, r.err
	case <-loop.done:
		return nil, fmt.Errorf("real-time channel: %w", loop.err)
	}
}

// saveFileData decodes a file_data payload into dir (the Downloads directory
// when empty). The server-supplied name is reduced to its base name.
func saveFileData(dir string, data *models.FileData) (string, error) {
	content, err := data.Bytes()
	if err != nil {
		return "", fmt.Errorf("invalid file content: %w", err)
	}

	if dir == "" {
		dir = config.DownloadDirectory()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	dest := filepath.Join(dir, safeFilename(data.Filename, data.FileID))
	if err := os.WriteFile(dest, content, 0644); err != nil {
		if localfs.IsDiskFullError(err) {
			return "", fmt.Errorf("disk full writing %s: %w", dest, err)
		}
		return "", err
	}
	return dest, nil
}

// safeFilename strips directory components from a server-supplied name.
func safeFilename(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return fallback
	}
	return name
}
