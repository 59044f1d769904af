package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sharedrop/sharedrop/internal/api"
	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/logging"
	"github.com/sharedrop/sharedrop/internal/progress"
	"github.com/sharedrop/sharedrop/internal/realtime"
	"github.com/sharedrop/sharedrop/internal/upload"
)

// uploadFlags are shared by 'upload' and 'dropzone'.
type uploadFlags struct {
	flat          bool
	maxConcurrent int
	includeHidden bool
}

func (f *uploadFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.flat, "flat", false, "Send files by bare name without walking directories")
	cmd.Flags().IntVarP(&f.maxConcurrent, "max-concurrent", "m", 0,
		fmt.Sprintf("Maximum concurrent uploads per batch (%d-%d, default from config)", constants.MinMaxConcurrent, constants.MaxMaxConcurrent))
	cmd.Flags().BoolVar(&f.includeHidden, "include-hidden", false, "Include hidden files and directories")
}

func (f *uploadFlags) validate() error {
	if f.maxConcurrent != 0 && (f.maxConcurrent < constants.MinMaxConcurrent || f.maxConcurrent > constants.MaxMaxConcurrent) {
		return fmt.Errorf("--max-concurrent must be between %d and %d, got %d",
			constants.MinMaxConcurrent, constants.MaxMaxConcurrent, f.maxConcurrent)
	}
	return nil
}

func newUploadCmd() *cobra.Command {
	var flags uploadFlags
	var watch bool

	cmd := &cobra.Command{
		Use:   "upload <path> [path...]",
		Short: "Drop files and folders onto the server",
		Long: `Upload one drop: every argument is resolved into files (folders are
walked recursively, empty files are skipped) and sent as a single batch.
Arguments may be local paths, s3://bucket/prefix or az://container/prefix.

When the batch finishes, a summary is printed; with --watch the live file
table is shown and refreshed from the server after the batch.

Examples:
  sharedrop upload report.pdf photos/
  sharedrop upload s3://datasets/run-42/
  sharedrop upload --flat *.log
  sharedrop upload --watch build/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			if err := flags.validate(); err != nil {
				return err
			}

			apiClient, err := getAPIClient()
			if err != nil {
				return err
			}

			return executeUpload(GetContext(), args, flags, watch, apiClient, logger)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Show the live file table and keep watching after the batch")

	return cmd
}

// executeUpload runs one drop, optionally alongside a watch session whose
// snapshot is reloaded once the batch finishes.
func executeUpload(ctx context.Context, args []string, flags uploadFlags, watch bool, apiClient *api.Client, logger *logging.Logger) error {
	var session *watchSession
	var sessionDone chan error
	if watch {
		var err error
		session, err = newWatchSession(apiClient, logger, os.Stdout, "")
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		sessionDone = make(chan error, 1)
		go func() { sessionDone <- session.Run(ctx) }()
	}

	d := newDropper(apiClient, flags, logger, os.Stdout)
	if session != nil {
		d.realtime = session.client
	}

	result, err := d.Drop(ctx, args, true)
	if err != nil && len(result.Succeeded)+len(result.Failed) == 0 {
		return err
	}

	if session != nil {
		fmt.Fprintln(os.Stdout, "Watching for changes (Ctrl+C to stop)...")
		if err := <-sessionDone; err != nil {
			return err
		}
	}

	if n := len(result.Failed); n > 0 {
		return fmt.Errorf("%d of %d uploads failed", n, n+len(result.Succeeded))
	}
	return err
}

// dropper turns drops into batches. Each drop gets its own coordinator and
// progress UI, so drops may overlap.
type dropper struct {
	apiClient *api.Client
	flags     uploadFlags
	logger    *logging.Logger
	out       io.Writer

	// realtime, when set, is reconnected as the reload side effect so the
	// file table is rebuilt from the server's snapshot.
	realtime *realtime.Client
}

func newDropper(apiClient *api.Client, flags uploadFlags, logger *logging.Logger, out io.Writer) *dropper {
	return &dropper{apiClient: apiClient, flags: flags, logger: logger, out: out}
}

// Drop resolves args and uploads them as one batch, returning once the reload
// side effect has run. Traversal errors are reported and the files that did
// resolve are still sent; the joined traversal error is returned with the result.
// redirectLogs routes log lines above the progress bars for the duration of the batch.
func (d *dropper) Drop(ctx context.Context, args []string, redirectLogs bool) (upload.Result, error) {
	cfg := d.apiClient.GetConfig()

	opener := newSourceOpener(cfg, d.apiClient.HTTPClient(), sourceOptions{
		Flat:          d.flags.flat,
		IncludeHidden: d.flags.includeHidden || cfg.IncludeHidden,
	}, d.logger)

	items, resolveErr := opener.Items(ctx, args)
	if resolveErr != nil {
		if items == nil {
			return upload.Result{}, resolveErr
		}
		for _, err := range unwrapJoined(resolveErr) {
			d.logger.Warn().Err(err).Msg("skipped part of the drop")
		}
	}
	if len(items) == 0 {
		fmt.Fprintln(d.out, "Nothing to upload: no non-empty files found")
		return upload.Result{}, resolveErr
	}

	maxConcurrent := cfg.MaxConcurrent
	if d.flags.maxConcurrent > 0 {
		maxConcurrent = d.flags.maxConcurrent
	}

	ui := progress.NewUploadUIWithOutput(len(items), d.apiClient.BaseURL(), d.out, progress.StderrIsTerminal())
	if redirectLogs && ui.IsTerminal() {
		prev := d.logger.Output()
		d.logger.SetOutput(ui.Writer())
		defer d.logger.SetOutput(prev)
	}

	coord := upload.NewCoordinator(d.apiClient, upload.Options{
		Device:        cfg.Device,
		MaxConcurrent: maxConcurrent,
		Observer:      ui,
		Reloader:      d.reloader(),
		Logger:        d.logger,
	})

	batch := coord.SubmitBatch(ctx, items)
	batch.Wait()
	ui.Wait()
	<-batch.Reloaded()

	return batch.Result(), resolveErr
}

// reloader prints the batch summary and refreshes the live table when one is shown.
func (d *dropper) reloader() upload.Reloader {
	return upload.ReloadFunc(func(ctx context.Context, result upload.Result) {
		fmt.Fprintf(d.out, "Batch complete: %d uploaded, %d failed\n", len(result.Succeeded), len(result.Failed))
		for _, r := range result.Failed {
			fmt.Fprintf(d.out, "  ✗ %s: %v\n", r.Item.RelativePath, r.Err)
		}
		if d.realtime != nil {
			d.logger.Debug().Str("batch", result.BatchID).Msg("reloading file table")
			d.realtime.Reconnect()
		}
	})
}

// unwrapJoined flattens an errors.Join result.
func unwrapJoined(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}
