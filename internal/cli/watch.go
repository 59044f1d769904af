package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bep/debounce"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sharedrop/sharedrop/internal/api"
	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/events"
	"github.com/sharedrop/sharedrop/internal/logging"
	"github.com/sharedrop/sharedrop/internal/models"
	"github.com/sharedrop/sharedrop/internal/realtime"
	"github.com/sharedrop/sharedrop/internal/table"
)

func newWatchCmd() *cobra.Command {
	var saveDir string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the live file table",
		Long: `Connect to the server's real-time channel and keep a table of shared
files up to date. The table is rebuilt from the server's snapshot on every
(re)connect, rows are added as files become available and removed when they
are deleted.

Files pushed to this session (file_data replies) are saved to --save-dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			apiClient, err := getAPIClient()
			if err != nil {
				return err
			}

			session, err := newWatchSession(apiClient, logger, cmd.OutOrStdout(), saveDir)
			if err != nil {
				return err
			}
			return session.Run(GetContext())
		},
	}

	cmd.Flags().StringVarP(&saveDir, "save-dir", "o", "", "Directory for files received over the real-time channel (default: Downloads)")

	return cmd
}

// watchSession renders the live table from real-time events.
type watchSession struct {
	client  *realtime.Client
	bus     *events.EventBus
	table   *table.FileTable
	logger  *logging.Logger
	saveDir string

	mu     sync.Mutex // serialises writes to out
	saves  sync.WaitGroup
	out    io.Writer
	clear  bool // redraw in place on a terminal
	render func(f func())
}

func newWatchSession(apiClient *api.Client, logger *logging.Logger, out io.Writer, saveDir string) (*watchSession, error) {
	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	client, err := realtime.NewClient(apiClient.BaseURL(), apiClient.HTTPClient(), bus, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create real-time client: %w", err)
	}

	clear := false
	if f, ok := out.(*os.File); ok {
		clear = term.IsTerminal(int(f.Fd()))
	}

	return &watchSession{
		client:  client,
		bus:     bus,
		table:   table.New(),
		logger:  logger,
		saveDir: saveDir,
		out:     out,
		clear:   clear,
		render:  debounce.New(constants.TableRenderDelay),
	}, nil
}

// Run keeps the session open until ctx is cancelled or the connection fails
// for good.
func (w *watchSession) Run(ctx context.Context) error {
	// Table state must not lose events; the socket reader waits for us instead.
	sub := w.bus.SubscribeReliable()
	defer w.saves.Wait()
	defer w.bus.Close()

	w.logger.Info().Str("url", w.client.URL()).Msg("Connecting to real-time channel")

	done := make(chan error, 1)
	go func() { done <- w.client.Run(ctx) }()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return <-done
			}
			w.handle(ev)
		case err := <-done:
			if err != nil {
				return fmt.Errorf("real-time channel: %w", err)
			}
			return nil
		}
	}
}

func (w *watchSession) handle(ev events.Event) {
	if w.table.Apply(ev) {
		w.render(w.draw)
	}

	switch e := ev.(type) {
	case *events.ConnectionEvent:
		if e.Type() == events.EventConnected {
			w.logger.Debug().Str("sid", e.SessionID).Msg("Real-time channel connected")
		} else if e.Err != nil {
			w.logger.Debug().Err(e.Err).Msg("Real-time channel disconnected")
		}
	case *events.FileErrorEvent:
		w.printf("✗ %s\n", e.Message)
	case *events.FileDataEvent:
		w.saves.Add(1)
		go func(data models.FileData) {
			defer w.saves.Done()
			dest, err := saveFileData(w.saveDir, &data)
			if err != nil {
				w.printf("✗ %s: %v\n", data.Filename, err)
				return
			}
			w.printf("✓ %s → %s\n", data.Filename, dest)
		}(e.Data)
	}
}

func (w *watchSession) draw() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.clear {
		fmt.Fprint(w.out, "\033[H\033[2J")
	}
	if err := w.table.Render(w.out); err != nil {
		w.logger.Warn().Err(err).Msg("failed to render file table")
	}
	fmt.Fprintf(w.out, "%d file(s)\n", w.table.Len())
}

func (w *watchSession) printf(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}
