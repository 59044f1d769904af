package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/logging"
)

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <file-id> [file-id...]",
		Short: "Delete files from the server",
		Long: `Delete files by id. Other connected clients see the file disappear
from their tables. Each deletion is confirmed unless --yes is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			apiClient, err := getAPIClient()
			if err != nil {
				return err
			}

			return executeDelete(GetContext(), args, yes, apiClient, apiClient.GetConfig().Device,
				os.Stdin, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking for confirmation")

	return cmd
}

// deleter is the subset of *api.Client used by executeDelete.
type deleter interface {
	Delete(ctx context.Context, fileID string, device config.DeviceInfo) error
}

func executeDelete(ctx context.Context, fileIDs []string, yes bool, client deleter, device config.DeviceInfo, in io.Reader, out io.Writer, logger *logging.Logger) error {
	reader := bufio.NewReader(in)
	failed := 0
	for _, fileID := range fileIDs {
		if !yes {
			ok, err := confirm(reader, out, fmt.Sprintf("Delete %s?", fileID))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(out, "Skipped %s\n", fileID)
				continue
			}
		}

		opCtx, cancel := context.WithTimeout(ctx, constants.APIContextTimeout)
		err := describeAPIError(fileID, client.Delete(opCtx, fileID, device))
		cancel()
		if err != nil {
			failed++
			logger.Error().Err(err).Str("file_id", fileID).Msg("Delete failed")
			fmt.Fprintf(out, "✗ %s: %v\n", fileID, err)
			continue
		}
		fmt.Fprintf(out, "✓ Deleted %s\n", fileID)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d deletes failed", failed, len(fileIDs))
	}
	return nil
}
