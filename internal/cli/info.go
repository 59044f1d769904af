package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/models"
	"github.com/sharedrop/sharedrop/internal/table"
)

func newInfoCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info <file-id>",
		Short: "Show file metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := getAPIClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(GetContext(), constants.APIContextTimeout)
			defer cancel()

			info, err := apiClient.GetFileInfo(ctx, args[0])
			if err != nil {
				return describeAPIError(args[0], err)
			}
			return printFileInfo(cmd.OutOrStdout(), args[0], info, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON metadata")

	return cmd
}

func printFileInfo(w io.Writer, fileID string, info *models.FileInfo, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	fmt.Fprintf(w, "%s %s\n", table.Icon(info.Type), info.Name)
	fmt.Fprintf(w, "  ID:      %s\n", fileID)
	fmt.Fprintf(w, "  Type:    %s\n", info.Type)
	if info.MimeType != "" {
		fmt.Fprintf(w, "  MIME:    %s\n", info.MimeType)
	}
	fmt.Fprintf(w, "  Size:    %s\n", info.Size)
	fmt.Fprintf(w, "  Created: %s\n", info.Created)
	fmt.Fprintf(w, "  Device:  %s\n", models.DeviceLabel(info.DeviceInfo))
	return nil
}
