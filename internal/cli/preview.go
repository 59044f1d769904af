package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/models"
	"github.com/sharedrop/sharedrop/internal/preview"
	"github.com/sharedrop/sharedrop/internal/progress"
)

var previewKinds = []string{
	models.TypeText, models.TypeCode, models.TypeImage,
	models.TypeVideo, models.TypeAudio, models.TypePDF,
}

func newPreviewCmd() *cobra.Command {
	var kind, output string
	var open bool

	cmd := &cobra.Command{
		Use:   "preview <file-id>",
		Short: "Preview a file",
		Long: `Preview a file. Text and code are printed to stdout; images, video,
audio and PDFs are saved to --output (or a temporary file) and, with --open,
shown in the system viewer.

The kind is looked up from the file's metadata unless --kind is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			if kind != "" && !validPreviewKind(kind) {
				return fmt.Errorf("--kind must be one of %v, got %q", previewKinds, kind)
			}

			apiClient, err := getAPIClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(GetContext(), constants.PreviewTimeout)
			defer cancel()

			res, err := preview.Run(ctx, apiClient, args[0], preview.Options{
				Kind:     kind,
				Output:   output,
				Open:     open,
				Stdout:   cmd.OutOrStdout(),
				Reporter: progress.NewReporter(),
			})
			if err != nil {
				return err
			}

			logger.Debug().Str("file_id", args[0]).Str("kind", res.Kind).Msg("preview delivered")
			if res.Path != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s preview to %s\n", res.Kind, res.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Preview kind (text, code, image, video, audio, pdf)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "File or directory for binary previews")
	cmd.Flags().BoolVar(&open, "open", false, "Open binary previews with the system viewer")

	return cmd
}

func validPreviewKind(kind string) bool {
	for _, k := range previewKinds {
		if k == kind {
			return true
		}
	}
	return false
}
