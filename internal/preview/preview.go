// Package preview shows a stored file the way the web page's preview pane
// does: text and code inline, media and PDFs handed to the system viewer.
package preview

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/browser"

	"github.com/sharedrop/sharedrop/internal/api"
	"github.com/sharedrop/sharedrop/internal/models"
	"github.com/sharedrop/sharedrop/internal/progress"
)

// Fetcher is the part of the API client a preview needs.
type Fetcher interface {
	GetFileInfo(ctx context.Context, fileID string) (*models.FileInfo, error)
	GetPreview(ctx context.Context, fileID, kind string) (*api.Preview, error)
}

// ResolveKind maps file-info to the preview kind the server can serve.
// Documents are previewable only as PDFs; archives, executables and other
// files are not previewable.
func ResolveKind(info *models.FileInfo) (string, error) {
	switch info.Type {
	case models.TypeText, models.TypeCode, models.TypeImage, models.TypeVideo, models.TypeAudio:
		return info.Type, nil
	case models.TypeDocument:
		if strings.EqualFold(info.MimeType, "application/pdf") || strings.EqualFold(filepath.Ext(info.Name), ".pdf") {
			return models.TypePDF, nil
		}
	}
	return "", fmt.Errorf("%w for %s files", api.ErrPreviewUnavailable, info.Type)
}

// Options control where a preview goes.
type Options struct {
	Kind     string    // preview kind; looked up via file-info when empty
	Output   string    // destination for binary previews (file or directory); temp file when empty
	Open     bool      // open binary previews with the system viewer
	Stdout   io.Writer // text and code previews are written here
	Reporter progress.Reporter

	// Opener opens a saved preview; defaults to browser.OpenFile.
	Opener func(path string) error
}

// Result describes what Run produced.
type Result struct {
	Kind string
	Path string // saved file for binary previews
	Info *models.FileInfo
}

// Run fetches the preview of fileID and delivers it according to opts.
func Run(ctx context.Context, f Fetcher, fileID string, opts Options) (*Result, error) {
	res := &Result{Kind: opts.Kind}
	if res.Kind == "" {
		info, err := f.GetFileInfo(ctx, fileID)
		if err != nil {
			return nil, err
		}
		res.Info = info
		if res.Kind, err = ResolveKind(info); err != nil {
			return nil, err
		}
	}

	p, err := f.GetPreview(ctx, fileID, res.Kind)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	if p.Body == nil {
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		text := p.Text
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		if _, err := io.WriteString(out, text); err != nil {
			return nil, err
		}
		if res.Info == nil {
			res.Info = p.Info
		}
		return res, nil
	}

	dest, err := destination(opts.Output, p)
	if err != nil {
		return nil, err
	}
	if err := save(dest, p, opts.Reporter); err != nil {
		return nil, err
	}
	res.Path = dest

	if opts.Open {
		open := opts.Opener
		if open == nil {
			open = browser.OpenFile
		}
		if err := open(dest); err != nil {
			return res, fmt.Errorf("failed to open %s: %w", dest, err)
		}
	}
	return res, nil
}

// destination picks the file a binary preview is saved to.
func destination(output string, p *api.Preview) (string, error) {
	if output != "" {
		if info, err := os.Stat(output); err == nil && info.IsDir() {
			return filepath.Join(output, p.Filename), nil
		}
		return output, nil
	}

	ext := filepath.Ext(p.Filename)
	if ext == "" && p.MimeType != "" {
		if exts, err := mime.ExtensionsByType(p.MimeType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	tmp, err := os.CreateTemp("", "sharedrop-preview-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create preview file: %w", err)
	}
	name := tmp.Name()
	tmp.Close()
	return name, nil
}

func save(dest string, p *api.Preview, reporter progress.Reporter) error {
	if reporter == nil {
		reporter = progress.NewNoOpProgress()
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := progress.Copy(f, p.Body, p.Size, "preview "+p.Filename, reporter); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to save preview: %w", err)
	}
	return f.Close()
}
