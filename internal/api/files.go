package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	nethttp "net/http"
	"path"

	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/models"
	"github.com/sharedrop/sharedrop/internal/version"
)

// GetFileInfo fetches metadata for a stored file.
func (c *Client) GetFileInfo(ctx context.Context, fileID string) (*models.FileInfo, error) {
	resp, err := c.doGet(ctx, "file-info", c.endpoint("/file-info/", fileID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var info models.FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("file-info: failed to decode response: %w", err)
	}
	return &info, nil
}

// Preview is the result of GET /preview/{id}. Text and code kinds carry Text;
// every other kind carries a Body the caller must close.
type Preview struct {
	Kind     string
	Text     string
	Info     *models.FileInfo
	Body     io.ReadCloser
	MimeType string
	Filename string
	Size     int64 // -1 when the server sent no Content-Length
}

// Close releases the preview body, if any.
func (p *Preview) Close() error {
	if p.Body == nil {
		return nil
	}
	return p.Body.Close()
}

// GetPreview fetches preview content for a file of the given kind
// (image, video, audio, pdf, text or code).
func (c *Client) GetPreview(ctx context.Context, fileID, kind string) (*Preview, error) {
	switch kind {
	case models.TypeText, models.TypeCode,
		models.TypeImage, models.TypeVideo, models.TypeAudio, models.TypePDF:
	default:
		return nil, fmt.Errorf("%w: %s", ErrPreviewUnavailable, kind)
	}

	resp, err := c.doGet(ctx, "preview", c.endpoint("/preview/", fileID))
	if err != nil {
		return nil, err
	}

	if kind == models.TypeText || kind == models.TypeCode {
		defer resp.Body.Close()
		var pc models.PreviewContent
		if err := json.NewDecoder(resp.Body).Decode(&pc); err != nil {
			return nil, fmt.Errorf("preview: failed to decode response: %w", err)
		}
		return &Preview{Kind: kind, Text: pc.Content, Info: pc.Info, Size: int64(len(pc.Content))}, nil
	}

	return &Preview{
		Kind:     kind,
		Body:     resp.Body,
		MimeType: resp.Header.Get("Content-Type"),
		Filename: dispositionFilename(resp.Header.Get("Content-Disposition"), fileID),
		Size:     resp.ContentLength,
	}, nil
}

// Download is an open GET /download/{id} response. The caller must close Body.
type Download struct {
	Body     io.ReadCloser
	Filename string
	MimeType string
	Size     int64 // -1 when unknown
}

// Download opens the file body for streaming.
func (c *Client) Download(ctx context.Context, fileID string) (*Download, error) {
	resp, err := c.doGet(ctx, "download", c.endpoint("/download/", fileID))
	if err != nil {
		return nil, err
	}
	return &Download{
		Body:     resp.Body,
		Filename: dispositionFilename(resp.Header.Get("Content-Disposition"), fileID),
		MimeType: resp.Header.Get("Content-Type"),
		Size:     resp.ContentLength,
	}, nil
}

// Delete removes a file. The device is reported to other connected clients
// in the file_deleted event. Every failure wraps ErrDeleteFailed.
func (c *Client) Delete(ctx context.Context, fileID string, device config.DeviceInfo) error {
	const op = "delete"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("device_info", device.JSON()); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.endpoint("/delete/", fileID), &buf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.do(c.transferClient, op, req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// dispositionFilename extracts a safe base file name from a Content-Disposition
// header, falling back to the file id.
func dispositionFilename(header, fallback string) string {
	if header != "" {
		if _, params, err := mime.ParseMediaType(header); err == nil {
			if name := path.Base(params["filename"]); name != "" && name != "." && name != "/" && name != ".." {
				return name
			}
		}
	}
	return fallback
}
