package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"strconv"

	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/models"
	"github.com/sharedrop/sharedrop/internal/version"
)

// UploadRequest describes one POST /upload.
type UploadRequest struct {
	Content  io.Reader
	Size     int64 // content length in bytes, or -1 when unknown
	Filename string
	Path     string // relative path, sent as-is
	IsFolder bool
	Device   config.DeviceInfo

	// Progress, when set, is called as body bytes are handed to the transport.
	Progress func(sent, total int64)
}

// Upload sends one file. A non-200 status returns a *StatusError, a 200 whose
// JSON body reports success=false returns an *AppError, anything else is a
// success and the server's response (file_id when present) is returned.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*models.UploadResponse, error) {
	const op = "upload"

	body, contentType, contentLength, err := buildUploadBody(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.baseURL+"/upload", body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	httpReq.ContentLength = contentLength

	resp, err := c.do(c.transferClient, op, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}
	return parseUploadResponse(op, data)
}

func parseUploadResponse(op string, data []byte) (*models.UploadResponse, error) {
	var raw struct {
		Success  *bool  `json:"success"`
		FileID   string `json:"file_id"`
		Filename string `json:"filename"`
		Type     string `json:"type"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// Non-JSON 200 bodies are accepted as success
		return &models.UploadResponse{Success: true}, nil
	}
	if raw.Success != nil && !*raw.Success {
		return nil, &AppError{Op: op, Message: raw.Error}
	}
	return &models.UploadResponse{
		Success:  true,
		FileID:   raw.FileID,
		Filename: raw.Filename,
		Type:     raw.Type,
	}, nil
}

// buildUploadBody streams the file between a buffered multipart preamble and
// trailer so the exact Content-Length is known without buffering the content.
func buildUploadBody(req UploadRequest) (io.Reader, string, int64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"path", req.Path},
		{"isFolder", strconv.FormatBool(req.IsFolder)},
		{"device_info", req.Device.JSON()},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", 0, fmt.Errorf("writing %s field: %w", f[0], err)
		}
	}
	if _, err := mw.CreateFormFile("file", req.Filename); err != nil {
		return nil, "", 0, fmt.Errorf("writing file header: %w", err)
	}
	preamble := append([]byte(nil), buf.Bytes()...)

	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, "", 0, fmt.Errorf("writing trailer: %w", err)
	}
	trailer := append([]byte(nil), buf.Bytes()...)

	var content io.Reader = req.Content
	if req.Progress != nil {
		content = &progressReader{r: req.Content, total: req.Size, fn: req.Progress}
	}

	length := int64(-1)
	if req.Size >= 0 {
		length = int64(len(preamble)) + req.Size + int64(len(trailer))
	}

	body := io.MultiReader(bytes.NewReader(preamble), content, bytes.NewReader(trailer))
	return body, mw.FormDataContentType(), length, nil
}

// progressReader reports cumulative bytes read from the file content.
type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	fn    func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}
