// Package models holds the wire types exchanged with the share server.
package models

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// File type labels assigned by the server from the file extension or MIME type.
const (
	TypeImage      = "image"
	TypeVideo      = "video"
	TypeAudio      = "audio"
	TypeDocument   = "document"
	TypePDF        = "pdf" // preview kind only; the server reports PDFs as "document"
	TypeCode       = "code"
	TypeText       = "text"
	TypeArchive    = "archive"
	TypeExecutable = "executable"
	TypeFolder     = "folder"
	TypeOther      = "other"
)

// UploadResponse is the JSON body returned by POST /upload.
// Failures carry Error and either a non-200 status or Success=false.
type UploadResponse struct {
	Success  bool   `json:"success"`
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	Type     string `json:"type,omitempty"`
	Error    string `json:"error,omitempty"`
}

// FileInfo is returned by GET /file-info/{id}. Size is preformatted by the
// server ("1.50 KB").
type FileInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	MimeType   string `json:"mime_type,omitempty"`
	Size       string `json:"size"`
	Created    string `json:"created"`
	DeviceInfo string `json:"device_info"`
}

// PreviewContent is the JSON body of GET /preview/{id} for text and code files.
type PreviewContent struct {
	Content string    `json:"content"`
	Type    string    `json:"type"`
	Info    *FileInfo `json:"info,omitempty"`
}

// ErrorResponse is the JSON body the server sends with non-200 statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FileAvailable is pushed when a file is uploaded, and once per stored file
// when a real-time session connects.
type FileAvailable struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	Size       string `json:"size"`
	DeviceInfo string `json:"device_info"`
}

// FileDeleted is pushed after a successful delete.
type FileDeleted struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	DeviceInfo string `json:"device_info"`
}

// FileData answers a request_file event. Content is base64 encoded.
type FileData struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
	MimeType string `json:"mime_type"`
}

// Bytes decodes the transferred file content.
func (d FileData) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(d.Content)
}

// FileError answers a request_file event for an unknown id.
type FileError struct {
	Error string `json:"error"`
}

// FileRequest is the payload of the request_file event emitted by the client.
type FileRequest struct {
	FileID string `json:"file_id"`
}

// DeviceLabel renders the device_info string the server stored verbatim.
// Clients send a JSON object with a name; older clients sent plain text.
func DeviceLabel(deviceInfo string) string {
	s := strings.TrimSpace(deviceInfo)
	if s == "" {
		return "Unknown Device"
	}
	if strings.HasPrefix(s, "{") {
		var d struct {
			Name      string `json:"name"`
			Platform  string `json:"platform"`
			UserAgent string `json:"userAgent"`
		}
		if err := json.Unmarshal([]byte(s), &d); err == nil {
			switch {
			case d.Name != "" && d.Platform != "":
				return d.Name + " (" + d.Platform + ")"
			case d.Name != "":
				return d.Name
			case d.Platform != "":
				return d.Platform
			}
		}
	}
	return s
}
