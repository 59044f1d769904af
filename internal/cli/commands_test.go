package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sharedrop/sharedrop/internal/api"
	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/logging"
	"github.com/sharedrop/sharedrop/internal/models"
)

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	AddCommands(root)

	expected := []string{"upload", "dropzone", "watch", "info", "preview", "download", "fetch", "delete", "config", "completion"}
	found := make(map[string]bool)
	for _, sub := range root.Commands() {
		found[sub.Name()] = true
	}
	for _, name := range expected {
		if !found[name] {
			t.Errorf("Subcommand '%s' not found", name)
		}
	}

	for _, flag := range []string{"config", "server", "device-name", "verbose", "debug"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("--%s persistent flag not found", flag)
		}
	}
}

func TestCommandFlags(t *testing.T) {
	cases := map[string][]string{
		"upload":   {"flat", "max-concurrent", "include-hidden", "watch"},
		"dropzone": {"flat", "max-concurrent", "include-hidden", "include-existing"},
		"watch":    {"save-dir"},
		"info":     {"json"},
		"preview":  {"kind", "output", "open"},
		"download": {"output", "max-concurrent", "force"},
		"fetch":    {"output", "timeout"},
		"delete":   {"yes"},
	}

	root := NewRootCmd()
	AddCommands(root)
	for _, sub := range root.Commands() {
		flags, ok := cases[sub.Name()]
		if !ok {
			continue
		}
		t.Run(sub.Name(), func(t *testing.T) {
			if sub.Short == "" {
				t.Error("Short description is empty")
			}
			if sub.RunE == nil {
				t.Error("RunE function is nil")
			}
			for _, f := range flags {
				if sub.Flags().Lookup(f) == nil {
					t.Errorf("--%s flag not found", f)
				}
			}
		})
	}
}

func TestUploadFlagsValidate(t *testing.T) {
	tests := []struct {
		value   int
		wantErr bool
	}{
		{0, false}, // use config
		{1, false},
		{10, false},
		{11, true},
		{-1, true},
	}
	for _, tt := range tests {
		f := uploadFlags{maxConcurrent: tt.value}
		if err := f.validate(); (err != nil) != tt.wantErr {
			t.Errorf("validate(%d) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false}, // EOF
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := confirm(bufio.NewReader(strings.NewReader(tt.input)), &out, "Delete x?")
		if err != nil {
			t.Fatalf("confirm(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Delete x? [y/N]") {
			t.Errorf("prompt not written: %q", out.String())
		}
	}
}

type fakeDeleter struct {
	mu      sync.Mutex
	deleted []string
	device  config.DeviceInfo
	fail    map[string]bool
}

func (f *fakeDeleter) Delete(ctx context.Context, fileID string, device config.DeviceInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.device = device
	if f.fail[fileID] {
		return fmt.Errorf("%w: %w", api.ErrDeleteFailed, &api.StatusError{Op: "delete", Code: 404, Message: "File not found"})
	}
	f.deleted = append(f.deleted, fileID)
	return nil
}

func TestExecuteDelete(t *testing.T) {
	device := config.DeviceInfo{Name: "lab-pc", Platform: "linux/amd64"}

	t.Run("confirmation per file", func(t *testing.T) {
		d := &fakeDeleter{}
		var out bytes.Buffer
		err := executeDelete(context.Background(), []string{"a", "b", "c"}, false, d, device,
			strings.NewReader("y\nn\nyes\n"), &out, logging.NewNopLogger())
		if err != nil {
			t.Fatalf("executeDelete failed: %v", err)
		}
		if strings.Join(d.deleted, ",") != "a,c" {
			t.Errorf("deleted = %v, want [a c]", d.deleted)
		}
		if d.device != device {
			t.Errorf("device not passed through: %+v", d.device)
		}
		if !strings.Contains(out.String(), "Skipped b") {
			t.Errorf("expected skip line, got:\n%s", out.String())
		}
	})

	t.Run("yes skips prompts and reports failures", func(t *testing.T) {
		d := &fakeDeleter{fail: map[string]bool{"b": true}}
		var out bytes.Buffer
		err := executeDelete(context.Background(), []string{"a", "b"}, true, d, device,
			strings.NewReader(""), &out, logging.NewNopLogger())
		if err == nil {
			t.Fatal("expected error for failed delete")
		}
		if strings.Contains(out.String(), "[y/N]") {
			t.Error("--yes must not prompt")
		}
		if len(d.deleted) != 1 || d.deleted[0] != "a" {
			t.Errorf("deleted = %v, want [a]", d.deleted)
		}
		if !strings.Contains(out.String(), "✗ b: file b not found") {
			t.Errorf("expected not-found line, got:\n%s", out.String())
		}
	})
}

func TestDescribeAPIError(t *testing.T) {
	badRequest := &api.StatusError{Op: "info", Code: 400, Message: "bad id"}
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", &api.StatusError{Op: "info", Code: 404}, "file f1 not found"},
		{"wrapped not found", fmt.Errorf("%w: %w", api.ErrDeleteFailed, &api.StatusError{Op: "delete", Code: 404}), "file f1 not found"},
		{"transport", &api.TransportError{Op: "info", Err: errors.New("connection refused")}, "server unreachable: info: request failed: connection refused"},
		{"server error", &api.StatusError{Op: "info", Code: 502, Message: "bad gateway"}, "server error for f1"},
		{"client error", badRequest, badRequest.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeAPIError("f1", tt.err)
			if got == nil || !strings.HasPrefix(got.Error(), tt.want) {
				t.Errorf("describeAPIError() = %v, want prefix %q", got, tt.want)
			}
			if api.IsTransportError(tt.err) && !errors.Is(got, tt.err) {
				t.Error("transport error should stay wrapped")
			}
		})
	}
	if err := describeAPIError("f1", nil); err != nil {
		t.Errorf("describeAPIError(nil) = %v", err)
	}
}

type fakeDownloader struct {
	files map[string]string
	names map[string]string // file id -> served filename, default <id>.txt
}

func (f *fakeDownloader) Download(ctx context.Context, fileID string) (*api.Download, error) {
	content, ok := f.files[fileID]
	if !ok {
		return nil, &api.StatusError{Op: "download", Code: 404, Message: "File not found"}
	}
	name := fileID + ".txt"
	if n, ok := f.names[fileID]; ok {
		name = n
	}
	return &api.Download{
		Body:     io.NopCloser(strings.NewReader(content)),
		Filename: name,
		Size:     int64(len(content)),
	}, nil
}

func TestExecuteDownload(t *testing.T) {
	dir := t.TempDir()
	client := &fakeDownloader{files: map[string]string{"a": "alpha", "b": "bravo"}}

	if err := executeDownload(context.Background(), []string{"a", "b"}, dir, 2, false, client, logging.NewNopLogger()); err != nil {
		t.Fatalf("executeDownload failed: %v", err)
	}
	for id, want := range client.files {
		got, err := os.ReadFile(filepath.Join(dir, id+".txt"))
		if err != nil {
			t.Fatalf("missing download %s: %v", id, err)
		}
		if string(got) != want {
			t.Errorf("%s content = %q, want %q", id, got, want)
		}
	}

	// Existing files are kept unless forced
	err := executeDownload(context.Background(), []string{"a"}, dir, 1, false, client, logging.NewNopLogger())
	if err == nil {
		t.Error("expected error when the target exists")
	}
	client.files["a"] = "replaced"
	if err := executeDownload(context.Background(), []string{"a"}, dir, 1, true, client, logging.NewNopLogger()); err != nil {
		t.Fatalf("forced download failed: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "a.txt"))
	if string(got) != "replaced" {
		t.Errorf("forced download content = %q", got)
	}

	if err := executeDownload(context.Background(), []string{"missing"}, dir, 1, false, client, logging.NewNopLogger()); err == nil {
		t.Error("expected error for unknown file id")
	}
	if _, err := os.Stat(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Error("failed download should not leave a file behind")
	}
}

func TestExecuteDownloadSameFilename(t *testing.T) {
	dir := t.TempDir()
	client := &fakeDownloader{
		files: map[string]string{"a": strings.Repeat("a", 64<<10), "b": strings.Repeat("b", 64<<10)},
		names: map[string]string{"a": "report.pdf", "b": "report.pdf"},
	}

	err := executeDownload(context.Background(), []string{"a", "b"}, dir, 2, true, client, logging.NewNopLogger())
	if err == nil {
		t.Fatal("expected one download to be refused")
	}

	got, err := os.ReadFile(filepath.Join(dir, "report.pdf"))
	if err != nil {
		t.Fatalf("report.pdf missing: %v", err)
	}
	if string(got) != client.files["a"] && string(got) != client.files["b"] {
		t.Errorf("report.pdf mixes both downloads (%d bytes)", len(got))
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want only report.pdf", names)
	}
}

func TestTargetsClaim(t *testing.T) {
	var tg targets
	if !tg.claim("/tmp/x", "a") {
		t.Fatal("first claim should succeed")
	}
	if tg.claim("/tmp/x", "b") {
		t.Error("second claim of the same path should fail")
	}
	if !tg.claim("/tmp/y", "b") {
		t.Error("a different path should be free")
	}
}

func TestWriteFileRemovesPartialOnError(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	boom := errors.New("connection reset")

	err := writeFile(dest, io.MultiReader(strings.NewReader("half"), errReader{boom}), false)
	if !errors.Is(err, boom) {
		t.Fatalf("writeFile error = %v, want %v", err, boom)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination should not exist after a failed write")
	}
	if left, _ := filepath.Glob(filepath.Join(filepath.Dir(dest), "*.part")); len(left) != 0 {
		t.Errorf("partial files left behind: %v", left)
	}
}

func TestWriteFileTempNamesAreUnique(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "same.bin")

	// Two writers to the same name must not share a temporary file.
	pr, pw := io.Pipe()
	first := make(chan error, 1)
	go func() { first <- writeFile(dest, pr, true) }()
	if _, err := pw.Write([]byte("first-")); err != nil {
		t.Fatal(err)
	}

	if err := writeFile(dest, strings.NewReader("second"), true); err != nil {
		t.Fatalf("second writeFile: %v", err)
	}
	pw.Write([]byte("done"))
	pw.Close()
	if err := <-first; err != nil {
		t.Fatalf("first writeFile: %v", err)
	}

	got, _ := os.ReadFile(dest)
	if string(got) != "first-done" {
		t.Errorf("content = %q, want %q", got, "first-done")
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestSaveFileData(t *testing.T) {
	dir := t.TempDir()

	dest, err := saveFileData(dir, &models.FileData{
		FileID:   "f1",
		Filename: "../../etc/notes.txt",
		Content:  "aGVsbG8=", // "hello"
	})
	if err != nil {
		t.Fatalf("saveFileData failed: %v", err)
	}
	if dest != filepath.Join(dir, "notes.txt") {
		t.Errorf("dest = %s, want file inside %s", dest, dir)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "hello" {
		t.Errorf("content = %q, want hello", got)
	}

	if _, err := saveFileData(dir, &models.FileData{FileID: "f2", Filename: "x", Content: "%%%"}); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"report.pdf", "report.pdf"},
		{"a/b/c.txt", "c.txt"},
		{`dir\file.txt`, "file.txt"},
		{"", "fallback"},
		{"..", "fallback"},
		{"/", "fallback"},
	}
	for _, tt := range tests {
		if got := safeFilename(tt.name, "fallback"); got != tt.want {
			t.Errorf("safeFilename(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPrintFileInfo(t *testing.T) {
	info := &models.FileInfo{
		Name:       "report.pdf",
		Type:       "document",
		MimeType:   "application/pdf",
		Size:       "1.50 KB",
		Created:    "2026-10-14 09:30:00",
		DeviceInfo: `{"name":"lab-pc","platform":"linux/amd64"}`,
	}

	var out bytes.Buffer
	if err := printFileInfo(&out, "f1", info, false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"report.pdf", "f1", "application/pdf", "1.50 KB", "lab-pc"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := printFileInfo(&out, "f1", info, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"mime_type": "application/pdf"`) {
		t.Errorf("unexpected JSON output:\n%s", out.String())
	}
}

func TestValidPreviewKind(t *testing.T) {
	for _, k := range []string{"text", "code", "image", "video", "audio", "pdf"} {
		if !validPreviewKind(k) {
			t.Errorf("%s should be a valid preview kind", k)
		}
	}
	for _, k := range []string{"document", "archive", ""} {
		if validPreviewKind(k) {
			t.Errorf("%q should not be a valid preview kind", k)
		}
	}
}
