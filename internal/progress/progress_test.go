package progress

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path string
		max  int
		want string
	}{
		{"file.txt", 3, "file.txt"},
		{"a/b/file.txt", 3, "a/b/file.txt"},
		{"a/b/c/d/file.txt", 3, "…/c/d/file.txt"},
		{"a/b/c/file.txt", 2, "…/c/file.txt"},
	}
	for _, tt := range tests {
		if got := truncatePath(tt.path, tt.max); got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.max, got, tt.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0.00 B"},
		{512, "512.00 B"},
		{1536, "1.50 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.size); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestUploadUINonTerminal(t *testing.T) {
	var out bytes.Buffer
	ui := NewUploadUIWithOutput(2, "share.local", &out, false)

	first := ui.Started("docs/a.txt", 10)
	first.Progress(5, 10)
	first.Progress(10, 10)
	first.Complete("fid-1", nil)

	second := ui.Started("docs/b.txt", 4)
	second.Complete("", errors.New("HTTP 500"))
	ui.Wait()

	text := out.String()
	for _, want := range []string{
		"Uploading [1/2]: docs/a.txt",
		"Uploading [2/2]: docs/b.txt",
		"✓ docs/a.txt → share.local (FileID: fid-1",
		"✗ docs/b.txt → share.local: HTTP 500",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	completed, failed := ui.Counts()
	if completed != 2 || failed != 1 {
		t.Errorf("Counts() = %d, %d; want 2, 1", completed, failed)
	}
	if ui.Writer() != &out {
		t.Error("non-terminal writer should be the plain output")
	}
}

func TestDownloadUINonTerminal(t *testing.T) {
	var out bytes.Buffer
	ui := NewDownloadUIWithOutput(1, &out, false)

	bar := ui.AddFileBar("fid-9", "/tmp/out/report.pdf", -1)
	n, err := io.Copy(io.Discard, bar.Reader(strings.NewReader("hello world")))
	if err != nil || n != 11 {
		t.Fatalf("copy = %d, %v", n, err)
	}
	bar.Complete(nil)
	ui.Wait()

	text := out.String()
	if !strings.Contains(text, "(unknown size) ← fid-9") {
		t.Errorf("start line should report unknown size:\n%s", text)
	}
	if !strings.Contains(text, "✓ out/report.pdf ← fid-9 (11.00 B") {
		t.Errorf("completion line should report bytes read:\n%s", text)
	}
}

type recordingReporter struct {
	started  int64
	last     int64
	finished bool
	err      error
}

func (r *recordingReporter) Start(total int64, _ string) { r.started = total }
func (r *recordingReporter) Update(current int64)        { r.last = current }
func (r *recordingReporter) Finish()                     { r.finished = true }
func (r *recordingReporter) Error(err error)             { r.err = err }

func TestCopyReportsProgress(t *testing.T) {
	rep := &recordingReporter{}
	var dst bytes.Buffer

	n, err := Copy(&dst, strings.NewReader("abcdef"), 6, "fetch", rep)
	if err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if n != 6 || dst.String() != "abcdef" {
		t.Errorf("copied %d bytes %q", n, dst.String())
	}
	if rep.started != 6 || rep.last != 6 || !rep.finished {
		t.Errorf("unexpected reporter state %+v", rep)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestCopyReportsError(t *testing.T) {
	rep := &recordingReporter{}
	if _, err := Copy(io.Discard, failingReader{}, 10, "fetch", rep); err == nil {
		t.Fatal("expected error")
	}
	if rep.err == nil || rep.finished {
		t.Errorf("reporter should see the error and not finish: %+v", rep)
	}
}
