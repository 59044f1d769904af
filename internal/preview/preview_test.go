package preview

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sharedrop/sharedrop/internal/api"
	"github.com/sharedrop/sharedrop/internal/models"
)

func TestResolveKind(t *testing.T) {
	tests := []struct {
		name    string
		info    models.FileInfo
		want    string
		wantErr bool
	}{
		{"text", models.FileInfo{Type: models.TypeText}, models.TypeText, false},
		{"code", models.FileInfo{Type: models.TypeCode}, models.TypeCode, false},
		{"image", models.FileInfo{Type: models.TypeImage}, models.TypeImage, false},
		{"video", models.FileInfo{Type: models.TypeVideo}, models.TypeVideo, false},
		{"audio", models.FileInfo{Type: models.TypeAudio}, models.TypeAudio, false},
		{"pdf by mime", models.FileInfo{Type: models.TypeDocument, MimeType: "application/pdf"}, models.TypePDF, false},
		{"pdf by name", models.FileInfo{Type: models.TypeDocument, Name: "Report.PDF"}, models.TypePDF, false},
		{"word document", models.FileInfo{Type: models.TypeDocument, Name: "a.docx"}, "", true},
		{"archive", models.FileInfo{Type: models.TypeArchive}, "", true},
		{"other", models.FileInfo{Type: models.TypeOther}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveKind(&tt.info)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, api.ErrPreviewUnavailable) {
				t.Errorf("error should wrap ErrPreviewUnavailable: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeFetcher struct {
	info      *models.FileInfo
	preview   *api.Preview
	infoCalls int
	gotKind   string
}

func (f *fakeFetcher) GetFileInfo(ctx context.Context, fileID string) (*models.FileInfo, error) {
	f.infoCalls++
	if f.info == nil {
		return nil, &api.StatusError{Op: "file-info", Code: 404, Message: "File not found"}
	}
	return f.info, nil
}

func (f *fakeFetcher) GetPreview(ctx context.Context, fileID, kind string) (*api.Preview, error) {
	f.gotKind = kind
	return f.preview, nil
}

func TestRunTextToStdout(t *testing.T) {
	f := &fakeFetcher{
		info:    &models.FileInfo{Name: "main.go", Type: models.TypeCode},
		preview: &api.Preview{Kind: models.TypeCode, Text: "package main"},
	}
	var out bytes.Buffer

	res, err := Run(context.Background(), f, "id1", Options{Stdout: &out})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.gotKind != models.TypeCode || res.Kind != models.TypeCode {
		t.Errorf("kind = %q / %q", f.gotKind, res.Kind)
	}
	if out.String() != "package main\n" {
		t.Errorf("stdout = %q", out.String())
	}
	if res.Path != "" {
		t.Errorf("text previews are not saved, got %q", res.Path)
	}
}

func TestRunExplicitKindSkipsFileInfo(t *testing.T) {
	f := &fakeFetcher{preview: &api.Preview{Kind: models.TypeText, Text: "hi\n"}}
	var out bytes.Buffer
	if _, err := Run(context.Background(), f, "id1", Options{Kind: models.TypeText, Stdout: &out}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.infoCalls != 0 {
		t.Errorf("file-info should not be fetched when the kind is given")
	}
	if out.String() != "hi\n" {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestRunBinarySavesAndOpens(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{
		info: &models.FileInfo{Name: "cat.png", Type: models.TypeImage},
		preview: &api.Preview{
			Kind:     models.TypeImage,
			Body:     io.NopCloser(strings.NewReader("PNGDATA")),
			Filename: "cat.png",
			MimeType: "image/png",
			Size:     7,
		},
	}

	var opened string
	res, err := Run(context.Background(), f, "id1", Options{
		Output: dir,
		Open:   true,
		Opener: func(path string) error { opened = path; return nil },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := filepath.Join(dir, "cat.png")
	if res.Path != want || opened != want {
		t.Errorf("saved to %q, opened %q, want %q", res.Path, opened, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "PNGDATA" {
		t.Errorf("saved content = %q (%v)", data, err)
	}
}

func TestRunBinaryToTempFile(t *testing.T) {
	f := &fakeFetcher{
		preview: &api.Preview{
			Kind:     models.TypePDF,
			Body:     io.NopCloser(strings.NewReader("%PDF-1.7")),
			Filename: "abc",
			MimeType: "application/pdf",
			Size:     -1,
		},
	}
	res, err := Run(context.Background(), f, "abc", Options{Kind: models.TypePDF})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer os.Remove(res.Path)

	if filepath.Ext(res.Path) != ".pdf" {
		t.Errorf("temp file should carry the MIME extension, got %q", res.Path)
	}
	if data, _ := os.ReadFile(res.Path); string(data) != "%PDF-1.7" {
		t.Errorf("saved content = %q", data)
	}
}

func TestRunUnpreviewable(t *testing.T) {
	f := &fakeFetcher{info: &models.FileInfo{Name: "x.zip", Type: models.TypeArchive}}
	if _, err := Run(context.Background(), f, "id", Options{}); !errors.Is(err, api.ErrPreviewUnavailable) {
		t.Errorf("Run() = %v, want ErrPreviewUnavailable", err)
	}
	if f.gotKind != "" {
		t.Error("preview must not be requested for unpreviewable files")
	}
}

func TestRunOpenFailure(t *testing.T) {
	f := &fakeFetcher{preview: &api.Preview{
		Kind: models.TypeAudio, Body: io.NopCloser(strings.NewReader("ID3")), Filename: "a.mp3", Size: 3,
	}}
	out := filepath.Join(t.TempDir(), "song.mp3")
	res, err := Run(context.Background(), f, "id", Options{
		Kind: models.TypeAudio, Output: out, Open: true,
		Opener: func(string) error { return errors.New("no viewer") },
	})
	if err == nil || res == nil || res.Path != out {
		t.Errorf("open failure should still report the saved path, got %v / %+v", err, res)
	}
}
