package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sharedrop/sharedrop/internal/models"
)

// scriptedFetcher answers from data and fails the real-time loop when asked
// for the id in dropOn.
type scriptedFetcher struct {
	mu        sync.Mutex
	data      map[string]models.FileData
	dropOn    string
	runErr    chan error
	requested []string
}

func (f *scriptedFetcher) Fetch(ctx context.Context, fileID string) (*models.FileData, error) {
	f.mu.Lock()
	f.requested = append(f.requested, fileID)
	f.mu.Unlock()

	if fileID == f.dropOn {
		f.runErr <- errors.New("websocket: close 1006")
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d, ok := f.data[fileID]; ok {
		return &d, nil
	}
	return nil, errors.New("File not found")
}

func TestExecuteFetch(t *testing.T) {
	dir := t.TempDir()
	runErr := make(chan error, 1)
	f := &scriptedFetcher{
		data:   map[string]models.FileData{"a": {FileID: "a", Filename: "a.txt", Content: "aGk="}},
		runErr: runErr,
	}

	var out bytes.Buffer
	err := executeFetch(context.Background(), []string{"a", "nope"}, f, watchLoop(runErr), dir, time.Second, &out)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 fetches failed") {
		t.Fatalf("executeFetch error = %v", err)
	}
	if got, _ := os.ReadFile(filepath.Join(dir, "a.txt")); string(got) != "hi" {
		t.Errorf("a.txt = %q, want hi", got)
	}
	if !strings.Contains(out.String(), "✗ nope: File not found") {
		t.Errorf("expected failure line, got:\n%s", out.String())
	}
}

func TestExecuteFetchStopsWhenLoopEnds(t *testing.T) {
	dir := t.TempDir()
	runErr := make(chan error, 1)
	f := &scriptedFetcher{
		data: map[string]models.FileData{
			"a": {FileID: "a", Filename: "a.txt", Content: "aGk="},
			"c": {FileID: "c", Filename: "c.txt", Content: "aGk="},
		},
		dropOn: "b",
		runErr: runErr,
	}

	var out bytes.Buffer
	start := time.Now()
	err := executeFetch(context.Background(), []string{"a", "b", "c", "d"}, f, watchLoop(runErr), dir, 5*time.Second, &out)
	if err == nil || !strings.Contains(err.Error(), "close 1006") {
		t.Fatalf("executeFetch error = %v, want the loop error", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("fetch waited for the reply timeout after the loop ended")
	}

	f.mu.Lock()
	requested := strings.Join(f.requested, ",")
	f.mu.Unlock()
	if requested != "a,b" {
		t.Errorf("requested = %s, want a,b", requested)
	}
	if !strings.Contains(out.String(), "✗ b: real-time channel: websocket: close 1006") {
		t.Errorf("expected channel failure for b, got:\n%s", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "c.txt")); !os.IsNotExist(err) {
		t.Error("no fetch should run after the loop ended")
	}
}
