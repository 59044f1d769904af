// Package table keeps the client-side list of files on the server, the way
// the web page's file grid does, and renders it for the terminal.
package table

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"

	"github.com/sharedrop/sharedrop/internal/events"
	"github.com/sharedrop/sharedrop/internal/models"
)

// icons mirrors the server's type-to-icon table with terminal glyphs.
var icons = map[string]string{
	models.TypeImage:      "🖼",
	models.TypeVideo:      "🎬",
	models.TypeAudio:      "🎵",
	models.TypeDocument:   "📄",
	models.TypeCode:       "💻",
	models.TypeText:       "📝",
	models.TypeArchive:    "📦",
	models.TypeExecutable: "⚙",
	models.TypeFolder:     "📁",
	models.TypeOther:      "📎",
}

// Icon returns the glyph for a server file type. Unknown types get the
// generic file glyph.
func Icon(fileType string) string {
	if icon, ok := icons[fileType]; ok {
		return icon
	}
	return icons[models.TypeOther]
}

// Row is one file as announced by file_available.
type Row struct {
	models.FileAvailable
	seq int
}

// FileTable is a concurrency-safe set of rows keyed by file id, kept in
// arrival order.
type FileTable struct {
	mu   sync.Mutex
	rows map[string]Row
	next int
}

// New creates an empty table.
func New() *FileTable {
	return &FileTable{rows: make(map[string]Row)}
}

// Add inserts or replaces the row for f.FileID. A replaced row keeps its position.
func (t *FileTable) Add(f models.FileAvailable) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.rows[f.FileID]; ok {
		t.rows[f.FileID] = Row{FileAvailable: f, seq: existing.seq}
		return
	}
	t.rows[f.FileID] = Row{FileAvailable: f, seq: t.next}
	t.next++
}

// Remove deletes the row for fileID and reports whether it existed.
func (t *FileTable) Remove(fileID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[fileID]; !ok {
		return false
	}
	delete(t.rows, fileID)
	return true
}

// Reset empties the table. Called on connect, before the server replays its files.
func (t *FileTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = make(map[string]Row)
	t.next = 0
}

// Len returns the number of rows.
func (t *FileTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Rows returns a snapshot in arrival order.
func (t *FileTable) Rows() []models.FileAvailable {
	t.mu.Lock()
	rows := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		rows = append(rows, r)
	}
	t.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]models.FileAvailable, len(rows))
	for i, r := range rows {
		out[i] = r.FileAvailable
	}
	return out
}

// Apply updates the table from a real-time event and reports whether it changed.
func (t *FileTable) Apply(ev events.Event) bool {
	switch e := ev.(type) {
	case *events.FileAvailableEvent:
		t.Add(e.File)
		return true
	case *events.FileDeletedEvent:
		return t.Remove(e.FileID)
	case *events.ConnectionEvent:
		if e.Type() == events.EventConnected {
			t.Reset()
			return true
		}
	}
	return false
}

// Render writes the table with aligned columns.
func (t *FileTable) Render(w io.Writer) error {
	rows := t.Rows()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSIZE\tDEVICE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\t%s\n",
			r.FileID, Icon(r.FileType), r.Filename, r.FileType, r.Size, models.DeviceLabel(r.DeviceInfo))
	}
	if len(rows) == 0 {
		fmt.Fprintln(tw, "(no files)\t\t\t\t")
	}
	return tw.Flush()
}
