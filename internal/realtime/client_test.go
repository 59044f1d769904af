package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sharedrop/sharedrop/internal/events"
	"github.com/sharedrop/sharedrop/internal/logging"
	"github.com/sharedrop/sharedrop/internal/models"
	"github.com/sharedrop/sharedrop/internal/table"
)

// fakeServer speaks just enough Engine.IO v4 / Socket.IO to exercise the client.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	files    []models.FileAvailable
	stored   map[string]models.FileData
	sendPing bool
	refuse   string // connect_error payload, when set

	// replayBeforeAck emits the file_available replay before the namespace
	// ack, the order python-socketio uses when the connect handler emits.
	replayBeforeAck bool

	connects atomic.Int32
	pongs    chan string
}

func newFakeServer(t *testing.T) *fakeServer {
	fs := &fakeServer{
		t:      t,
		stored: map[string]models.FileData{},
		pongs:  make(chan string, 4),
	}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/socket.io/" || r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
			nethttp.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		fs.serve(conn)
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) send(conn *websocket.Conn, frame string) bool {
	return conn.WriteMessage(websocket.TextMessage, []byte(frame)) == nil
}

func (fs *fakeServer) emit(conn *websocket.Conn, event string, payload interface{}) bool {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		fs.t.Errorf("encode: %v", err)
		return false
	}
	return fs.send(conn, frame)
}

func (fs *fakeServer) serve(conn *websocket.Conn) {
	n := fs.connects.Add(1)
	if !fs.send(conn, fmt.Sprintf(`0{"sid":"eio-%d","upgrades":[],"pingInterval":25000,"pingTimeout":20000}`, n)) {
		return
	}
	_, frame, err := conn.ReadMessage()
	if err != nil || string(frame) != "40" {
		fs.t.Errorf("expected namespace connect, got %q (%v)", frame, err)
		return
	}
	if fs.refuse != "" {
		fs.send(conn, "44"+fs.refuse)
		return
	}
	if fs.replayBeforeAck && !fs.replay(conn) {
		return
	}
	if !fs.send(conn, `40{"sid":"sock-1"}`) {
		return
	}
	if !fs.replayBeforeAck && !fs.replay(conn) {
		return
	}
	if fs.sendPing && !fs.send(conn, "2") {
		return
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s := string(frame)
		switch {
		case strings.HasPrefix(s, "3"):
			fs.pongs <- s
		case strings.HasPrefix(s, "42"):
			m, err := decodeMessage(s[1:])
			if err != nil || m.event != "request_file" {
				fs.t.Errorf("unexpected client event %q", s)
				continue
			}
			var req models.FileRequest
			_ = json.Unmarshal(m.data, &req)
			if d, ok := fs.stored[req.FileID]; ok {
				fs.emit(conn, "file_data", d)
			} else {
				fs.emit(conn, "file_error", models.FileError{Error: "File not found"})
			}
		}
	}
}

func (fs *fakeServer) replay(conn *websocket.Conn) bool {
	for _, f := range fs.files {
		if !fs.emit(conn, "file_available", f) {
			return false
		}
	}
	return true
}

func startClient(t *testing.T, fs *fakeServer) (*Client, *events.EventBus, chan error) {
	t.Helper()
	bus := events.NewEventBus(64)
	t.Cleanup(bus.Close)
	c, err := NewClient(fs.srv.URL, nil, bus, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	c.reconnectMin = 10 * time.Millisecond
	c.reconnectMax = 50 * time.Millisecond
	return c, bus, make(chan error, 1)
}

func run(c *Client, ctx context.Context, done chan<- error) {
	go func() { done <- c.Run(ctx) }()
}

func nextEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:5000", "ws://localhost:5000/socket.io/?EIO=4&transport=websocket", false},
		{"https://share.example.com/", "wss://share.example.com/socket.io/?EIO=4&transport=websocket", false},
		{"https://example.com/drop", "wss://example.com/drop/socket.io/?EIO=4&transport=websocket", false},
		{"ftp://example.com", "", true},
		{"http://", "", true},
	}
	for _, tt := range tests {
		got, err := websocketURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("websocketURL(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("websocketURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientReceivesReplayOnConnect(t *testing.T) {
	fs := newFakeServer(t)
	fs.files = []models.FileAvailable{
		{FileID: "a", Filename: "one.txt", FileType: models.TypeText, Size: "3.00 B"},
		{FileID: "b", Filename: "two.png", FileType: models.TypeImage, Size: "1.00 KB"},
	}

	c, bus, done := startClient(t, fs)
	ch := bus.Subscribe(events.EventConnected, events.EventFileAvailable)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	run(c, ctx, done)

	if ev := nextEvent(t, ch).(*events.ConnectionEvent); ev.SessionID != "sock-1" {
		t.Errorf("connected session = %q, want sock-1", ev.SessionID)
	}
	for _, want := range []string{"a", "b"} {
		ev := nextEvent(t, ch).(*events.FileAvailableEvent)
		if ev.File.FileID != want {
			t.Errorf("replayed %q, want %q", ev.File.FileID, want)
		}
	}

	stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run should return nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestClientHoldsEventsSentBeforeAck(t *testing.T) {
	fs := newFakeServer(t)
	fs.replayBeforeAck = true
	fs.files = []models.FileAvailable{
		{FileID: "a", Filename: "one.txt"},
		{FileID: "b", Filename: "two.txt"},
	}

	c, bus, done := startClient(t, fs)
	ch := bus.Subscribe(events.EventConnected, events.EventFileAvailable)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	run(c, ctx, done)

	files := table.New()
	want := []events.EventType{events.EventConnected, events.EventFileAvailable, events.EventFileAvailable}
	for i, wt := range want {
		ev := nextEvent(t, ch)
		if ev.Type() != wt {
			t.Fatalf("event %d = %s, want %s", i, ev.Type(), wt)
		}
		files.Apply(ev)
	}
	if files.Len() != 2 {
		t.Errorf("table rows after connect = %d, want 2", files.Len())
	}

	// A reconnect replays the same way and the table ends up rebuilt
	c.Reconnect()
	for _, wt := range want {
		ev := nextEvent(t, ch)
		if ev.Type() != wt {
			t.Fatalf("after reconnect got %s, want %s", ev.Type(), wt)
		}
		files.Apply(ev)
	}
	if files.Len() != 2 {
		t.Errorf("table rows after reconnect = %d, want 2", files.Len())
	}
}

func TestClientAnswersPing(t *testing.T) {
	fs := newFakeServer(t)
	fs.sendPing = true

	c, _, done := startClient(t, fs)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	run(c, ctx, done)

	select {
	case pong := <-fs.pongs:
		if pong != "3" {
			t.Errorf("pong = %q", pong)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never answered the ping")
	}
}

func TestFetch(t *testing.T) {
	fs := newFakeServer(t)
	fs.stored["abc"] = models.FileData{FileID: "abc", Filename: "hi.txt", Content: "aGk=", MimeType: "text/plain"}

	c, _, done := startClient(t, fs)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	run(c, ctx, done)

	fetchCtx, fetchCancel := context.WithTimeout(ctx, 2*time.Second)
	defer fetchCancel()

	data, err := c.Fetch(fetchCtx, "abc")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if data.Filename != "hi.txt" || data.MimeType != "text/plain" {
		t.Errorf("unexpected file data %+v", data)
	}
	if b, _ := data.Bytes(); string(b) != "hi" {
		t.Errorf("content = %q", b)
	}

	_, err = c.Fetch(fetchCtx, "missing")
	var fe *FileError
	if !errors.As(err, &fe) || fe.Message != "File not found" || fe.FileID != "missing" {
		t.Errorf("expected FileError, got %v", err)
	}
}

func TestFetchAcceptsReplyWithoutID(t *testing.T) {
	fs := newFakeServer(t)
	// The server's file_data reply only carries filename, content and mime type.
	fs.stored["abc"] = models.FileData{Filename: "hi.txt", Content: "aGk=", MimeType: "text/plain"}

	c, _, done := startClient(t, fs)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	run(c, ctx, done)

	fetchCtx, fetchCancel := context.WithTimeout(ctx, 2*time.Second)
	defer fetchCancel()

	data, err := c.Fetch(fetchCtx, "abc")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if data.FileID != "abc" || data.Filename != "hi.txt" {
		t.Errorf("unexpected file data %+v", data)
	}
}

func TestEmitWithoutSession(t *testing.T) {
	c, err := NewClient("http://localhost:5000", nil, events.NewEventBus(1), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Emit("request_file", models.FileRequest{FileID: "x"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit() = %v, want ErrNotConnected", err)
	}
	c.Reconnect() // no session; must not panic

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.WaitConnected(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitConnected() = %v", err)
	}
}

func TestReconnectReplaysSnapshot(t *testing.T) {
	fs := newFakeServer(t)
	fs.files = []models.FileAvailable{{FileID: "a", Filename: "one.txt"}}

	c, bus, done := startClient(t, fs)
	ch := bus.Subscribe(events.EventConnected, events.EventFileAvailable)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	run(c, ctx, done)

	nextEvent(t, ch) // connected
	nextEvent(t, ch) // a

	c.Reconnect()

	if _, ok := nextEvent(t, ch).(*events.ConnectionEvent); !ok {
		t.Fatal("expected a second connect")
	}
	if ev := nextEvent(t, ch).(*events.FileAvailableEvent); ev.File.FileID != "a" {
		t.Errorf("replay after reconnect = %q", ev.File.FileID)
	}
	if got := fs.connects.Load(); got != 2 {
		t.Errorf("server saw %d connections, want 2", got)
	}
}

func TestRunReconnectsAfterDrop(t *testing.T) {
	fs := newFakeServer(t)
	c, bus, done := startClient(t, fs)
	ch := bus.Subscribe(events.EventConnected, events.EventDisconnected)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	run(c, ctx, done)

	nextEvent(t, ch) // connected

	// Drop the connection from the client side without marking it forced
	c.current().conn.Close()

	ev := nextEvent(t, ch).(*events.ConnectionEvent)
	if ev.Type() != events.EventDisconnected || ev.Err == nil {
		t.Fatalf("expected a disconnect with an error, got %+v", ev)
	}
	if ev := nextEvent(t, ch); ev.Type() != events.EventConnected {
		t.Fatalf("expected reconnect, got %s", ev.Type())
	}
}

func TestRunStopsOnFatalErrors(t *testing.T) {
	t.Run("connect refused", func(t *testing.T) {
		fs := newFakeServer(t)
		fs.refuse = `{"message":"not authorized"}`
		c, _, done := startClient(t, fs)
		run(c, context.Background(), done)

		select {
		case err := <-done:
			if err == nil || !strings.Contains(err.Error(), "not authorized") {
				t.Errorf("Run() = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run kept reconnecting after a refused connect")
		}
	})

	t.Run("not found", func(t *testing.T) {
		srv := httptest.NewServer(nethttp.NotFoundHandler())
		defer srv.Close()
		bus := events.NewEventBus(4)
		defer bus.Close()
		c, err := NewClient(srv.URL, nil, bus, nil)
		if err != nil {
			t.Fatal(err)
		}
		done := make(chan error, 1)
		run(c, context.Background(), done)

		select {
		case err := <-done:
			if err == nil || !strings.Contains(err.Error(), "404") {
				t.Errorf("Run() = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run kept reconnecting after a 404")
		}
	})
}
