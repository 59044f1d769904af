// Package realtime keeps a Socket.IO session with the share server open and
// publishes its file notifications on an events.EventBus.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/events"
	"github.com/sharedrop/sharedrop/internal/http"
	"github.com/sharedrop/sharedrop/internal/logging"
	"github.com/sharedrop/sharedrop/internal/models"
	"github.com/sharedrop/sharedrop/internal/version"
)

var (
	// ErrNotConnected is returned when emitting without a live session.
	ErrNotConnected = errors.New("real-time channel is not connected")

	errForcedReconnect = errors.New("reconnect requested")
)

// FileError is the server's reply to a request_file it could not serve.
type FileError struct {
	FileID  string
	Message string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("request_file %s: %s", e.FileID, e.Message)
}

// Client maintains the real-time session. Run owns the connection; the other
// methods are safe to call from any goroutine.
type Client struct {
	url    string
	dialer *websocket.Dialer
	header nethttp.Header
	bus    *events.EventBus
	logger *logging.Logger

	reconnectMin time.Duration
	reconnectMax time.Duration

	mu    sync.Mutex
	sess  *session
	ready chan struct{} // closed while a session is connected
}

type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	forced  atomic.Bool
}

func (s *session) write(frame string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// NewClient creates a client for the server at baseURL, dialing through the
// same proxy settings as httpClient.
func NewClient(baseURL string, httpClient *nethttp.Client, bus *events.EventBus, logger *logging.Logger) (*Client, error) {
	endpoint, err := websocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	header := nethttp.Header{}
	header.Set("User-Agent", version.UserAgent())

	return &Client{
		url:          endpoint,
		dialer:       http.NewWebsocketDialer(httpClient),
		header:       header,
		bus:          bus,
		logger:       logger,
		reconnectMin: constants.RealtimeReconnectMin,
		reconnectMax: constants.RealtimeReconnectMax,
		ready:        make(chan struct{}),
	}, nil
}

// websocketURL maps http(s)://host/base to ws(s)://host/base/socket.io/?EIO=4&transport=websocket.
func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + constants.RealtimePath
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	return u.String(), nil
}

// URL returns the websocket endpoint.
func (c *Client) URL() string {
	return c.url
}

// Run connects and keeps the session alive until ctx is cancelled, reconnecting
// with exponential backoff. It returns nil on cancellation and an error only
// when the failure is not worth another attempt.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		connected, err := c.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errForcedReconnect) {
			c.logger.Debug().Msg("Reconnecting real-time channel")
			c.bus.PublishDisconnected(nil)
			attempt = 0
			continue
		}
		if connected {
			attempt = 0
		}

		c.bus.PublishDisconnected(err)
		if !http.IsReconnectable(err) {
			return err
		}

		attempt++
		delay := http.CalculateBackoff(attempt, c.reconnectMin, c.reconnectMax)
		c.logger.Warn().Err(err).
			Str("kind", http.ErrorTypeName(http.ClassifyError(err))).
			Dur("retry_in", delay).
			Msg("Real-time connection lost")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (c *Client) runSession(ctx context.Context) (connected bool, err error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			err = fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	s := &session{conn: conn}
	defer c.detach(s)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(constants.RealtimeHandshakeTimeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return false, fmt.Errorf("read open packet: %w", err)
	}
	p, err := decodePacket(string(frame))
	if err != nil {
		return false, err
	}
	hs, err := decodeHandshake(p)
	if err != nil {
		return false, err
	}
	c.logger.Debug().Str("sid", hs.SID).Int("ping_interval_ms", hs.PingInterval).Msg("Engine.IO handshake")

	if err := s.write(encodeConnect()); err != nil {
		return false, fmt.Errorf("send connect: %w", err)
	}

	// The server may replay its files from the connect handler before the
	// namespace ack; those events are dispatched right after the connected event.
	var early []message

	timeout := hs.readTimeout()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if s.forced.Load() {
				return connected, errForcedReconnect
			}
			return connected, fmt.Errorf("read: %w", err)
		}

		p, err := decodePacket(string(frame))
		if err != nil {
			c.logger.Debug().Err(err).Msg("Ignoring frame")
			continue
		}

		switch p.kind {
		case packetPing:
			if err := s.write(encodePong(p.data)); err != nil {
				return connected, fmt.Errorf("send pong: %w", err)
			}
		case packetClose:
			return connected, fmt.Errorf("server closed the session: %w", io.EOF)
		case packetMessage:
			m, err := decodeMessage(p.data)
			if err != nil {
				c.logger.Debug().Err(err).Msg("Ignoring message")
				continue
			}
			switch m.kind {
			case socketConnect:
				connected = true
				c.attach(s)
				c.bus.PublishConnected(connectSID(m.data, hs.SID))
				for _, em := range early {
					c.dispatch(em)
				}
				early = nil
			case socketConnectError:
				return connected, fmt.Errorf("%w: connect refused: %s", http.ErrFatal, string(m.data))
			case socketDisconnect:
				return connected, fmt.Errorf("server disconnected the socket: %w", io.EOF)
			case socketEvent:
				if !connected {
					early = append(early, m)
					continue
				}
				c.dispatch(m)
			}
		}
	}
}

func connectSID(data json.RawMessage, fallback string) string {
	var payload struct {
		SID string `json:"sid"`
	}
	if len(data) > 0 && json.Unmarshal(data, &payload) == nil && payload.SID != "" {
		return payload.SID
	}
	return fallback
}

func (c *Client) dispatch(m message) {
	var err error
	switch m.event {
	case "file_available":
		var f models.FileAvailable
		if err = json.Unmarshal(m.data, &f); err == nil {
			c.bus.PublishFileAvailable(f)
		}
	case "file_deleted":
		var f models.FileDeleted
		if err = json.Unmarshal(m.data, &f); err == nil {
			c.bus.PublishFileDeleted(f.FileID)
		}
	case "file_data":
		var d models.FileData
		if err = json.Unmarshal(m.data, &d); err == nil {
			c.bus.PublishFileData(d)
		}
	case "file_error":
		var e models.FileError
		if err = json.Unmarshal(m.data, &e); err == nil {
			c.bus.PublishFileError(e.Error)
		}
	default:
		c.logger.Debug().Str("event", m.event).Msg("Ignoring unknown event")
		return
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("event", m.event).Msg("Malformed event payload")
	}
	if n := c.bus.ResetDroppedEventCount(); n > 0 {
		c.logger.Warn().Int64("dropped", n).Msg("Slow subscriber missed real-time events")
	}
}

func (c *Client) attach(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == s {
		return
	}
	c.sess = s
	close(c.ready)
}

func (c *Client) detach(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s {
		return
	}
	c.sess = nil
	c.ready = make(chan struct{})
}

func (c *Client) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// WaitConnected blocks until a session is connected or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		ready, live := c.ready, c.sess != nil
		c.mu.Unlock()
		if live {
			return nil
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Emit sends an event with payload on the live session.
func (c *Client) Emit(event string, payload interface{}) error {
	s := c.current()
	if s == nil {
		return ErrNotConnected
	}
	frame, err := encodeEvent(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return s.write(frame)
}

// Reconnect drops the live session so Run re-establishes it immediately. The
// server replays every stored file on the new session.
func (c *Client) Reconnect() {
	s := c.current()
	if s == nil {
		return
	}
	s.forced.Store(true)
	s.conn.Close()
}

// Fetch requests a file over the real-time channel and waits for the
// server's file_data or file_error reply.
func (c *Client) Fetch(ctx context.Context, fileID string) (*models.FileData, error) {
	replies := c.bus.Subscribe(events.EventFileData, events.EventFileError)
	defer c.bus.Unsubscribe(replies)

	if err := c.WaitConnected(ctx); err != nil {
		return nil, err
	}
	if err := c.Emit("request_file", models.FileRequest{FileID: fileID}); err != nil {
		return nil, err
	}

	for {
		select {
		case ev, ok := <-replies:
			if !ok {
				return nil, ErrNotConnected
			}
			switch e := ev.(type) {
			case *events.FileDataEvent:
				// The server's file_data payload may omit file_id.
				if e.Data.FileID == fileID || e.Data.FileID == "" {
					data := e.Data
					data.FileID = fileID
					return &data, nil
				}
			case *events.FileErrorEvent:
				// file_error carries no id; it answers the only request in flight
				return nil, &FileError{FileID: fileID, Message: e.Message}
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
