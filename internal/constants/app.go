package constants

import (
	"time"
)

// Application identity
const (
	// AppName is used for the config directory, log directory and user agent.
	AppName = "sharedrop"

	// DefaultServerURL - the share server started with its defaults listens here
	DefaultServerURL = "http://localhost:5000"

	// DefaultDeviceName is reported when the hostname cannot be determined
	DefaultDeviceName = "Unknown Device"
)

// Batch coordination
const (
	// ReloadDelay - delay between the last terminal upload outcome of a batch and
	// the reload side effect. Gives the final status line time to render.
	ReloadDelay = 1 * time.Second

	// DropzoneSettleDelay - quiet period after the last filesystem event before a
	// hot-folder drop is resolved and submitted as one batch
	DropzoneSettleDelay = 750 * time.Millisecond
)

// Directory traversal
const (
	// DirectoryPageSize - number of entries requested per directory listing page.
	// Sources return an empty page once a directory is exhausted.
	DirectoryPageSize = 256

	// MaxListingPages - maximum pages fetched for one directory before giving up
	// (prevents an infinite loop against a misbehaving source)
	MaxListingPages = 10000
)

// CLI Concurrency Limits
const (
	// DefaultMaxConcurrent - default concurrent uploads per batch
	DefaultMaxConcurrent = 5

	// MinMaxConcurrent - minimum concurrent operations (sequential mode)
	MinMaxConcurrent = 1

	// MaxMaxConcurrent - maximum concurrent operations allowed
	MaxMaxConcurrent = 10
)

// Retry configuration (idempotent GET requests only; uploads and deletes never retry)
const (
	// DefaultMaxRetries - retries are off unless configured
	DefaultMaxRetries = 0

	// MaxRetriesLimit - upper bound accepted from configuration
	MaxRetriesLimit = 10

	// RetryWaitMin - minimum wait between retries
	RetryWaitMin = 500 * time.Millisecond

	// RetryWaitMax - maximum wait between retries
	RetryWaitMax = 10 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios
	EventBusMaxBuffer = 4096
)

// Real-time channel
const (
	// RealtimePath - Engine.IO websocket endpoint served by the share server
	RealtimePath = "/socket.io/"

	// RealtimeHandshakeTimeout - timeout for the websocket upgrade
	RealtimeHandshakeTimeout = 15 * time.Second

	// RealtimeReconnectMin - first reconnect delay after a dropped connection
	RealtimeReconnectMin = 1 * time.Second

	// RealtimeReconnectMax - reconnect backoff cap
	RealtimeReconnectMax = 30 * time.Second

	// RealtimeDefaultPingTimeout - used when the server open packet omits pingInterval/pingTimeout
	RealtimeDefaultPingTimeout = 45 * time.Second

	// FetchTimeout - how long 'fetch' waits for a file_data or file_error reply
	FetchTimeout = 60 * time.Second
)

// API and Context Timeouts
const (
	// APIContextTimeout - default timeout for metadata operations (file-info, delete)
	APIContextTimeout = 30 * time.Second

	// PreviewTimeout - timeout for fetching preview content
	PreviewTimeout = 5 * time.Minute
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second
)

// UI Updates
const (
	// ProgressUpdateInterval - minimum interval between progress bar updates
	ProgressUpdateInterval = 250 * time.Millisecond

	// ProgressRefreshRate - mpb redraw interval
	ProgressRefreshRate = 300 * time.Millisecond

	// TableRenderDelay - coalesces bursts of real-time events (the connect
	// replay sends one per stored file) into a single table redraw
	TableRenderDelay = 150 * time.Millisecond
)
