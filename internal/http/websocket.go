package http

import (
	nethttp "net/http"

	"github.com/Azure/go-ntlmssp"
	"github.com/gorilla/websocket"

	"github.com/sharedrop/sharedrop/internal/constants"
)

// NewWebsocketDialer returns a dialer that reaches the server the same way
// client does: same proxy function and TLS settings.
//
// NTLM proxies are dialed without the Negotiator handshake; gorilla only
// speaks CONNECT with basic credentials taken from the proxy URL.
func NewWebsocketDialer(client *nethttp.Client) *websocket.Dialer {
	dialer := &websocket.Dialer{
		Proxy:            nethttp.ProxyFromEnvironment,
		HandshakeTimeout: constants.RealtimeHandshakeTimeout,
	}
	if client == nil {
		return dialer
	}

	rt := client.Transport
	if n, ok := rt.(ntlmssp.Negotiator); ok {
		rt = n.RoundTripper
	}
	tr, ok := rt.(*nethttp.Transport)
	if !ok {
		return dialer
	}

	dialer.Proxy = tr.Proxy
	if tr.TLSClientConfig != nil {
		tlsCfg := tr.TLSClientConfig.Clone()
		// The upgrade must happen over HTTP/1.1
		tlsCfg.NextProtos = nil
		dialer.TLSClientConfig = tlsCfg
	}
	return dialer
}
