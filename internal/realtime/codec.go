package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sharedrop/sharedrop/internal/constants"
)

// Engine.IO v4 packet types. Each websocket text frame carries one packet.
const (
	packetOpen    = '0'
	packetClose   = '1'
	packetPing    = '2'
	packetPong    = '3'
	packetMessage = '4'
	packetUpgrade = '5'
	packetNoop    = '6'
)

// Socket.IO packet types, carried inside an Engine.IO message packet.
const (
	socketConnect      = '0'
	socketDisconnect   = '1'
	socketEvent        = '2'
	socketAck          = '3'
	socketConnectError = '4'
)

var errMalformedPacket = errors.New("malformed packet")

// packet is one decoded Engine.IO frame.
type packet struct {
	kind byte
	data string
}

func decodePacket(frame string) (packet, error) {
	if frame == "" {
		return packet{}, errMalformedPacket
	}
	kind := frame[0]
	if kind < packetOpen || kind > packetNoop {
		return packet{}, fmt.Errorf("%w: unknown type %q", errMalformedPacket, kind)
	}
	return packet{kind: kind, data: frame[1:]}, nil
}

// handshake is the payload of the open packet.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"` // milliseconds
	PingTimeout  int    `json:"pingTimeout"`  // milliseconds
}

// readTimeout is how long the server may stay silent before the session is
// considered dead: one ping interval plus the ping timeout.
func (h handshake) readTimeout() time.Duration {
	if h.PingInterval <= 0 || h.PingTimeout <= 0 {
		return constants.RealtimeDefaultPingTimeout
	}
	return time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
}

func decodeHandshake(p packet) (handshake, error) {
	var h handshake
	if p.kind != packetOpen {
		return h, fmt.Errorf("%w: expected open packet, got %q", errMalformedPacket, p.kind)
	}
	if err := json.Unmarshal([]byte(p.data), &h); err != nil {
		return h, fmt.Errorf("%w: open payload: %v", errMalformedPacket, err)
	}
	if h.SID == "" {
		return h, fmt.Errorf("%w: open payload has no sid", errMalformedPacket)
	}
	return h, nil
}

// message is one decoded Socket.IO packet on the default namespace.
type message struct {
	kind  byte
	event string          // for socketEvent
	data  json.RawMessage // first event argument, or the connect/error payload
}

func decodeMessage(s string) (message, error) {
	if s == "" {
		return message{}, errMalformedPacket
	}
	m := message{kind: s[0]}
	rest := s[1:]

	// Optional namespace ("/admin,") and ack id ("12") before the payload
	if strings.HasPrefix(rest, "/") {
		i := strings.IndexByte(rest, ',')
		if i < 0 {
			rest = ""
		} else {
			rest = rest[i+1:]
		}
	}
	rest = strings.TrimLeft(rest, "0123456789")

	switch m.kind {
	case socketConnect, socketConnectError:
		if rest != "" {
			m.data = json.RawMessage(rest)
		}
		return m, nil
	case socketDisconnect:
		return m, nil
	case socketEvent, socketAck:
		var args []json.RawMessage
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			return m, fmt.Errorf("%w: event payload: %v", errMalformedPacket, err)
		}
		if m.kind == socketAck {
			if len(args) > 0 {
				m.data = args[0]
			}
			return m, nil
		}
		if len(args) == 0 {
			return m, fmt.Errorf("%w: event without a name", errMalformedPacket)
		}
		if err := json.Unmarshal(args[0], &m.event); err != nil {
			return m, fmt.Errorf("%w: event name: %v", errMalformedPacket, err)
		}
		if len(args) > 1 {
			m.data = args[1]
		}
		return m, nil
	default:
		return m, fmt.Errorf("%w: unknown socket packet %q", errMalformedPacket, m.kind)
	}
}

// encodeEvent frames an emitted event: 42["name",payload].
func encodeEvent(event string, payload interface{}) (string, error) {
	args := []interface{}{event}
	if payload != nil {
		args = append(args, payload)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string([]byte{packetMessage, socketEvent}) + string(data), nil
}

func encodeConnect() string {
	return string([]byte{packetMessage, socketConnect})
}

func encodePong(data string) string {
	return string(packetPong) + data
}
