// Package transport carries protocol frames over a websocket. One Conn is
// one duplex room channel: JSON text frames for chat and control, binary
// frames for audio payloads announced by a chunk header.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/salavoz/salavoz/pkg/protocol"
)

// SessionPath is the websocket endpoint for room sessions.
const SessionPath = "/v1/session"

const handshakeTimeout = 5 * time.Second

// SessionURL normalizes a server address into the websocket URL of the
// session endpoint. Bare host:port gets the ws scheme; http(s) is mapped
// to ws(s).
func SessionURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("server address is empty")
	}
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = SessionPath
	}
	return u.String(), nil
}

// Conn is a live session channel. Writes are serialized so a chunk header
// and its binary payload always travel back to back.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	// pending is the last chunk header awaiting its binary payload.
	// Only touched by the single Recv loop.
	pending *protocol.AudioChunkHeader
}

// Dial connects to the session endpoint, performs the hello handshake and
// returns the admitted channel. A server rejection (for example a taken
// display name) is returned as a *protocol.ErrorFrame.
func Dial(ctx context.Context, addr string, hello protocol.Hello) (*Conn, *protocol.HelloAck, error) {
	if err := protocol.ValidateHello(hello); err != nil {
		return nil, nil, err
	}
	wsURL, err := SessionURL(addr)
	if err != nil {
		return nil, nil, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	deadline := time.Now().Add(handshakeTimeout)
	if err := ws.SetWriteDeadline(deadline); err == nil {
		err = ws.WriteJSON(hello)
	}
	if err != nil {
		ws.Close()
		return nil, nil, fmt.Errorf("send hello: %w", err)
	}

	ws.SetReadDeadline(deadline)
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, nil, fmt.Errorf("await hello_ack: %w", err)
	}
	msg, err := protocol.DecodeServerFrame(data)
	if err != nil {
		ws.Close()
		return nil, nil, fmt.Errorf("handshake: %w", err)
	}

	switch m := msg.(type) {
	case protocol.HelloAck:
		ws.SetReadDeadline(time.Time{})
		ws.SetWriteDeadline(time.Time{})
		return &Conn{ws: ws}, &m, nil
	case protocol.ErrorFrame:
		ws.Close()
		return nil, nil, &m
	default:
		ws.Close()
		return nil, nil, fmt.Errorf("handshake: unexpected %T frame", msg)
	}
}

// SendChat writes one chat frame.
func (c *Conn) SendChat(msg protocol.ChatMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

// SendAudio writes a chunk header followed by its binary payload under one
// lock hold, so concurrent writers cannot interleave between them.
func (c *Conn) SendAudio(hdr protocol.AudioChunkHeader, pcm []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(hdr); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, pcm)
}

// Recv reads the next complete inbound frame: a protocol.ChatMessage,
// protocol.AudioFrame or protocol.ErrorFrame. Chunk headers are held back
// and paired with the binary frame that follows them. A graceful peer
// closure surfaces as io.EOF. Malformed frames surface as
// *protocol.DecodeError; the connection stays usable.
func (c *Conn) Recv() (any, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}

		if mt == websocket.BinaryMessage {
			hdr := c.pending
			c.pending = nil
			if hdr == nil {
				// Binary with no announcing header; drop it.
				continue
			}
			return protocol.AudioFrame{Header: *hdr, Data: data}, nil
		}

		msg, err := protocol.DecodeServerFrame(data)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case protocol.AudioChunkHeader:
			c.pending = &m
		case protocol.ChatMessage:
			return m, nil
		case protocol.ErrorFrame:
			return m, nil
		default:
			// hello_ack after admission; nothing to deliver.
		}
	}
}

// CloseSend announces a graceful end of the outbound side.
func (c *Conn) CloseSend() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Close tears the websocket down.
func (c *Conn) Close() error {
	return c.ws.Close()
}
