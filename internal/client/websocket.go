package client

import (
	"context"
	"io"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

// DefaultSubprotocol is the STOMP 1.1 websocket subprotocol token.
const DefaultSubprotocol = "v11.stomp"

// WebSocketTransport carries STOMP frames over websocket messages, one frame
// per message.
type WebSocketTransport struct {
	Dialer       *websocket.Dialer
	Path         string
	Subprotocols []string
}

func (t *WebSocketTransport) Dial(ctx context.Context, endpoint string) (io.ReadWriteCloser, error) {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if t.Dialer != nil {
		d = *t.Dialer
	}
	d.Subprotocols = t.Subprotocols
	if len(d.Subprotocols) == 0 {
		d.Subprotocols = []string{DefaultSubprotocol}
	}
	path := t.Path
	if path == "" {
		path = "/"
	}
	u := url.URL{Scheme: "ws", Host: endpoint, Path: path}

	conn, resp, err := d.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsStream{conn: conn}, nil
}

// wsStream adapts message-oriented websocket I/O to a byte stream.
type wsStream struct {
	conn *websocket.Conn
	r    io.Reader
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			s.r = r
		}
		n, err := s.r.Read(p)
		if err == io.EOF {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as one message; bodies that are not UTF-8 go out as binary.
func (s *wsStream) Write(p []byte) (int, error) {
	typ := websocket.TextMessage
	if !utf8.Valid(p) {
		typ = websocket.BinaryMessage
	}
	if err := s.conn.WriteMessage(typ, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
