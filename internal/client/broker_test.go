package client

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/danmuck/stompctl/internal/protocol/session"
	"github.com/danmuck/stompctl/internal/testutil/fakeclock"
)

const waitTimeout = 2 * time.Second

// fakeBroker hands out the server side of an in-memory pipe for every dial.
type fakeBroker struct {
	conns chan *brokerConn
	// wrap, when set, decorates the client side of every dial.
	wrap func(io.ReadWriteCloser) io.ReadWriteCloser
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{conns: make(chan *brokerConn, 8)}
}

func (fb *fakeBroker) transport() Transport {
	return TransportFunc(func(ctx context.Context, endpoint string) (io.ReadWriteCloser, error) {
		clientSide, serverSide := net.Pipe()
		fb.conns <- newBrokerConn(serverSide)
		if fb.wrap != nil {
			return fb.wrap(clientSide), nil
		}
		return clientSide, nil
	})
}

func (fb *fakeBroker) accept(t *testing.T) *brokerConn {
	t.Helper()
	select {
	case bc := <-fb.conns:
		return bc
	case <-time.After(waitTimeout):
		t.Fatalf("no dial within %s", waitTimeout)
		return nil
	}
}

type brokerConn struct {
	conn net.Conn
	raw  chan []byte
	buf  []byte
}

func newBrokerConn(conn net.Conn) *brokerConn {
	bc := &brokerConn{conn: conn, raw: make(chan []byte, 256)}
	go func() {
		defer close(bc.raw)
		chunk := make([]byte, 4096)
		for {
			n, err := conn.Read(chunk)
			if n > 0 {
				bc.raw <- append([]byte(nil), chunk[:n]...)
			}
			if err != nil {
				return
			}
		}
	}()
	return bc
}

func (bc *brokerConn) fill(t *testing.T) {
	t.Helper()
	select {
	case chunk, ok := <-bc.raw:
		if !ok {
			t.Fatalf("connection closed; unread=%q", bc.buf)
		}
		bc.buf = append(bc.buf, chunk...)
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for client bytes; unread=%q", bc.buf)
	}
}

// next returns the next client frame, skipping heartbeats.
func (bc *brokerConn) next(t *testing.T) frame.Frame {
	t.Helper()
	for {
		f, n, err := frame.Decode(bc.buf, frame.ClientCommands, frame.DefaultLimits())
		bc.buf = bc.buf[n:]
		if err == nil {
			return f
		}
		if !errors.Is(err, frame.ErrNoFrame) {
			t.Fatalf("decode client bytes: %v", err)
		}
		bc.fill(t)
	}
}

func (bc *brokerConn) expect(t *testing.T, cmd frame.Command) frame.Frame {
	t.Helper()
	f := bc.next(t)
	if f.Command != cmd {
		t.Fatalf("expected %s, got %s headers=%v", cmd, f.Command, f.Headers)
	}
	return f
}

// peek returns the next unread byte without consuming it.
func (bc *brokerConn) peek(t *testing.T) byte {
	t.Helper()
	for len(bc.buf) == 0 {
		bc.fill(t)
	}
	return bc.buf[0]
}

func (bc *brokerConn) heartbeat(t *testing.T) {
	t.Helper()
	if b := bc.peek(t); b != '\n' {
		t.Fatalf("expected heartbeat, got %q", bc.buf)
	}
	bc.buf = bc.buf[1:]
}

func (bc *brokerConn) send(t *testing.T, f frame.Frame) {
	t.Helper()
	if err := frame.WriteFrame(bc.conn, f); err != nil {
		t.Fatalf("broker write %s: %v", f.Command, err)
	}
}

func (bc *brokerConn) sendRaw(t *testing.T, b []byte) {
	t.Helper()
	if _, err := bc.conn.Write(b); err != nil {
		t.Fatalf("broker write: %v", err)
	}
}

// closed waits for the client to close its end and returns the unread bytes.
func (bc *brokerConn) closed(t *testing.T) []byte {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case chunk, ok := <-bc.raw:
			if !ok {
				return bc.buf
			}
			bc.buf = append(bc.buf, chunk...)
		case <-deadline:
			t.Fatalf("client did not close the connection")
		}
	}
}

// handshake answers the client's CONNECT; version "" omits the header.
func (bc *brokerConn) handshake(t *testing.T, c *Client, version string) {
	t.Helper()
	connect := bc.expect(t, frame.CONNECT)
	if got := connect.Header(frame.HeaderAcceptVersion); got != "1.1" {
		t.Fatalf("accept-version=%q", got)
	}
	if got := connect.Header(frame.HeaderHost); got != testHost {
		t.Fatalf("host=%q", got)
	}
	connected := frame.New(frame.CONNECTED, frame.Header{Key: "server", Value: "fake/1"})
	if version != "" {
		connected.Headers.Set(frame.HeaderVersion, version)
	}
	bc.send(t, connected)
	waitFor(t, "connected", c.Connected)
}

// marker sends a SEND and checks it is the very next thing on the wire.
func (bc *brokerConn) marker(t *testing.T, c *Client, topic string) {
	t.Helper()
	if !c.Send(topic, nil, nil) {
		t.Fatalf("marker send rejected")
	}
	if b := bc.peek(t); b != 'S' {
		t.Fatalf("expected marker SEND next, got %q", bc.buf)
	}
	f := bc.expect(t, frame.SEND)
	if got := f.Header(frame.HeaderDestination); got != topic {
		t.Fatalf("expected marker %q, got %v", topic, f.Headers)
	}
}

func message(dest, id string, body string) frame.Frame {
	f := frame.New(frame.MESSAGE,
		frame.Header{Key: frame.HeaderDestination, Value: dest},
		frame.Header{Key: frame.HeaderMessageID, Value: id},
		frame.Header{Key: frame.HeaderSubscription, Value: dest},
	)
	f.Body = []byte(body)
	return f
}

const testHost = "broker.test"

func newTestClient(t *testing.T, fb *fakeBroker, clk session.Clock, mode session.AckMode) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Host = testHost
	cfg.Resolver = ResolverFunc(func(ctx context.Context, host string, port int) ([]string, error) {
		return []string{"10.0.0.1:61613"}, nil
	})
	cfg.Transport = fb.transport()
	cfg.Clock = clk
	cfg.Session.AckMode = mode
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

func startTestClient(t *testing.T, mode session.AckMode) (*Client, *fakeBroker, *fakeclock.Clock) {
	t.Helper()
	fb := newFakeBroker()
	clk := fakeclock.New(time.Unix(1700000000, 0))
	c := newTestClient(t, fb, clk, mode)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return c, fb, clk
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
