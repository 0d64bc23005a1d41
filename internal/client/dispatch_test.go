package client

import (
	"testing"
	"time"

	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/danmuck/stompctl/internal/protocol/session"
	"github.com/danmuck/stompctl/internal/testutil/fakeclock"
	"github.com/danmuck/stompctl/internal/testutil/testlog"
)

type dispatchFixture struct {
	d     *dispatcher
	queue *session.Queue[outbound]
	clock *fakeclock.Clock
	st    *status
}

func newDispatchFixture(mode session.AckMode, onError func(frame.Frame)) *dispatchFixture {
	clk := fakeclock.New(time.Unix(0, 0))
	queue := session.NewQueue[outbound]()
	st := newStatus()
	hb := &heartbeat{clock: clk, interval: 10 * time.Second}
	return &dispatchFixture{
		d:     newDispatcher(mode, queue, hb, st, onError),
		queue: queue,
		clock: clk,
		st:    st,
	}
}

func (fx *dispatchFixture) drain(t *testing.T, want int) []outbound {
	t.Helper()
	items := fx.queue.Drain()
	if len(items) != want {
		t.Fatalf("queued=%d want=%d: %+v", len(items), want, items)
	}
	return items
}

func TestDispatchConnectedResubscribesSorted(t *testing.T) {
	testlog.Start(t)
	fx := newDispatchFixture(session.AckClientIndividual, nil)
	for _, topic := range []string{"/z", "/a", "/m"} {
		fx.d.subs[topic] = nil
	}
	fx.queue.Push(outbound{frame: frame.New(frame.SEND)})

	fx.d.dispatch(frame.New(frame.CONNECTED, frame.Header{Key: frame.HeaderVersion, Value: "1.1"}))
	if !fx.st.connected.Load() || fx.st.Version() != "1.1" {
		t.Fatalf("session state not updated: connected=%v version=%q", fx.st.connected.Load(), fx.st.Version())
	}
	if fx.clock.Waiters() != 1 {
		t.Fatalf("heartbeat not armed")
	}

	items := fx.drain(t, 4)
	for i, want := range []string{"/a", "/m", "/z"} {
		f := items[i].frame
		if f.Command != frame.SUBSCRIBE || f.Header(frame.HeaderDestination) != want || f.Header(frame.HeaderAck) != "client-individual" {
			t.Fatalf("item %d: %+v", i, f)
		}
		if !items[i].sessionBound {
			t.Fatalf("re-subscribe should be session-bound")
		}
	}
	if items[3].frame.Command != frame.SEND {
		t.Fatalf("pre-queued frame displaced: %+v", items[3].frame)
	}

	// a repeated CONNECTED re-issues exactly one SUBSCRIBE per topic again
	fx.d.dispatch(frame.New(frame.CONNECTED, frame.Header{Key: frame.HeaderVersion, Value: "1.1"}))
	fx.drain(t, 3)
	if fx.clock.Waiters() != 1 {
		t.Fatalf("heartbeat armed twice")
	}
}

func TestDispatchConnectedWithoutVersion(t *testing.T) {
	testlog.Start(t)
	fx := newDispatchFixture(session.AckAuto, nil)
	fx.d.dispatch(frame.New(frame.CONNECTED))
	if fx.st.Version() != "1.0" {
		t.Fatalf("version=%q", fx.st.Version())
	}
	if fx.clock.Waiters() != 0 {
		t.Fatalf("heartbeat armed for 1.0")
	}
	fx.drain(t, 0)
}

func TestDispatchMessageClientMode(t *testing.T) {
	testlog.Start(t)
	fx := newDispatchFixture(session.AckClient, nil)
	fx.d.subs["/q"] = HandlerFunc(func(f frame.Frame) bool { return string(f.Body) == "yes" })

	fx.d.dispatch(message("/q", "m-1", "yes"))
	ack := fx.drain(t, 1)[0]
	if ack.frame.Command != frame.ACK || ack.frame.Header(frame.HeaderMessageID) != "m-1" || ack.frame.Header(frame.HeaderSubscription) != "/q" {
		t.Fatalf("unexpected ack: %+v", ack.frame)
	}
	if !ack.sessionBound {
		t.Fatalf("ack should be session-bound")
	}

	fx.d.dispatch(message("/q", "m-2", "no"))
	nack := fx.drain(t, 1)[0]
	if nack.frame.Command != frame.NACK || nack.frame.Header(frame.HeaderMessageID) != "m-2" {
		t.Fatalf("unexpected nack: %+v", nack.frame)
	}
}

func TestDispatchMessageDefaultsToAccepted(t *testing.T) {
	testlog.Start(t)
	fx := newDispatchFixture(session.AckClient, nil)
	fx.d.subs["/nil"] = nil

	fx.d.dispatch(message("/nil", "m-1", ""))
	fx.d.dispatch(message("/unknown", "m-2", ""))
	for _, item := range fx.drain(t, 2) {
		if item.frame.Command != frame.ACK {
			t.Fatalf("expected ACK, got %s", item.frame.Command)
		}
	}
}

func TestDispatchHandlerPanicNacks(t *testing.T) {
	testlog.Start(t)
	fx := newDispatchFixture(session.AckClientIndividual, nil)
	fx.d.subs["/q"] = HandlerFunc(func(frame.Frame) bool { panic("boom") })

	fx.d.dispatch(message("/q", "m-1", ""))
	if item := fx.drain(t, 1)[0]; item.frame.Command != frame.NACK {
		t.Fatalf("expected NACK, got %s", item.frame.Command)
	}
}

func TestDispatchMessageAutoMode(t *testing.T) {
	testlog.Start(t)
	fx := newDispatchFixture(session.AckAuto, nil)
	calls := 0
	fx.d.subs["/q"] = HandlerFunc(func(frame.Frame) bool { calls++; return false })

	fx.d.dispatch(message("/q", "m-1", ""))
	fx.d.dispatch(message("/q", "m-2", ""))
	fx.drain(t, 0)
	if calls != 2 {
		t.Fatalf("handler calls=%d", calls)
	}
}

func TestDispatchReceiptAndError(t *testing.T) {
	testlog.Start(t)
	var errFrames []frame.Frame
	fx := newDispatchFixture(session.AckAuto, func(f frame.Frame) { errFrames = append(errFrames, f) })

	called := 0
	fx.d.receipts["r-1"] = func(frame.Frame) { called++ }
	fx.d.dispatch(frame.New(frame.RECEIPT))
	fx.d.dispatch(frame.New(frame.RECEIPT, frame.Header{Key: frame.HeaderReceiptID, Value: "r-x"}))
	fx.d.dispatch(frame.New(frame.RECEIPT, frame.Header{Key: frame.HeaderReceiptID, Value: "r-1"}))
	fx.d.dispatch(frame.New(frame.RECEIPT, frame.Header{Key: frame.HeaderReceiptID, Value: "r-1"}))
	if called != 1 {
		t.Fatalf("receipt callback calls=%d", called)
	}

	fx.d.dispatch(frame.New(frame.ERROR, frame.Header{Key: frame.HeaderMessage, Value: "nope"}))
	if len(errFrames) != 1 || errFrames[0].Header(frame.HeaderMessage) != "nope" {
		t.Fatalf("error hook frames: %+v", errFrames)
	}

	fx.d.dispatch(frame.New(frame.ACK, frame.Header{Key: frame.HeaderMessageID, Value: "m"}))
	fx.drain(t, 0)

	fx.d.receipts["r-2"] = nil
	fx.d.reset()
	if len(fx.d.receipts) != 0 {
		t.Fatalf("reset kept receipts")
	}
}
