package client

import (
	"sort"
	"sync/atomic"

	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/danmuck/stompctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// outbound is one queued frame.
type outbound struct {
	frame frame.Frame
	// apply runs on the actor just before the write; false skips the frame.
	apply func(d *dispatcher) bool
	// sessionBound frames mean nothing to a later session and are purged on
	// teardown instead of being retried.
	sessionBound bool
}

// status is the part of the session state readable from any goroutine.
type status struct {
	state     atomic.Int32
	connected atomic.Bool
	version   atomic.Value // string
}

func newStatus() *status {
	s := &status{}
	s.version.Store(defaultVersion)
	return s
}

func (s *status) State() session.ConnectionState {
	return session.ConnectionState(s.state.Load())
}

func (s *status) Version() string {
	return s.version.Load().(string)
}

const defaultVersion = "1.0"

// dispatcher routes inbound frames and owns the subscription registry. It is
// only touched by the actor goroutine.
type dispatcher struct {
	ackMode  session.AckMode
	queue    *session.Queue[outbound]
	hb       *heartbeat
	st       *status
	onError  func(frame.Frame)
	subs     map[string]Handler
	receipts map[string]ReceiptFunc
}

func newDispatcher(ackMode session.AckMode, queue *session.Queue[outbound], hb *heartbeat, st *status, onError func(frame.Frame)) *dispatcher {
	return &dispatcher{
		ackMode:  ackMode,
		queue:    queue,
		hb:       hb,
		st:       st,
		onError:  onError,
		subs:     make(map[string]Handler),
		receipts: make(map[string]ReceiptFunc),
	}
}

func (d *dispatcher) dispatch(f frame.Frame) {
	switch f.Command {
	case frame.CONNECTED:
		d.connected(f)
	case frame.MESSAGE:
		d.message(f)
	case frame.RECEIPT:
		d.receipt(f)
	case frame.ERROR:
		d.serverError(f)
	case frame.ACK, frame.NACK:
		log.Debug().
			Str("command", f.Command.String()).
			Str("message_id", f.Header(frame.HeaderMessageID)).
			Msg("client.Dispatcher ignoring server acknowledgement")
	default:
		log.Warn().Str("command", f.Command.String()).Msg("client.Dispatcher unexpected command")
	}
}

func (d *dispatcher) connected(f frame.Frame) {
	version := f.Header(frame.HeaderVersion)
	if version == "" {
		version = defaultVersion
	}
	d.st.version.Store(version)
	if version == "1.1" {
		d.hb.arm()
	}
	d.st.connected.Store(true)

	topics := make([]string, 0, len(d.subs))
	for topic := range d.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	items := make([]outbound, 0, len(topics))
	for _, topic := range topics {
		items = append(items, outbound{frame: subscribeFrame(topic, d.ackMode), sessionBound: true})
	}
	// ahead of anything queued while disconnected
	d.queue.PushFront(items...)

	log.Info().
		Str("version", version).
		Str("server", f.Header("server")).
		Int("subscriptions", len(topics)).
		Bool("heartbeat", d.hb.armed()).
		Msg("client.Dispatcher connected")
}

func (d *dispatcher) message(f frame.Frame) {
	dest := f.Header(frame.HeaderDestination)
	accepted := true
	if h, ok := d.subs[dest]; !ok {
		log.Debug().Str("destination", dest).Msg("client.Dispatcher message for unknown destination")
	} else if h != nil {
		accepted = invokeHandler(h, f)
	}
	if !d.ackMode.RequiresAck() {
		return
	}
	d.queue.Push(outbound{frame: ackFrame(f, accepted), sessionBound: true})
}

func invokeHandler(h Handler, f frame.Frame) (accepted bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("destination", f.Header(frame.HeaderDestination)).
				Msg("client.Dispatcher handler panic")
			accepted = false
		}
	}()
	return h.OnMessage(f)
}

func (d *dispatcher) receipt(f frame.Frame) {
	id := f.Header(frame.HeaderReceiptID)
	fn, ok := d.receipts[id]
	if !ok {
		log.Debug().Str("receipt_id", id).Msg("client.Dispatcher uncorrelated receipt")
		return
	}
	delete(d.receipts, id)
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("receipt_id", id).Msg("client.Dispatcher receipt callback panic")
		}
	}()
	fn(f)
}

func (d *dispatcher) serverError(f frame.Frame) {
	log.Warn().
		Str("message", f.Header(frame.HeaderMessage)).
		Str("body", string(f.Body)).
		Msg("client.Dispatcher server error")
	if d.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("client.Dispatcher error hook panic")
		}
	}()
	d.onError(f)
}

// reset drops state that only the closed session could answer.
func (d *dispatcher) reset() {
	if n := len(d.receipts); n > 0 {
		log.Debug().Int("receipts", n).Msg("client.Dispatcher dropping pending receipts")
	}
	clear(d.receipts)
}

func subscribeFrame(topic string, mode session.AckMode) frame.Frame {
	return frame.New(frame.SUBSCRIBE,
		frame.Header{Key: frame.HeaderDestination, Value: topic},
		frame.Header{Key: frame.HeaderID, Value: topic},
		frame.Header{Key: frame.HeaderAck, Value: mode.String()},
	)
}

func unsubscribeFrame(topic string) frame.Frame {
	return frame.New(frame.UNSUBSCRIBE,
		frame.Header{Key: frame.HeaderID, Value: topic},
		frame.Header{Key: frame.HeaderDestination, Value: topic},
	)
}

// ackFrame answers msg with ACK or NACK, echoing its message-id and
// subscription headers.
func ackFrame(msg frame.Frame, accepted bool) frame.Frame {
	cmd := frame.ACK
	if !accepted {
		cmd = frame.NACK
	}
	f := frame.New(cmd)
	if v, ok := msg.Headers.Get(frame.HeaderMessageID); ok {
		f.Headers.Set(frame.HeaderMessageID, v)
	}
	if v, ok := msg.Headers.Get(frame.HeaderSubscription); ok {
		f.Headers.Set(frame.HeaderSubscription, v)
	}
	return f
}
