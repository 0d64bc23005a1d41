package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/danmuck/stompctl/internal/observability"
	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/danmuck/stompctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// actor owns the transport and every piece of session state. All of its
// methods run on the goroutine started by Client.Start.
type actor struct {
	cfg     Config
	queue   *session.Queue[outbound]
	st      *status
	stats   *Statistics
	disp    *dispatcher
	hb      *heartbeat
	backoff *session.Backoff
}

func newActor(cfg Config, queue *session.Queue[outbound], st *status, stats *Statistics) *actor {
	hb := &heartbeat{clock: cfg.Clock, interval: cfg.Session.HeartbeatInterval}
	return &actor{
		cfg:     cfg,
		queue:   queue,
		st:      st,
		stats:   stats,
		disp:    newDispatcher(cfg.Session.AckMode, queue, hb, st, cfg.OnError),
		hb:      hb,
		backoff: session.NewBackoff(cfg.Session.Backoff, rand.New(rand.NewSource(time.Now().UnixNano()))),
	}
}

// run connects, serves and reconnects until ctx is cancelled.
func (a *actor) run(ctx context.Context) {
	defer a.setState(session.Disconnected)
	for {
		err := a.session(ctx)
		if ctx.Err() != nil {
			return
		}
		a.setState(session.Faulted)
		if pe, ok := frame.IsProtocolError(err); ok {
			observability.RecordProtocolError(int(pe.Code))
		}
		a.setState(session.Disconnected)

		delay := a.backoff.Next()
		log.Warn().
			Err(err).
			Str("host", a.cfg.Host).
			Int("attempt", a.backoff.Attempt()).
			Dur("retry_in", delay).
			Msg("client.Actor session ended")
		if !a.sleep(ctx, delay) {
			return
		}
		atomic.AddInt64(&a.stats.Reconnects, 1)
		observability.RecordReconnect()
	}
}

func (a *actor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := a.cfg.Clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
		return true
	}
}

// session runs one connection from resolution to teardown. It returns nil
// only when ctx was cancelled.
func (a *actor) session(ctx context.Context) error {
	a.setState(session.Resolving)
	endpoints, err := a.cfg.Resolver.Resolve(ctx, a.cfg.Host, a.cfg.Port)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", a.cfg.Host, err)
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("%w: %s", ErrNoEndpoints, a.cfg.Host)
	}

	a.setState(session.Connecting)
	conn, endpoint, err := a.dial(ctx, endpoints)
	if err != nil {
		return err
	}
	defer a.teardown(conn)

	a.setState(session.AwaitingHandshake)
	handshake := a.cfg.Clock.NewTimer(a.cfg.Session.HandshakeTimeout)
	defer handshake.Stop()
	handshakeC := handshake.C()

	connect := frame.New(frame.CONNECT,
		frame.Header{Key: frame.HeaderAcceptVersion, Value: a.cfg.Session.AcceptVersion},
		frame.Header{Key: frame.HeaderHost, Value: a.cfg.Host},
	)
	if err := a.writeFrame(conn, connect); err != nil {
		return fmt.Errorf("write CONNECT to %s: %w", endpoint, err)
	}
	log.Debug().Str("endpoint", endpoint).Msg("client.Actor awaiting CONNECTED")

	frames := make(chan frame.Frame)
	readErr := make(chan error, 1)
	readerDone := make(chan struct{})
	defer close(readerDone)
	go a.read(conn, frames, readErr, readerDone)

	for {
		select {
		case <-ctx.Done():
			a.disconnect(conn)
			return nil

		case err := <-readErr:
			return fmt.Errorf("read from %s: %w", endpoint, err)

		case f := <-frames:
			atomic.AddInt64(&a.stats.ReadCount, 1)
			observability.RecordFrame("in", f.Command.String())
			if f.Command == frame.CONNECTED && a.st.State() == session.AwaitingHandshake {
				handshake.Stop()
				handshakeC = nil
				a.setState(session.Ready)
				a.backoff.Reset()
				log.Info().Str("endpoint", endpoint).Msg("client.Actor ready")
			}
			a.disp.dispatch(f)
			if err := a.flush(conn); err != nil {
				return err
			}

		case <-a.queue.Wake():
			if err := a.flush(conn); err != nil {
				return err
			}

		case <-a.hb.C():
			if err := a.write(conn, frame.Heartbeat); err != nil {
				return fmt.Errorf("heartbeat to %s: %w", endpoint, err)
			}
			atomic.AddInt64(&a.stats.Heartbeats, 1)
			observability.RecordHeartbeat()

		case <-handshakeC:
			return fmt.Errorf("%w: %s after %s", ErrHandshakeTimeout, endpoint, a.cfg.Session.HandshakeTimeout)
		}
	}
}

// dial tries each endpoint in order and returns the first stream that opens.
func (a *actor) dial(ctx context.Context, endpoints []string) (io.ReadWriteCloser, string, error) {
	var errs []error
	for _, endpoint := range endpoints {
		dialCtx, cancel := context.WithTimeout(ctx, a.cfg.Session.ConnectTimeout)
		conn, err := a.cfg.Transport.Dial(dialCtx, endpoint)
		cancel()
		if err == nil {
			log.Info().Str("endpoint", endpoint).Msg("client.Actor connected")
			return conn, endpoint, nil
		}
		log.Debug().Err(err).Str("endpoint", endpoint).Msg("client.Actor dial failed")
		errs = append(errs, fmt.Errorf("dial %s: %w", endpoint, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", errors.Join(errs...)
}

// read decodes frames until the stream fails. It never outlives the session:
// teardown closes the stream and done releases a pending hand-off.
func (a *actor) read(r io.Reader, frames chan<- frame.Frame, errs chan<- error, done <-chan struct{}) {
	rd := frame.NewReader(countingReader{r: r, bytes: &a.stats.ReadBytes}, a.cfg.Session.Limits)
	for {
		f, err := rd.ReadFrame()
		if err != nil {
			errs <- err
			return
		}
		select {
		case frames <- f:
		case <-done:
			return
		}
	}
}

// flush drains the queue only while Ready; frames pushed earlier wait for
// the handshake.
func (a *actor) flush(w io.Writer) error {
	if a.st.State() != session.Ready {
		return nil
	}
	return a.drain(w)
}

// drain writes every queued frame in order. On a write failure the unwritten
// frames, the failed one included, go back to the head of the queue and the
// error ends the session.
func (a *actor) drain(w io.Writer) error {
	items := a.queue.Drain()
	for i, item := range items {
		if item.apply != nil && !item.apply(a.disp) {
			continue
		}
		b, err := frame.Encode(item.frame)
		if err != nil {
			log.Error().Err(err).Str("command", item.frame.Command.String()).Msg("client.Actor dropping unencodable frame")
			a.dropped(item.frame.Command, "encode")
			continue
		}
		if err := a.write(w, b); err != nil {
			a.queue.PushFront(items[i:]...)
			a.st.connected.Store(false)
			return fmt.Errorf("write %s: %w", item.frame.Command, err)
		}
		a.wrote(item.frame.Command)
	}
	return nil
}

func (a *actor) writeFrame(w io.Writer, f frame.Frame) error {
	b, err := frame.Encode(f)
	if err != nil {
		return err
	}
	if err := a.write(w, b); err != nil {
		return err
	}
	a.wrote(f.Command)
	return nil
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// write is the only place bytes reach the transport.
func (a *actor) write(w io.Writer, b []byte) error {
	if d, ok := w.(writeDeadliner); ok && a.cfg.Session.WriteTimeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(a.cfg.Session.WriteTimeout)); err != nil {
			return err
		}
	}
	n, err := w.Write(b)
	atomic.AddInt64(&a.stats.WrittenBytes, int64(n))
	return err
}

func (a *actor) wrote(cmd frame.Command) {
	atomic.AddInt64(&a.stats.WrittenCount, 1)
	observability.RecordFrame("out", cmd.String())
}

func (a *actor) dropped(cmd frame.Command, reason string) {
	atomic.AddInt64(&a.stats.Dropped, 1)
	observability.RecordDroppedFrame(cmd.String(), reason)
}

// disconnect is the stop path: drain what is queued, then say goodbye.
// Failures here are expected while the peer goes away and are not faults.
func (a *actor) disconnect(w io.Writer) {
	if a.st.State() != session.Ready {
		return
	}
	a.setState(session.Disconnecting)
	a.hb.disarm()
	if err := a.drain(w); err != nil {
		log.Debug().Err(err).Msg("client.Actor flush on stop")
		return
	}
	if err := a.writeFrame(w, frame.New(frame.DISCONNECT)); err != nil {
		log.Debug().Err(err).Msg("client.Actor DISCONNECT on stop")
		return
	}
	log.Info().Str("host", a.cfg.Host).Msg("client.Actor disconnected")
}

// teardown closes the stream and forgets everything bound to it.
func (a *actor) teardown(conn io.Closer) {
	a.hb.disarm()
	if err := conn.Close(); err != nil {
		log.Debug().Err(err).Msg("client.Actor close")
	}
	a.st.connected.Store(false)
	a.disp.reset()
	n := a.queue.Remove(func(item outbound) bool {
		if !item.sessionBound {
			return false
		}
		a.dropped(item.frame.Command, "session_reset")
		return true
	})
	if n > 0 {
		log.Debug().Int("frames", n).Msg("client.Actor purged session-bound frames")
	}
}

func (a *actor) setState(s session.ConnectionState) {
	a.st.state.Store(int32(s))
	observability.SetConnectionState(int(s))
}
