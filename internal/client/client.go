package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/danmuck/stompctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/someonegg/gox/syncx"
)

var (
	ErrHostRequired         = errors.New("client: host is required")
	ErrInvalidPort          = errors.New("client: invalid port")
	ErrInvalidClientCommand = errors.New("client: not a client command")
	ErrReservedCommand      = errors.New("client: command is reserved for the connection actor")
	ErrStopped              = errors.New("client: stopped")
	ErrAlreadyStarted       = errors.New("client: already started")
	ErrHandshakeTimeout     = errors.New("client: handshake timeout")
	ErrNoEndpoints          = errors.New("client: resolver returned no endpoints")
)

// Config defines one client's broker and collaborators.
type Config struct {
	Host    string
	Port    int
	Session session.Config

	// Nil collaborators fall back to NetResolver, TCPTransport and the
	// system clock.
	Resolver  Resolver
	Transport Transport
	Clock     session.Clock

	// OnError receives every ERROR frame. The session stays up.
	OnError func(frame.Frame)
}

func DefaultConfig() Config {
	return Config{
		Host:    "localhost",
		Port:    61613,
		Session: session.DefaultConfig(),
	}
}

// Client is safe for concurrent use. Every operation returning bool reports
// whether the frame was accepted into the send pipeline, not whether the
// broker received it.
type Client struct {
	cfg   Config
	queue *session.Queue[outbound]
	st    *status
	stats Statistics
	actor *actor

	txn     atomic.Int64
	receipt atomic.Int64
	stopped atomic.Bool

	mu       sync.Mutex
	started  bool
	quitF    context.CancelFunc
	stopD    syncx.DoneChan
	stopOnce sync.Once
}

func New(cfg Config) (*Client, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, ErrHostRequired
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, cfg.Port)
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	if cfg.Resolver == nil {
		cfg.Resolver = NetResolver{}
	}
	if cfg.Transport == nil {
		cfg.Transport = &TCPTransport{}
	}
	if cfg.Clock == nil {
		cfg.Clock = session.SystemClock()
	}

	c := &Client{
		cfg:   cfg,
		queue: session.NewQueue[outbound](),
		st:    newStatus(),
		stopD: syncx.NewDoneChan(),
	}
	c.actor = newActor(cfg, c.queue, c.st, &c.stats)
	return c, nil
}

// Start launches the connection actor. It returns immediately; the actor
// keeps reconnecting until Stop or until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	ctx, c.quitF = context.WithCancel(ctx)
	log.Info().Str("host", c.cfg.Host).Int("port", c.cfg.Port).Msg("client.Client starting")
	go func() {
		defer c.stopD.SetDone()
		c.actor.run(ctx)
	}()
	return nil
}

// Stop sends DISCONNECT if the session is Ready, closes the transport and
// waits for the actor to exit. It is idempotent. Handlers must use Shutdown
// instead: they run on the actor, which Stop waits for.
func (c *Client) Stop() {
	c.Shutdown()
	<-c.stopD
}

// Shutdown requests the same stop as Stop and returns immediately; StopD is
// signaled once the actor has exited.
func (c *Client) Shutdown() {
	c.stopped.Store(true)
	c.mu.Lock()
	started, quit := c.started, c.quitF
	c.mu.Unlock()
	if !started {
		c.stopOnce.Do(c.stopD.SetDone)
		return
	}
	quit()
}

// StopD is signaled once the actor has exited.
func (c *Client) StopD() syncx.DoneChanR {
	return c.stopD.R()
}

func (c *Client) Stopped() bool {
	return c.stopD.R().Done()
}

func (c *Client) State() session.ConnectionState {
	return c.st.State()
}

func (c *Client) Connected() bool {
	return c.st.connected.Load()
}

// ProtocolVersion is the version the broker announced, "1.0" until then.
func (c *Client) ProtocolVersion() string {
	return c.st.Version()
}

func (c *Client) Statistics() Statistics {
	return c.stats.snapshot()
}

// Subscribe registers h for topic and subscribes on the broker. The
// subscription survives reconnects. Subscribing again replaces the handler
// without another SUBSCRIBE. A nil handler accepts every message.
func (c *Client) Subscribe(topic string, h Handler) bool {
	if topic == "" {
		return false
	}
	mode := c.cfg.Session.AckMode
	return c.enqueue(outbound{
		frame: subscribeFrame(topic, mode),
		apply: func(d *dispatcher) bool {
			_, exists := d.subs[topic]
			d.subs[topic] = h
			return !exists
		},
	})
}

// Unsubscribe forgets topic. Nothing is written if topic was never
// subscribed.
func (c *Client) Unsubscribe(topic string) bool {
	if topic == "" {
		return false
	}
	return c.enqueue(outbound{
		frame: unsubscribeFrame(topic),
		apply: func(d *dispatcher) bool {
			if _, ok := d.subs[topic]; !ok {
				return false
			}
			delete(d.subs, topic)
			return true
		},
	})
}

// Send publishes body to topic. headers may be nil; its content-length, if
// any, is recomputed.
func (c *Client) Send(topic string, headers frame.Headers, body []byte) bool {
	f, ok := sendFrame(topic, headers, body)
	if !ok {
		return false
	}
	return c.enqueue(outbound{frame: f})
}

// SendWithReceipt is Send plus a receipt request; fn runs on the actor when
// the matching RECEIPT arrives. A session that dies first never calls fn.
func (c *Client) SendWithReceipt(topic string, headers frame.Headers, body []byte, fn ReceiptFunc) bool {
	f, ok := sendFrame(topic, headers, body)
	if !ok {
		return false
	}
	id := "send-" + strconv.FormatInt(c.receipt.Add(1), 10)
	f.Headers.Set(frame.HeaderReceipt, id)
	return c.enqueue(outbound{
		frame: f,
		apply: func(d *dispatcher) bool {
			d.receipts[id] = fn
			return true
		},
	})
}

func sendFrame(topic string, headers frame.Headers, body []byte) (frame.Frame, bool) {
	if topic == "" {
		return frame.Frame{}, false
	}
	h := headers.Clone()
	h.Set(frame.HeaderDestination, topic)
	return frame.Frame{Command: frame.SEND, Headers: h, Body: body}, true
}

// SendFrame queues an arbitrary client frame. Frames the actor manages
// itself, and anything that is not a client command, are rejected before
// they reach the queue.
func (c *Client) SendFrame(f frame.Frame) error {
	switch {
	case f.Command == frame.Unknown:
		return frame.ErrEmptyCommand
	case !f.Command.IsClient():
		return fmt.Errorf("%w: %s", ErrInvalidClientCommand, f.Command)
	case f.Command == frame.CONNECT || f.Command == frame.DISCONNECT:
		return fmt.Errorf("%w: %s", ErrReservedCommand, f.Command)
	}
	f.Headers = f.Headers.Clone()
	bound := f.Command == frame.ACK || f.Command == frame.NACK
	if !c.enqueue(outbound{frame: f, sessionBound: bound}) {
		return ErrStopped
	}
	return nil
}

// Acknowledge answers msg with ACK (accepted) or NACK. msg must carry a
// message-id. Acknowledgements are dropped if the session ends first.
func (c *Client) Acknowledge(msg frame.Frame, accepted bool) bool {
	if _, ok := msg.Headers.Get(frame.HeaderMessageID); !ok {
		return false
	}
	return c.enqueue(outbound{frame: ackFrame(msg, accepted), sessionBound: true})
}

// Begin allocates the next transaction id and queues BEGIN for it. Ids
// start at 1.
func (c *Client) Begin() (int, bool) {
	id := int(c.txn.Add(1))
	return id, c.enqueue(outbound{frame: txFrame(frame.BEGIN, id)})
}

func (c *Client) Commit(id int) bool {
	return c.enqueue(outbound{frame: txFrame(frame.COMMIT, id)})
}

func (c *Client) Abort(id int) bool {
	return c.enqueue(outbound{frame: txFrame(frame.ABORT, id)})
}

func txFrame(cmd frame.Command, id int) frame.Frame {
	return frame.New(cmd, frame.Header{Key: frame.HeaderTransaction, Value: strconv.Itoa(id)})
}

func (c *Client) enqueue(item outbound) bool {
	if c.stopped.Load() {
		return false
	}
	c.queue.Push(item)
	return true
}
