package session

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/danmuck/stompctl/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterBounds(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 1, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		got := NextBackoffDelay(cfg, 1, rng)
		if got < 500*time.Millisecond || got >= 1500*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestDefaultBackoffIsFixed(t *testing.T) {
	testlog.Start(t)
	b := NewBackoff(DefaultConfig().Backoff, nil)
	for i := 1; i <= 5; i++ {
		if got := b.Next(); got != 3*time.Second {
			t.Fatalf("attempt %d got=%v", i, got)
		}
	}
	if b.Attempt() != 5 {
		t.Fatalf("attempt=%d", b.Attempt())
	}
	b.Reset()
	if b.Attempt() != 0 {
		t.Fatalf("reset did not clear attempt")
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HeartbeatInterval: time.Second, AckMode: AckClient}.WithDefaults()
	d := DefaultConfig()
	if cfg.HeartbeatInterval != time.Second {
		t.Fatalf("explicit heartbeat overwritten: %v", cfg.HeartbeatInterval)
	}
	if cfg.AckMode != AckClient {
		t.Fatalf("ack mode overwritten: %v", cfg.AckMode)
	}
	if cfg.Backoff != d.Backoff || cfg.Limits != d.Limits || cfg.AcceptVersion != "1.1" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cfg.AckMode = AckMode(9)
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	cfg.AckMode = AckAuto
	cfg.Limits = frame.Limits{MaxBodyBytes: -1}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for limits, got %v", err)
	}
}

func TestAckModes(t *testing.T) {
	testlog.Start(t)
	for _, raw := range []string{"auto", "client", "client-individual"} {
		m, err := ParseAckMode(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if m.String() != raw {
			t.Fatalf("round trip %q -> %q", raw, m.String())
		}
	}
	if _, err := ParseAckMode("sometimes"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if AckAuto.RequiresAck() || !AckClient.RequiresAck() || !AckClientIndividual.RequiresAck() {
		t.Fatalf("unexpected RequiresAck table")
	}
	if Ready.String() != "ready" || AwaitingHandshake.String() != "awaiting-handshake" {
		t.Fatalf("unexpected state names")
	}
}

func TestQueueOrderAndWake(t *testing.T) {
	testlog.Start(t)
	q := NewQueue[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	select {
	case <-q.Wake():
	default:
		t.Fatalf("no wake signal after push")
	}
	select {
	case <-q.Wake():
		t.Fatalf("wake signals should coalesce")
	default:
	}

	got := q.Drain()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected drain order: %v", got)
	}
	if q.Len() != 0 || len(q.Drain()) != 0 {
		t.Fatalf("queue not empty after drain")
	}
}

func TestQueuePushFrontAndRemove(t *testing.T) {
	testlog.Start(t)
	q := NewQueue[string]()
	q.Push("c")
	q.PushFront("a", "b")
	q.Push("ack")

	if n := q.Remove(func(s string) bool { return s == "ack" }); n != 1 {
		t.Fatalf("removed=%d", n)
	}
	got := q.Drain()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestQueueConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	testlog.Start(t)
	type item struct{ producer, seq int }
	q := NewQueue[item]()

	const producers, perProducer = 8, 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(item{p, i})
			}
		}(p)
	}

	var got []item
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-q.Wake():
			got = append(got, q.Drain()...)
			continue
		case <-done:
		}
		break
	}
	got = append(got, q.Drain()...)

	if len(got) != producers*perProducer {
		t.Fatalf("lost items: got=%d", len(got))
	}
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	for _, it := range got {
		if it.seq != last[it.producer]+1 {
			t.Fatalf("producer %d out of order: %d after %d", it.producer, it.seq, last[it.producer])
		}
		last[it.producer] = it.seq
	}
}
