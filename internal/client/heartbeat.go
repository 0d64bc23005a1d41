package client

import (
	"time"

	"github.com/danmuck/stompctl/internal/protocol/session"
)

// heartbeat is the actor's periodic liveness ticker. It is only armed while
// a 1.1 session is Ready.
type heartbeat struct {
	clock    session.Clock
	interval time.Duration
	ticker   session.Ticker
}

func (h *heartbeat) arm() {
	if h.ticker != nil {
		return
	}
	h.ticker = h.clock.NewTicker(h.interval)
}

func (h *heartbeat) disarm() {
	if h.ticker == nil {
		return
	}
	h.ticker.Stop()
	h.ticker = nil
}

// C is nil while disarmed, so selecting on it blocks.
func (h *heartbeat) C() <-chan time.Time {
	if h.ticker == nil {
		return nil
	}
	return h.ticker.C()
}

func (h *heartbeat) armed() bool {
	return h.ticker != nil
}
