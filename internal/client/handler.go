package client

import "github.com/danmuck/stompctl/internal/protocol/frame"

// Handler receives MESSAGE frames for one destination.
//
// The returned verdict selects ACK (true) or NACK (false) when the ack mode
// requires acknowledgements. A panicking handler counts as a NACK.
//
// Handlers run on the connection actor. They may call any Client method
// except Stop, which waits for the actor; use Shutdown to stop from a handler.
type Handler interface {
	OnMessage(f frame.Frame) bool
}

// The HandlerFunc type is an adapter to allow the use of ordinary functions
// as message handlers.
type HandlerFunc func(f frame.Frame) bool

// OnMessage calls h(f).
func (h HandlerFunc) OnMessage(f frame.Frame) bool {
	return h(f)
}

// ObserverFunc is a handler with no verdict; every message is accepted.
type ObserverFunc func(f frame.Frame)

func (o ObserverFunc) OnMessage(f frame.Frame) bool {
	o(f)
	return true
}

// ReceiptFunc is called with the RECEIPT frame answering a send.
type ReceiptFunc func(f frame.Frame)
