// Package client is a long-lived STOMP 1.1 client.
//
// One actor goroutine owns the transport, the connection state machine, the
// subscription registry and the heartbeat. Application goroutines only push
// frames onto a queue that the actor drains in order while the session is
// Ready. Transport faults are never fatal: the actor tears the session down,
// waits out the reconnect backoff and starts over from name resolution,
// re-subscribing every registered destination after the next CONNECTED.
package client
