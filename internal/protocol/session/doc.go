// Package session holds the connection-scoped primitives shared by the
// client actor: configuration, reconnect backoff, the outbound queue, the
// clock abstraction and the connection state enum.
//
// Nothing in this package performs I/O.
package session
