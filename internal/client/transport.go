package client

import (
	"context"
	"io"
	"net"
	"strconv"
)

// Resolver maps a host and port to an ordered list of dialable endpoints.
type Resolver interface {
	Resolve(ctx context.Context, host string, port int) ([]string, error)
}

// Transport opens a byte stream to one endpoint.
//
// A stream that also implements SetWriteDeadline(time.Time) error gets every
// write bounded by the session write timeout.
type Transport interface {
	Dial(ctx context.Context, endpoint string) (io.ReadWriteCloser, error)
}

type ResolverFunc func(ctx context.Context, host string, port int) ([]string, error)

func (f ResolverFunc) Resolve(ctx context.Context, host string, port int) ([]string, error) {
	return f(ctx, host, port)
}

type TransportFunc func(ctx context.Context, endpoint string) (io.ReadWriteCloser, error)

func (f TransportFunc) Dial(ctx context.Context, endpoint string) (io.ReadWriteCloser, error) {
	return f(ctx, endpoint)
}

// NetResolver resolves through the system resolver.
type NetResolver struct {
	Resolver *net.Resolver
}

func (r NetResolver) Resolve(ctx context.Context, host string, port int) ([]string, error) {
	res := r.Resolver
	if res == nil {
		res = net.DefaultResolver
	}
	addrs, err := res.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, net.JoinHostPort(addr, strconv.Itoa(port)))
	}
	return out, nil
}

// TCPTransport dials plain TCP.
type TCPTransport struct {
	Dialer net.Dialer
}

func (t *TCPTransport) Dial(ctx context.Context, endpoint string) (io.ReadWriteCloser, error) {
	conn, err := t.Dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
