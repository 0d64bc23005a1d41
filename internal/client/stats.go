package client

import (
	"io"
	"sync/atomic"
)

// Statistics counts session traffic over the client's lifetime.
type Statistics struct {
	// from the transport
	ReadCount int64
	ReadBytes int64

	// to the transport
	WrittenCount int64
	WrittenBytes int64

	Heartbeats int64
	Reconnects int64
	// outbound frames discarded before reaching the wire
	Dropped int64
}

func (s *Statistics) snapshot() Statistics {
	return Statistics{
		ReadCount:    atomic.LoadInt64(&s.ReadCount),
		ReadBytes:    atomic.LoadInt64(&s.ReadBytes),
		WrittenCount: atomic.LoadInt64(&s.WrittenCount),
		WrittenBytes: atomic.LoadInt64(&s.WrittenBytes),
		Heartbeats:   atomic.LoadInt64(&s.Heartbeats),
		Reconnects:   atomic.LoadInt64(&s.Reconnects),
		Dropped:      atomic.LoadInt64(&s.Dropped),
	}
}

type countingReader struct {
	r     io.Reader
	bytes *int64
}

func (c countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	atomic.AddInt64(c.bytes, int64(n))
	return n, err
}
