package frame

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

// Decode parses one frame from the front of buf.
//
// Lines that are not a command in accept are skipped. The returned count is
// the number of bytes the caller must discard from buf; it is non-zero with
// ErrNoFrame when only skipped lines were consumed. Incomplete frames are
// never partially consumed.
func Decode(buf []byte, accept CommandSet, limits Limits) (Frame, int, error) {
	var (
		cmd   Command
		start int
		off   int
	)
	for {
		i := bytes.IndexByte(buf[off:], '\n')
		if i < 0 {
			if limits.MaxHeaderBytes > 0 && len(buf)-off > limits.MaxHeaderBytes {
				return Frame{}, off, protocolError(CodeHeaderTooLarge, "unterminated line of %d bytes", len(buf)-off)
			}
			return Frame{}, off, ErrNoFrame
		}
		line := trimCR(buf[off : off+i])
		next := off + i + 1
		if c, ok := ParseCommand(string(line)); ok && accept.Has(c) {
			cmd, start, off = c, off, next
			break
		}
		off = next
	}

	escape := escapesHeaders(cmd)
	var headers Headers
	for {
		i := bytes.IndexByte(buf[off:], '\n')
		if i < 0 {
			if limits.MaxHeaderBytes > 0 && len(buf)-start > limits.MaxHeaderBytes {
				return Frame{}, start, protocolError(CodeHeaderTooLarge, "%s header block exceeds %d bytes", cmd, limits.MaxHeaderBytes)
			}
			return Frame{}, start, ErrNoFrame
		}
		// header lines keep a trailing CR; it is part of the value
		line := buf[off : off+i]
		off += i + 1
		// a blank or colon-less line ends the header block
		sep := bytes.IndexByte(line, ':')
		if len(trimCR(line)) == 0 || sep < 0 {
			break
		}
		key, value := string(line[:sep]), string(line[sep+1:])
		if escape {
			key, value = DecodeToken(key), DecodeToken(value)
		}
		if _, dup := headers.Get(key); dup {
			continue
		}
		headers = append(headers, Header{Key: key, Value: value})
	}
	if limits.MaxHeaderBytes > 0 && off-start > limits.MaxHeaderBytes {
		return Frame{}, start, protocolError(CodeHeaderTooLarge, "%s header block exceeds %d bytes", cmd, limits.MaxHeaderBytes)
	}

	if raw, ok := headers.Get(HeaderContentLength); ok {
		n, err := strconv.ParseUint(raw, 10, 31)
		if err != nil {
			return Frame{}, start, protocolError(CodeBadContentLength, "content-length %q", raw)
		}
		size := int(n)
		if limits.MaxBodyBytes > 0 && size > limits.MaxBodyBytes {
			return Frame{}, start, protocolError(CodeBodyTooLarge, "content-length %d exceeds %d", size, limits.MaxBodyBytes)
		}
		if len(buf)-off < size+1 {
			return Frame{}, start, ErrNoFrame
		}
		if buf[off+size] != 0 {
			return Frame{}, start, protocolError(CodeMissingTerminator, "no NUL after %d byte body", size)
		}
		body := cloneBytes(buf[off : off+size])
		return Frame{Command: cmd, Headers: headers, Body: body}, off + size + 1, nil
	}

	end := bytes.IndexByte(buf[off:], 0)
	if end < 0 {
		if limits.MaxBodyBytes > 0 && len(buf)-off > limits.MaxBodyBytes {
			return Frame{}, start, protocolError(CodeBodyTooLarge, "unterminated body exceeds %d bytes", limits.MaxBodyBytes)
		}
		return Frame{}, start, ErrNoFrame
	}
	body := cloneBytes(buf[off : off+end])
	return Frame{Command: cmd, Headers: headers, Body: body}, off + end + 1, nil
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

// Buffer is an append-only receive buffer with a read cursor. Decoded frames
// never alias its storage.
type Buffer struct {
	Accept CommandSet
	Limits Limits

	data []byte
	off  int
}

// Write appends p. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.off > 0 && b.off >= len(b.data)/2 {
		n := copy(b.data, b.data[b.off:])
		b.data = b.data[:n]
		b.off = 0
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// Len is the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// Bytes returns the unconsumed bytes. The slice is only valid until the next
// Write or Next.
func (b *Buffer) Bytes() []byte {
	return b.data[b.off:]
}

func (b *Buffer) consume(n int) {
	if n < 0 || n > b.Len() {
		panic("frame: consume past end of buffer")
	}
	b.off += n
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
	}
}

// Next decodes and consumes the next frame. It returns ErrNoFrame when more
// bytes are needed.
func (b *Buffer) Next() (Frame, error) {
	accept := b.Accept
	if accept == 0 {
		accept = ServerCommands
	}
	f, n, err := Decode(b.Bytes(), accept, b.Limits)
	b.consume(n)
	return f, err
}

// Reader decodes frames from a byte stream.
type Reader struct {
	r     io.Reader
	buf   Buffer
	chunk []byte
	err   error
}

// NewReader reads server frames from r.
func NewReader(r io.Reader, limits Limits) *Reader {
	return NewReaderFor(r, ServerCommands, limits)
}

// NewReaderFor reads frames whose command is in accept.
func NewReaderFor(r io.Reader, accept CommandSet, limits Limits) *Reader {
	return &Reader{
		r:     r,
		buf:   Buffer{Accept: accept, Limits: limits},
		chunk: make([]byte, 4096),
	}
}

// ReadFrame blocks until a full frame is buffered. A read error is returned
// only once every frame already buffered has been handed out.
func (r *Reader) ReadFrame() (Frame, error) {
	for {
		f, err := r.buf.Next()
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, ErrNoFrame) {
			return Frame{}, err
		}
		if r.err != nil {
			return Frame{}, r.err
		}
		n, err := r.r.Read(r.chunk)
		r.buf.Write(r.chunk[:n])
		r.err = err
	}
}

// Buffered is the number of received bytes not yet decoded.
func (r *Reader) Buffered() int {
	return r.buf.Len()
}
