package frame

import (
	"errors"
	"fmt"
)

// Well-known header names.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderAck           = "ack"
	HeaderContentLength = "content-length"
	HeaderContentType   = "content-type"
	HeaderDestination   = "destination"
	HeaderHost          = "host"
	HeaderID            = "id"
	HeaderMessage       = "message"
	HeaderMessageID     = "message-id"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderSubscription  = "subscription"
	HeaderTransaction   = "transaction"
	HeaderVersion       = "version"
)

var (
	ErrEmptyCommand   = errors.New("frame: command not set")
	ErrInvalidCommand = errors.New("frame: invalid command")
	ErrNoFrame        = errors.New("frame: no complete frame buffered")
)

// ErrorCode classifies a ProtocolError.
type ErrorCode uint16

const (
	CodeBadContentLength ErrorCode = iota + 1
	CodeMissingTerminator
	CodeHeaderTooLarge
	CodeBodyTooLarge
)

// ProtocolError reports a byte stream that can no longer be framed. The
// connection carrying it is desynchronized and must be reset.
type ProtocolError struct {
	Code ErrorCode
	Msg  string
}

func (e *ProtocolError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("frame: protocol error (%d)", e.Code)
	}
	return fmt.Sprintf("frame: protocol error (%d): %s", e.Code, e.Msg)
}

func protocolError(code ErrorCode, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// IsProtocolError unwraps err to a *ProtocolError if it is one.
func IsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Header is one key/value pair.
type Header struct {
	Key   string
	Value string
}

// Headers keeps header pairs in insertion order. Keys are unique.
type Headers []Header

func (h Headers) Get(key string) (string, bool) {
	for _, kv := range h {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Value returns the value for key, or "" when absent.
func (h Headers) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

// Set replaces the value of an existing key in place, or appends it.
func (h *Headers) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Key: key, Value: value})
}

func (h *Headers) Del(key string) {
	out := (*h)[:0]
	for _, kv := range *h {
		if kv.Key != key {
			out = append(out, kv)
		}
	}
	*h = out
}

func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// Frame is one complete protocol message.
type Frame struct {
	Command Command
	Headers Headers
	Body    []byte
}

// New builds a frame from a command and header pairs.
func New(cmd Command, headers ...Header) Frame {
	return Frame{Command: cmd, Headers: Headers(headers).Clone()}
}

func (f Frame) Header(key string) string {
	return f.Headers.Value(key)
}

// Limits constrains decoder memory use. Zero means unlimited.
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int
}

func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes: 64 * 1024,
		MaxBodyBytes:   8 * 1024 * 1024,
	}
}
