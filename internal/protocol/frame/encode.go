package frame

import (
	"io"
	"strconv"
)

// Heartbeat is the minimal liveness frame: a single line terminator.
var Heartbeat = []byte{'\n'}

// Encode returns the wire bytes for f.
func Encode(f Frame) ([]byte, error) {
	return AppendFrame(nil, f)
}

// AppendFrame appends the wire form of f to dst.
//
// A content-length header is always derived from the body: an existing one is
// rewritten in place, otherwise one is appended when the body is non-empty.
func AppendFrame(dst []byte, f Frame) ([]byte, error) {
	if f.Command == Unknown {
		return dst, ErrEmptyCommand
	}
	if !f.Command.Valid() {
		return dst, ErrInvalidCommand
	}
	escape := escapesHeaders(f.Command)

	dst = append(dst, f.Command.String()...)
	dst = append(dst, '\n')

	hasLength := false
	for _, h := range f.Headers {
		if h.Key == HeaderContentLength {
			if hasLength {
				continue
			}
			hasLength = true
			dst = appendHeader(dst, h.Key, strconv.Itoa(len(f.Body)), false)
			continue
		}
		dst = appendHeader(dst, h.Key, h.Value, escape)
	}
	if !hasLength && len(f.Body) > 0 {
		dst = appendHeader(dst, HeaderContentLength, strconv.Itoa(len(f.Body)), false)
	}

	dst = append(dst, '\n')
	dst = append(dst, f.Body...)
	dst = append(dst, 0)
	return dst, nil
}

func appendHeader(dst []byte, key, value string, escape bool) []byte {
	if escape {
		key, value = EncodeToken(key), EncodeToken(value)
	}
	dst = append(dst, key...)
	dst = append(dst, ':')
	dst = append(dst, value...)
	return append(dst, '\n')
}

// WriteFrame encodes f and writes it with a single Write call.
func WriteFrame(w io.Writer, f Frame) error {
	b, err := Encode(f)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func WriteHeartbeat(w io.Writer) error {
	_, err := w.Write(Heartbeat)
	return err
}
