package frame

import (
	"fmt"
	"io"
)

// Dump writes a human-readable rendering of f, for debugging.
//
// The layout is:
//
//	R|W:COMMAND:BodySize
//	key=value
//	...
//	Body
func Dump(w io.Writer, f Frame, read bool) {
	dir := "W"
	if read {
		dir = "R"
	}
	fmt.Fprintf(w, "%s:%s:%d\n", dir, f.Command, len(f.Body))
	for _, h := range f.Headers {
		fmt.Fprintf(w, "%s=%s\n", h.Key, h.Value)
	}
	w.Write(f.Body)
	fmt.Fprint(w, "\n\n")
}
