package frame

import "strings"

var (
	tokenEncoder = strings.NewReplacer(`\`, `\\`, "\n", `\n`, ":", `\c`)
	tokenDecoder = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\c`, ":")
)

// EncodeToken escapes a header key or value for the wire.
func EncodeToken(s string) string {
	return tokenEncoder.Replace(s)
}

// DecodeToken reverses EncodeToken. Unknown escape sequences are kept as-is.
func DecodeToken(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	return tokenDecoder.Replace(s)
}

// CONNECT and CONNECTED headers stay raw for STOMP 1.0 peers.
func escapesHeaders(c Command) bool {
	return c != CONNECT && c != CONNECTED
}
