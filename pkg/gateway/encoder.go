package gateway

import (
	"bytes"
	"unicode/utf8"
)

// Encode serializes a captured response. Lines end in a bare LF, not CRLF.
func Encode(state *ResponseState, body Body) ([]byte, error) {
	if state == nil || !state.Started() {
		return nil, ErrResponseNotStarted
	}

	var buf bytes.Buffer
	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(state.Status())
	buf.WriteByte('\n')
	for _, h := range state.Headers() {
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	for _, chunk := range body {
		if !utf8.Valid(chunk) {
			return nil, ErrInvalidEncoding
		}
		buf.Write(chunk)
	}
	return buf.Bytes(), nil
}
