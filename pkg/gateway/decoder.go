package gateway

import (
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RecvBufferSize is the size of the single read performed per connection.
// Anything the client sends beyond it is never read.
const RecvBufferSize = 2048

// Decode turns the first chunk received on a connection into an Environ.
// Only the request line is parsed; the headers stay embedded in Input.
func Decode(raw []byte, serverName string, serverPort int) (*Environ, error) {
	return decode(raw, serverName, serverPort, os.Stderr)
}

func decode(raw []byte, serverName string, serverPort int, errw io.Writer) (*Environ, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyRequest
	}
	if !utf8.Valid(raw) {
		return nil, ErrInvalidEncoding
	}
	text := string(raw)

	line := firstLine(text)
	fields := strings.FieldsFunc(line, isFieldSep)
	if len(fields) < 3 {
		return nil, &MalformedRequestError{Line: line}
	}

	return &Environ{
		Version:        [2]int{1, 0},
		Input:          strings.NewReader(text),
		Errors:         errw,
		URLScheme:      "http",
		MultiThread:    false,
		MultiProcess:   false,
		RunOnce:        false,
		RequestMethod:  fields[0],
		PathInfo:       fields[1],
		ServerProtocol: fields[2],
		ServerName:     serverName,
		ServerPort:     serverPort,
	}, nil
}

// firstLine returns text up to the first line boundary. Besides \r and \n,
// the vertical tab, form feed, the \x1c-\x1e separators, NEL and the
// Unicode line and paragraph separators all end a line.
func firstLine(text string) string {
	if i := strings.IndexFunc(text, isLineBreak); i >= 0 {
		return text[:i]
	}
	return text
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
		return true
	}
	return false
}

// isFieldSep reports whether r separates request-line fields. The \x1c-\x1f
// separators count as whitespace here even though unicode.IsSpace rejects them.
func isFieldSep(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
