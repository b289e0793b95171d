package gateway

import (
	"testing"
	"time"
)

func BenchmarkDecode(b *testing.B) {
	b.Run("request line only", func(b *testing.B) {
		raw := []byte("GET / HTTP/1.1")
		for i := 0; i < b.N; i++ {
			_, _ = Decode(raw, "localhost", 8888)
		}
	})

	b.Run("with headers", func(b *testing.B) {
		raw := []byte("GET /index.html HTTP/1.1\r\nHost: localhost\r\nUser-Agent: bench\r\nAccept: */*\r\n\r\n")
		for i := 0; i < b.N; i++ {
			_, _ = Decode(raw, "localhost", 8888)
		}
	})
}

func BenchmarkEncode(b *testing.B) {
	now := func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local) }
	headers := []Header{{Name: "Content-Type", Value: "text/plain"}}

	b.Run("single chunk", func(b *testing.B) {
		body := Body{[]byte("Hello world from a simple WSGI application!\n")}
		for i := 0; i < b.N; i++ {
			var state ResponseState
			NewStartResponse(&state, DefaultServerIdentity, now)("200 OK", headers, nil)
			_, _ = Encode(&state, body)
		}
	})

	b.Run("many chunks", func(b *testing.B) {
		body := make(Body, 64)
		for i := range body {
			body[i] = []byte("chunk of text\n")
		}
		for i := 0; i < b.N; i++ {
			var state ResponseState
			NewStartResponse(&state, DefaultServerIdentity, now)("200 OK", headers, nil)
			_, _ = Encode(&state, body)
		}
	})
}
