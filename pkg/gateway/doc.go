// Package gateway bridges a raw TCP listener to an in-process Application.
//
// An Application receives an Environ describing the request and a
// StartResponse callback, and returns the response body as a sequence of
// chunks. The server handles every connection the same way:
//
//	ACCEPTED -> DECODED -> APPLICATION_INVOKED -> RESPONSE_CAPTURED -> ENCODED_AND_SENT -> CLOSED
//
//  1. One Read of at most RecvBufferSize bytes.
//  2. Decode splits the request line into method, target and version.
//     Headers are not parsed; Environ.Input yields the whole raw text.
//  3. The Application runs and calls StartResponse. The last call wins.
//     Date and Server headers are appended after the application's own.
//  4. Encode produces the status line, headers, a blank line and the body,
//     all with bare LF line endings, and the result is written in one call.
//  5. The connection is closed.
//
// Any failure along the way closes the connection without writing an error
// response. Connections are never kept alive.
//
// # Concurrency
//
// Serve runs the accept loop and starts one goroutine per connection. A
// worker shares no mutable state with other workers, so a slow, hung or
// panicking request never blocks the accept loop or another request.
// There are no read/write deadlines and no way to cancel a running worker.
//
// # Example Usage
//
//	app := gateway.ApplicationFunc(func(env *gateway.Environ, start gateway.StartResponse) (gateway.Body, error) {
//	    start("200 OK", []gateway.Header{{Name: "Content-Type", Value: "text/plain"}}, nil)
//	    return gateway.Body{[]byte("hello"), []byte(" world")}, nil
//	})
//
//	srv, err := gateway.Listen(ctx, &gateway.Config{Port: 8888})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.SetApplication(app)
//	log.Fatal(srv.Serve(ctx))
package gateway
