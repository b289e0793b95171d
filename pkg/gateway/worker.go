package gateway

import (
	"errors"
	"io"
	"net"
	"time"
)

// State is a step of the per-connection pipeline.
type State int

const (
	StateAccepted State = iota
	StateDecoded
	StateApplicationInvoked
	StateResponseCaptured
	StateEncodedAndSent
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateDecoded:
		return "decoded"
	case StateApplicationInvoked:
		return "application_invoked"
	case StateResponseCaptured:
		return "response_captured"
	case StateEncodedAndSent:
		return "encoded_and_sent"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// worker handles exactly one connection. It shares nothing mutable with
// other workers; the Server fields it reads are fixed before Serve.
type worker struct {
	srv    *Server
	conn   net.Conn
	remote string

	state State
	start time.Time

	env  *Environ
	resp ResponseState
	body Body
	sent int
	err  error

	closed bool
}

type stateFunc func(*worker) stateFunc

func newWorker(srv *Server, conn net.Conn, remote string) *worker {
	return &worker{
		srv:    srv,
		conn:   conn,
		remote: remote,
		state:  StateAccepted,
		start:  time.Now(),
	}
}

// run drives the pipeline. The connection is closed on every path.
func (w *worker) run() {
	defer func() {
		if !w.closed {
			_ = w.conn.Close()
		}
	}()
	for step := readRequest; step != nil; {
		step = step(w)
	}
}

func (w *worker) fail(err error) stateFunc {
	w.err = err
	return closeConn
}

// state funcs

func readRequest(w *worker) stateFunc {
	buf := make([]byte, RecvBufferSize)
	n, err := w.conn.Read(buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return w.fail(ErrEmptyRequest)
		}
		return w.fail(&ConnError{Op: "read", RemoteAddr: w.remote, Err: err})
	}

	cfg := w.srv.config
	env, err := decode(buf[:n], w.srv.serverName, w.srv.serverPort, cfg.Errors)
	if err != nil {
		return w.fail(err)
	}
	w.env = env
	w.state = StateDecoded
	return invokeApplication
}

func invokeApplication(w *worker) stateFunc {
	w.state = StateApplicationInvoked
	cfg := w.srv.config
	start := NewStartResponse(&w.resp, cfg.ServerIdentity, cfg.Now)
	body, err := invoke(w.srv.app, w.env, start)
	if err != nil {
		return w.fail(err)
	}
	w.body = body
	w.state = StateResponseCaptured
	return encodeAndSend
}

func encodeAndSend(w *worker) stateFunc {
	out, err := Encode(&w.resp, w.body)
	if err != nil {
		return w.fail(err)
	}
	n, err := w.conn.Write(out)
	w.sent = n
	if err != nil {
		return w.fail(&ConnError{Op: "write", RemoteAddr: w.remote, Err: err})
	}
	w.state = StateEncodedAndSent
	return closeConn
}

func closeConn(w *worker) stateFunc {
	_ = w.conn.Close()
	w.closed = true

	rec := RequestRecord{
		Remote:   w.remote,
		Status:   w.resp.Status(),
		Bytes:    w.sent,
		Started:  w.start,
		Duration: time.Since(w.start),
		State:    w.state,
		Err:      w.err,
	}
	if w.env != nil {
		rec.Method = w.env.RequestMethod
		rec.Path = w.env.PathInfo
	}
	w.state = StateClosed

	w.log(rec)
	w.srv.config.Hooks.OnComplete(rec)
	return nil
}

func (w *worker) log(rec RequestRecord) {
	logger := w.srv.logger.With(
		"remote", rec.Remote,
		"state", rec.State.String(),
		"duration", rec.Duration,
	)
	if rec.Err == nil {
		logger.Debug("request served",
			"method", rec.Method,
			"path", rec.Path,
			"status", rec.Status,
			"bytes", rec.Bytes)
		return
	}

	var panicErr *ApplicationPanicError
	switch {
	case errors.As(rec.Err, &panicErr):
		logger.Error("application panic",
			"error", rec.Err,
			"stack", string(panicErr.Stack))
	case rec.State >= StateDecoded:
		logger.Error("request aborted",
			"method", rec.Method,
			"path", rec.Path,
			"error", rec.Err)
	default:
		logger.Warn("request dropped", "error", rec.Err)
	}
}
