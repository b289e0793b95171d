package gateway

import "time"

// RequestRecord summarizes one connection after it has been closed.
type RequestRecord struct {
	Remote   string
	Method   string
	Path     string
	Status   string
	Bytes    int
	Started  time.Time
	Duration time.Duration

	// State is the last state reached before the connection was closed.
	State State
	Err   error
}

// Hooks observe the dispatcher. Implementations are called from the
// accept loop and from workers concurrently and must not block.
type Hooks interface {
	OnAccept(remote string)
	OnComplete(rec RequestRecord)
}

// NopHooks ignores every event. Embed it to implement a subset of Hooks.
type NopHooks struct{}

func (NopHooks) OnAccept(string)          {}
func (NopHooks) OnComplete(RequestRecord) {}

type multiHooks []Hooks

// MultiHooks fans events out to every hook in order. Nil entries are skipped.
func MultiHooks(hooks ...Hooks) Hooks {
	var hs multiHooks
	for _, h := range hooks {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return hs
}

func (m multiHooks) OnAccept(remote string) {
	for _, h := range m {
		h.OnAccept(remote)
	}
}

func (m multiHooks) OnComplete(rec RequestRecord) {
	for _, h := range m {
		h.OnComplete(rec)
	}
}
