package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/loreleibot/lorelei/structs"
)

// Waiter is a pending request for a correlated dispatch event. The
// dispatcher resolves it when an event with a matching name and
// predicate arrives; Await enforces the deadline.
type Waiter struct {
	event     structs.EventName
	predicate func(json.RawMessage) bool
	ch        chan json.RawMessage
	s         *Session
}

// WaitFor registers interest in the next dispatch of event whose
// payload satisfies predicate. The caller must Await or Cancel.
func (s *Session) WaitFor(event structs.EventName, predicate func(json.RawMessage) bool) *Waiter {
	w := &Waiter{event: event, predicate: predicate, ch: make(chan json.RawMessage, 1), s: s}
	s.waitersMu.Lock()
	s.waiters[w] = struct{}{}
	s.waitersMu.Unlock()
	return w
}

func (w *Waiter) Cancel() {
	w.s.waitersMu.Lock()
	delete(w.s.waiters, w)
	w.s.waitersMu.Unlock()
}

// Await blocks until the matching event arrives or the deadline
// passes, in which case it fails with ErrRequestTimeout.
func (w *Waiter) Await(ctx context.Context, timeout time.Duration) (json.RawMessage, error) {
	defer w.Cancel()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data := <-w.ch:
		return data, nil
	case <-timer.C:
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) resolveWaiters(event structs.EventName, data json.RawMessage) {
	s.waitersMu.Lock()
	defer s.waitersMu.Unlock()
	for w := range s.waiters {
		if w.event != event {
			continue
		}
		if w.predicate != nil && !w.predicate(data) {
			continue
		}
		select {
		case w.ch <- data:
		default:
		}
		delete(s.waiters, w)
	}
}
