package fabric

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to a closed bus.
var ErrClosed = errors.New("fabric: bus closed")

// Local is an in-process bus for single-node deployments and tests.
// Publish delivers synchronously on the caller's goroutine.
type Local struct {
	mu     sync.RWMutex
	subs   map[*localSub]struct{}
	closed bool
}

type localSub struct {
	bus     *Local
	pattern string
	handler Handler
}

// NewLocal creates an in-process bus.
func NewLocal() *Local {
	return &Local{subs: make(map[*localSub]struct{})}
}

func (l *Local) Publish(_ context.Context, subject string, payload []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrClosed
	}
	for sub := range l.subs {
		if Match(sub.pattern, subject) {
			sub.handler(subject, payload)
		}
	}
	return nil
}

func (l *Local) Subscribe(_ context.Context, pattern string, h Handler) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	sub := &localSub{bus: l, pattern: pattern, handler: h}
	l.subs[sub] = struct{}{}
	return sub, nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.subs = make(map[*localSub]struct{})
	return nil
}

func (s *localSub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subs, s)
	return nil
}

var _ Bus = (*Local)(nil)
