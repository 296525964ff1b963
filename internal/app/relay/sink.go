package relay

import (
	"errors"
	"fmt"
	"sync"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

// ErrSinkClosed is returned once the receiver of a run is gone.
var ErrSinkClosed = errors.New("sink closed")

// GuardedSink wraps a sink so that it can be closed exactly once. The
// first failed write closes it; every later Send is skipped.
type GuardedSink struct {
	mu     sync.Mutex
	inner  domain.Sink
	closed bool
}

// Guard wraps inner, returning it unchanged if it is already guarded.
func Guard(inner domain.Sink) *GuardedSink {
	if g, ok := inner.(*GuardedSink); ok {
		return g
	}
	return &GuardedSink{inner: inner}
}

func (g *GuardedSink) Send(ev domain.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrSinkClosed
	}
	if err := g.inner.Send(ev); err != nil {
		g.closed = true
		return fmt.Errorf("%w: %v", ErrSinkClosed, err)
	}
	return nil
}

// Close is idempotent.
func (g *GuardedSink) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

func (g *GuardedSink) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
