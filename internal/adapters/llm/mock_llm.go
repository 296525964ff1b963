package llm

import (
	"context"
	"sync"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

// MockUpstream replays a scripted response.
type MockUpstream struct {
	Deltas []string
	// OpenErr is returned from Open instead of a stream.
	OpenErr error
	// StreamErr ends the stream after all Deltas were delivered.
	StreamErr error

	mu       sync.Mutex
	calls    [][]domain.Message
	closed   int
	consumed int
}

func NewMockUpstream(deltas ...string) *MockUpstream {
	return &MockUpstream{Deltas: deltas}
}

// Open implements domain.Upstream.
func (m *MockUpstream) Open(ctx context.Context, cfg domain.GenerationConfig, messages []domain.Message) (domain.DeltaStream, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]domain.Message(nil), messages...))
	m.mu.Unlock()

	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	return &mockStream{ctx: ctx, owner: m, pos: -1}, nil
}

// Calls returns the message lists Open was called with.
func (m *MockUpstream) Calls() [][]domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]domain.Message(nil), m.calls...)
}

// Closed returns how many streams were closed.
func (m *MockUpstream) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Consumed returns how many deltas were pulled across all streams.
func (m *MockUpstream) Consumed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumed
}

type mockStream struct {
	ctx    context.Context
	owner  *MockUpstream
	pos    int
	err    error
	closed bool
}

func (s *mockStream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = domain.NewUpstreamTransportError(err)
		return false
	}
	s.pos++
	if s.pos < len(s.owner.Deltas) {
		s.owner.mu.Lock()
		s.owner.consumed++
		s.owner.mu.Unlock()
		return true
	}
	s.err = s.owner.StreamErr
	return false
}

func (s *mockStream) Delta() string {
	if s.pos < 0 || s.pos >= len(s.owner.Deltas) {
		return ""
	}
	return s.owner.Deltas[s.pos]
}

func (s *mockStream) Err() error {
	return s.err
}

func (s *mockStream) Close() error {
	if !s.closed {
		s.closed = true
		s.owner.mu.Lock()
		s.owner.closed++
		s.owner.mu.Unlock()
	}
	return nil
}
