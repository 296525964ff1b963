package domain

import "context"

// SessionStore persists the whole session collection. Every Save replaces
// what was stored before; there is no per-session write.
type SessionStore interface {
	LoadSessions(ctx context.Context) ([]*Session, error)
	SaveSessions(ctx context.Context, sessions []*Session) error
}

// Sink receives generation events. A non-nil error from Send means the
// receiver is gone.
type Sink interface {
	Send(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

func (f SinkFunc) Send(ev Event) error {
	return f(ev)
}

// Upstream opens a streaming chat completion.
type Upstream interface {
	Open(ctx context.Context, cfg GenerationConfig, messages []Message) (DeltaStream, error)
}

// DeltaStream is pulled one text fragment at a time. Next returns false at
// the end of the stream or on error; Err tells the two apart.
type DeltaStream interface {
	Next() bool
	Delta() string
	Err() error
	Close() error
}
