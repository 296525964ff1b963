package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

// sseWriter emits server-sent events. Headers are written on the first
// event, so a handler can still answer with a plain JSON error as long as
// nothing was streamed.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	started bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by response writer")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

// Send implements domain.Sink.
func (w *sseWriter) Send(ev domain.Event) error {
	return w.write(ev)
}

func (w *sseWriter) write(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		h := w.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.w.WriteHeader(http.StatusOK)
		w.started = true
	}

	if _, err := w.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	if _, err := w.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}
