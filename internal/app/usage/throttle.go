package usage

import (
	"sync"
	"time"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

const dateLayout = "2006-01-02"

// Throttle limits generations per client identity per calendar day.
// A limit <= 0 disables it.
type Throttle struct {
	mu       sync.Mutex
	limit    int
	now      func() time.Time
	counters map[string]domain.UsageCounter
}

func NewThrottle(limit int, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{
		limit:    limit,
		now:      now,
		counters: make(map[string]domain.UsageCounter),
	}
}

func (t *Throttle) Limit() int {
	return t.limit
}

// Reserve counts one generation for identity and reports whether it is
// allowed. Denied calls are not counted. Calling release gives the slot
// back; it is a no-op after the first call or once the day has rolled
// over.
func (t *Throttle) Reserve(identity string) (release func(), ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.todayLocked(identity)
	if t.limit > 0 && c.Count >= t.limit {
		return func() {}, false
	}
	c.Count++
	t.counters[identity] = c

	var released bool
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if released {
			return
		}
		released = true
		cur, ok := t.counters[identity]
		if !ok || cur.Date != c.Date || cur.Count == 0 {
			return
		}
		cur.Count--
		t.counters[identity] = cur
	}, true
}

// CheckAndIncrement is Reserve without the option to give the slot back.
func (t *Throttle) CheckAndIncrement(identity string) bool {
	_, ok := t.Reserve(identity)
	return ok
}

// Remaining returns how many generations identity has left today, or -1
// when unlimited.
func (t *Throttle) Remaining(identity string) int {
	if t.limit <= 0 {
		return -1
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.todayLocked(identity)
	if left := t.limit - c.Count; left > 0 {
		return left
	}
	return 0
}

// Usage returns today's counter for identity.
func (t *Throttle) Usage(identity string) domain.UsageCounter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.todayLocked(identity)
}

func (t *Throttle) todayLocked(identity string) domain.UsageCounter {
	today := t.now().Format(dateLayout)
	c, ok := t.counters[identity]
	if !ok || c.Date != today {
		return domain.UsageCounter{Date: today}
	}
	return c
}
