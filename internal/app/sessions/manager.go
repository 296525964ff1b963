package sessions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"github.com/PabloGalante/mermaid-agent/internal/observability"
	"github.com/google/uuid"
)

const (
	DefaultMaxTurns     = 10
	DefaultContextPairs = 5
	maxContextPairs     = 5

	titleWords    = 8
	titleMaxRunes = 30

	contextArtifactPrefix = "Diagram code:\n"
)

// Options tunes a Manager. Zero values select the defaults.
type Options struct {
	MaxTurns int
	Now      func() time.Time
	NewID    func() string
}

// Manager owns the session collection. It is the only writer of sessions
// and persists the whole collection on every change.
type Manager struct {
	mu sync.Mutex

	store    domain.SessionStore
	sessions []*domain.Session // newest first
	current  domain.SessionID
	pending  map[domain.SessionID]domain.Turn

	maxTurns int
	now      func() time.Time
	newID    func() string
}

func NewManager(store domain.SessionStore, opts Options) *Manager {
	m := &Manager{
		store:    store,
		pending:  make(map[domain.SessionID]domain.Turn),
		maxTurns: opts.MaxTurns,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if m.maxTurns <= 0 {
		m.maxTurns = DefaultMaxTurns
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

// MaxTurns returns the committed turn limit per session.
func (m *Manager) MaxTurns() int {
	return m.maxTurns
}

// Load replaces the in-memory collection with the stored one. No session
// is current afterwards.
func (m *Manager) Load(ctx context.Context) error {
	loaded, err := m.store.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("loading sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = make([]*domain.Session, 0, len(loaded))
	for _, s := range loaded {
		if s == nil {
			continue
		}
		s = s.Clone()
		// Pending turns are never stored, but drop any that slipped in.
		committed := s.Turns[:0]
		for _, t := range s.Turns {
			if !t.IsPending {
				committed = append(committed, t)
			}
		}
		s.Turns = committed
		m.sessions = append(m.sessions, s)
	}
	sortNewestFirst(m.sessions)
	m.current = ""
	m.pending = make(map[domain.SessionID]domain.Turn)

	observability.LoggerFromContext(ctx).Info("sessions loaded", "count", len(m.sessions))
	return nil
}

// Create starts a session titled after its first message and makes it
// current.
func (m *Manager) Create(ctx context.Context, firstMessage string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &domain.Session{
		ID:        domain.SessionID(m.newID()),
		Title:     Title(firstMessage),
		CreatedAt: m.now(),
		Turns:     []domain.Turn{},
	}

	prevCurrent := m.current
	m.sessions = append([]*domain.Session{s}, m.sessions...)
	m.current = s.ID

	if err := m.persistLocked(ctx); err != nil {
		m.sessions = m.sessions[1:]
		m.current = prevCurrent
		return nil, err
	}

	observability.LoggerFromContext(ctx).Info("session created", "session_id", s.ID)
	return s.Clone(), nil
}

// Select makes id the current session.
func (m *Manager) Select(id domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findLocked(id) == nil {
		return domain.NewNotFoundError("session", string(id))
	}
	m.current = id
	return nil
}

// Deselect clears the current session, so the next generation starts a
// new one.
func (m *Manager) Deselect() {
	m.mu.Lock()
	m.current = ""
	m.mu.Unlock()
}

// Current returns the current session, if any.
func (m *Manager) Current() (*domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == "" {
		return nil, false
	}
	s := m.findLocked(m.current)
	if s == nil {
		return nil, false
	}
	return m.viewLocked(s), true
}

// Get returns a copy of the session including its pending turn, if one
// is being generated.
func (m *Manager) Get(id domain.SessionID) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.findLocked(id)
	if s == nil {
		return nil, domain.NewNotFoundError("session", string(id))
	}
	return m.viewLocked(s), nil
}

// List returns every session, newest first.
func (m *Manager) List() []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, m.viewLocked(s))
	}
	return out
}

// Delete removes a session. Deleting the current session selects the most
// recently created remaining one.
func (m *Manager) Delete(ctx context.Context, id domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, s := range m.sessions {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.NewNotFoundError("session", string(id))
	}

	prevSessions := m.sessions
	prevCurrent := m.current

	next := make([]*domain.Session, 0, len(m.sessions)-1)
	next = append(next, m.sessions[:idx]...)
	next = append(next, m.sessions[idx+1:]...)
	m.sessions = next

	if m.current == id {
		m.current = ""
		if latest := mostRecent(m.sessions); latest != nil {
			m.current = latest.ID
		}
	}

	if err := m.persistLocked(ctx); err != nil {
		m.sessions = prevSessions
		m.current = prevCurrent
		return err
	}
	delete(m.pending, id)

	observability.LoggerFromContext(ctx).Info("session deleted", "session_id", id, "current", m.current)
	return nil
}

// BeginTurn records a pending turn for a generation that is about to
// start. Only one turn per session may be pending.
func (m *Manager) BeginTurn(id domain.SessionID, userMessage string) (domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.findLocked(id)
	if s == nil {
		return domain.Turn{}, domain.NewNotFoundError("session", string(id))
	}
	if s.CommittedTurns() >= m.maxTurns {
		return domain.Turn{}, domain.NewTurnLimitExceededError(m.maxTurns)
	}
	if _, busy := m.pending[id]; busy {
		return domain.Turn{}, domain.NewInvalidInputError("a generation is already running for this session")
	}

	t := domain.Turn{
		ID:          domain.TurnID(m.newID()),
		Timestamp:   m.now(),
		UserMessage: userMessage,
		IsPending:   true,
	}
	m.pending[id] = t
	return t, nil
}

// DiscardPending drops the pending turn of a session, if any.
func (m *Manager) DiscardPending(id domain.SessionID) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// AppendTurn commits a turn and persists the collection. A pending turn
// for the same session is promoted, keeping its id.
func (m *Manager) AppendTurn(ctx context.Context, id domain.SessionID, userMessage, artifact string) (domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.findLocked(id)
	if s == nil {
		return domain.Turn{}, domain.NewNotFoundError("session", string(id))
	}
	if s.CommittedTurns() >= m.maxTurns {
		return domain.Turn{}, domain.NewTurnLimitExceededError(m.maxTurns)
	}

	t := domain.Turn{
		ID:        domain.TurnID(m.newID()),
		Timestamp: m.now(),
	}
	if p, ok := m.pending[id]; ok {
		t.ID = p.ID
	}
	t.UserMessage = userMessage
	t.Artifact = artifact

	s.Turns = append(s.Turns, t)
	if err := m.persistLocked(ctx); err != nil {
		s.Turns = s.Turns[:len(s.Turns)-1]
		return domain.Turn{}, err
	}
	delete(m.pending, id)
	return t, nil
}

// ContextWindow flattens the last committed turns of a session into
// user/assistant message pairs. pairs is clamped to [1, 5]; 0 selects
// the default.
func (m *Manager) ContextWindow(id domain.SessionID, pairs int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.findLocked(id)
	if s == nil {
		return nil, domain.NewNotFoundError("session", string(id))
	}
	return contextWindow(s.Turns, pairs), nil
}

func contextWindow(turns []domain.Turn, pairs int) []domain.Message {
	if pairs <= 0 {
		pairs = DefaultContextPairs
	}
	if pairs > maxContextPairs {
		pairs = maxContextPairs
	}

	msgs := make([]domain.Message, 0, 2*len(turns))
	for _, t := range turns {
		if t.IsPending {
			continue
		}
		msgs = append(msgs,
			domain.Message{Role: domain.RoleUser, Content: t.UserMessage},
			domain.Message{Role: domain.RoleAssistant, Content: contextArtifactPrefix + t.Artifact},
		)
	}
	if limit := 2 * pairs; len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

// Title derives a session title from its opening message.
func Title(firstMessage string) string {
	words := strings.Fields(firstMessage)
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	title := strings.Join(words, " ")
	if utf8.RuneCountInString(title) > titleMaxRunes {
		return string([]rune(title)[:titleMaxRunes]) + "..."
	}
	return title
}

func (m *Manager) findLocked(id domain.SessionID) *domain.Session {
	for _, s := range m.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (m *Manager) viewLocked(s *domain.Session) *domain.Session {
	out := s.Clone()
	if p, ok := m.pending[s.ID]; ok {
		out.Turns = append(out.Turns, p)
	}
	return out
}

func (m *Manager) persistLocked(ctx context.Context) error {
	snapshot := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s.Clone())
	}
	if err := m.store.SaveSessions(ctx, snapshot); err != nil {
		return fmt.Errorf("saving sessions: %w", err)
	}
	return nil
}

func sortNewestFirst(list []*domain.Session) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func mostRecent(list []*domain.Session) *domain.Session {
	var best *domain.Session
	for _, s := range list {
		if best == nil || s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	return best
}
