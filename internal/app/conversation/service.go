package conversation

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PabloGalante/mermaid-agent/internal/adapters/llm"
	"github.com/PabloGalante/mermaid-agent/internal/app/credentials"
	"github.com/PabloGalante/mermaid-agent/internal/app/relay"
	"github.com/PabloGalante/mermaid-agent/internal/app/repair"
	"github.com/PabloGalante/mermaid-agent/internal/app/sessions"
	"github.com/PabloGalante/mermaid-agent/internal/app/usage"
	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"github.com/PabloGalante/mermaid-agent/internal/observability"
)

const DefaultMaxInputChars = 20000

type Options struct {
	MaxInputChars int
	ContextTurns  int
}

// Service runs generations end to end: credentials, quota, session
// bookkeeping, prompt and relay.
type Service struct {
	resolver *credentials.Resolver
	throttle *usage.Throttle
	sessions *sessions.Manager
	relay    *relay.Relay
	repairer *repair.Repairer

	maxInputChars int
	contextTurns  int
}

func NewService(
	resolver *credentials.Resolver,
	throttle *usage.Throttle,
	manager *sessions.Manager,
	upstream domain.Upstream,
	opts Options,
) *Service {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	r := relay.New(upstream)
	return &Service{
		resolver:      resolver,
		throttle:      throttle,
		sessions:      manager,
		relay:         r,
		repairer:      repair.NewRepairer(r),
		maxInputChars: opts.MaxInputChars,
		contextTurns:  opts.ContextTurns,
	}
}

// Caller carries what identifies and authorizes a request.
type Caller struct {
	ClientID   string
	Config     *domain.GenerationConfig
	Credential string
	Model      string
}

func (c Caller) credentialsRequest() credentials.Request {
	return credentials.Request{Explicit: c.Config, Credential: c.Credential, Model: c.Model}
}

type GenerateInput struct {
	Caller

	// SessionID selects the session to continue. When empty the current
	// session is used, or a new one is created if there is none or
	// NewSession is set.
	SessionID   domain.SessionID
	NewSession  bool
	Text        string
	DiagramType string
}

type GenerateOutput struct {
	SessionID domain.SessionID
	Turn      domain.Turn
	Deltas    int
}

// Generate streams a diagram for in.Text to sink and commits the turn.
// The artifact event is only sent once the turn is saved; any failure
// after streaming began ends the stream with an error event instead.
// Quota is only spent on committed turns.
func (s *Service) Generate(ctx context.Context, in GenerateInput, sink domain.Sink) (out *GenerateOutput, err error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, domain.NewInvalidInputError("text is required")
	}
	if n := utf8.RuneCountInString(text); n > s.maxInputChars {
		return nil, domain.NewInvalidInputError(fmt.Sprintf("text is %d characters long, the limit is %d", n, s.maxInputChars))
	}

	log := observability.LoggerFromContext(ctx).With(
		"client_id", in.ClientID,
		"diagram_type", in.DiagramType,
	)

	resolution, err := s.resolver.Resolve(in.credentialsRequest())
	if err != nil {
		log.Warn("credential resolution failed", "error", err)
		return nil, err
	}

	session, err := s.existingSession(in)
	if err != nil {
		return nil, err
	}
	if session != nil && session.CommittedTurns() >= s.sessions.MaxTurns() {
		log.Warn("turn rejected", "session_id", session.ID, "turns", session.CommittedTurns())
		return nil, domain.NewTurnLimitExceededError(s.sessions.MaxTurns())
	}

	if !resolution.Exempt() {
		release, ok := s.throttle.Reserve(in.ClientID)
		if !ok {
			log.Warn("daily usage limit reached")
			return nil, domain.NewQuotaExceededError(s.throttle.Limit())
		}
		defer func() {
			if err != nil {
				release()
			}
		}()
	}

	if session == nil {
		if session, err = s.sessions.Create(ctx, text); err != nil {
			return nil, err
		}
	}
	log = log.With("session_id", session.ID)

	pending, err := s.sessions.BeginTurn(session.ID, text)
	if err != nil {
		log.Warn("turn rejected", "error", err)
		return nil, err
	}

	history, err := s.sessions.ContextWindow(session.ID, s.contextTurns)
	if err != nil {
		s.sessions.DiscardPending(session.ID)
		return nil, err
	}
	msgs := llm.BuildMessages(in.DiagramType, text, history)

	log.Info("generation started", "source", resolution.Source, "context_messages", len(history))

	events := relay.Guard(stamp(sink, session.ID, pending.ID))
	res, err := s.relay.Run(ctx, resolution.Config, msgs, events)
	if err != nil {
		s.sessions.DiscardPending(session.ID)
		log.Warn("generation failed", "error", err, "deltas", res.Deltas)
		return nil, err
	}

	turn, err := s.sessions.AppendTurn(ctx, session.ID, text, res.Artifact)
	if err != nil {
		s.sessions.DiscardPending(session.ID)
		log.Error("failed to commit turn", "error", err)
		_ = events.Send(domain.ErrorEvent(userMessage(err)))
		return nil, err
	}

	if err := events.Send(domain.ArtifactEvent(turn.Artifact)); err != nil {
		log.Warn("client left before the artifact was delivered", "turn_id", turn.ID, "error", err)
	}

	log.Info("generation committed", "turn_id", turn.ID, "deltas", res.Deltas)
	return &GenerateOutput{SessionID: session.ID, Turn: turn, Deltas: res.Deltas}, nil
}

// existingSession returns the session a generation continues, or nil when
// a new one has to be created.
func (s *Service) existingSession(in GenerateInput) (*domain.Session, error) {
	if in.SessionID != "" {
		if err := s.sessions.Select(in.SessionID); err != nil {
			return nil, err
		}
		return s.sessions.Get(in.SessionID)
	}
	if !in.NewSession {
		if cur, ok := s.sessions.Current(); ok {
			return cur, nil
		}
	}
	return nil, nil
}

// stamp tags terminal events with the session and turn they belong to.
func stamp(sink domain.Sink, sessionID domain.SessionID, turnID domain.TurnID) domain.Sink {
	return domain.SinkFunc(func(ev domain.Event) error {
		if ev.Done {
			ev.SessionID = sessionID
			ev.TurnID = turnID
		}
		return sink.Send(ev)
	})
}

// userMessage keeps internal failures out of client-facing events.
func userMessage(err error) string {
	if domain.KindOf(err) != "" {
		return err.Error()
	}
	return "internal server error"
}

type RepairInput struct {
	Caller

	Code        string
	RenderError string
}

// Repair fixes diagram code. It is not counted against the daily quota
// and does not touch sessions.
func (s *Service) Repair(ctx context.Context, in RepairInput, sink domain.Sink) (repair.Result, error) {
	resolution, err := s.resolver.Resolve(in.credentialsRequest())
	if err != nil {
		return repair.Result{}, err
	}
	return s.repairer.Repair(ctx, resolution.Config, repair.Request{
		Code:        in.Code,
		RenderError: in.RenderError,
	}, sink)
}

// ToggleDirection flips a flowchart between vertical and horizontal.
func (s *Service) ToggleDirection(code string) (string, bool) {
	return repair.ToggleDirection(code)
}

type UsageInfo struct {
	Date      string `json:"date"`
	Count     int    `json:"count"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

func (s *Service) Usage(clientID string) UsageInfo {
	c := s.throttle.Usage(clientID)
	return UsageInfo{
		Date:      c.Date,
		Count:     c.Count,
		Limit:     s.throttle.Limit(),
		Remaining: s.throttle.Remaining(clientID),
	}
}

func (s *Service) DiagramTypes() []llm.DiagramType {
	return llm.DiagramTypes()
}

func (s *Service) ListSessions() []*domain.Session {
	return s.sessions.List()
}

func (s *Service) GetSession(id domain.SessionID) (*domain.Session, error) {
	return s.sessions.Get(id)
}

func (s *Service) CurrentSession() (*domain.Session, bool) {
	return s.sessions.Current()
}

func (s *Service) CreateSession(ctx context.Context, firstMessage string) (*domain.Session, error) {
	if strings.TrimSpace(firstMessage) == "" {
		return nil, domain.NewInvalidInputError("first message is required")
	}
	return s.sessions.Create(ctx, firstMessage)
}

func (s *Service) SelectSession(id domain.SessionID) error {
	return s.sessions.Select(id)
}

// ClearSelection makes the next generation start a new session.
func (s *Service) ClearSelection() {
	s.sessions.Deselect()
}

func (s *Service) DeleteSession(ctx context.Context, id domain.SessionID) error {
	return s.sessions.Delete(ctx, id)
}

func (s *Service) ContextWindow(id domain.SessionID) ([]domain.Message, error) {
	return s.sessions.ContextWindow(id, s.contextTurns)
}
