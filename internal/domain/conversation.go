package domain

import "strings"

// Turn is one user request and the artifact generated for it.
type Turn struct {
	ID          TurnID    `json:"id" yaml:"id"`
	Timestamp   Timestamp `json:"timestamp" yaml:"timestamp"`
	UserMessage string    `json:"user_message" yaml:"user_message"`
	Artifact    string    `json:"artifact" yaml:"artifact"`

	// IsPending is only true while the turn is being generated. Pending
	// turns live in memory and are never written to a SessionStore.
	IsPending bool `json:"is_pending,omitempty" yaml:"is_pending,omitempty"`
}

// Session is an ordered conversation. Turns are append-only.
type Session struct {
	ID        SessionID `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	CreatedAt Timestamp `json:"created_at" yaml:"created_at"`
	Turns     []Turn    `json:"turns" yaml:"turns"`
}

// CommittedTurns returns the number of non-pending turns.
func (s *Session) CommittedTurns() int {
	n := 0
	for _, t := range s.Turns {
		if !t.IsPending {
			n++
		}
	}
	return n
}

// LatestArtifact returns the artifact of the last committed turn.
func (s *Session) LatestArtifact() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if !s.Turns[i].IsPending {
			return s.Turns[i].Artifact
		}
	}
	return ""
}

// Clone returns a deep copy so callers can't mutate manager-owned state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	copy(out.Turns, s.Turns)
	return &out
}

// Message is a single chat message sent upstream.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationConfig selects the upstream endpoint, credentials and model.
// All three fields must be set before any upstream call.
type GenerationConfig struct {
	EndpointBaseURL string `json:"api_url"`
	APIKey          string `json:"api_key"`
	ModelName       string `json:"model_name"`
}

func (c GenerationConfig) Complete() bool {
	return strings.TrimSpace(c.EndpointBaseURL) != "" &&
		strings.TrimSpace(c.APIKey) != "" &&
		strings.TrimSpace(c.ModelName) != ""
}

// UsageCounter counts generations for one client on one calendar day.
type UsageCounter struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// Event is what callers receive while a generation runs: any number of
// delta events followed by exactly one terminal event (Done == true).
type Event struct {
	Delta    string `json:"delta,omitempty"`
	Artifact string `json:"artifact,omitempty"`
	Error    string `json:"error,omitempty"`
	Warning  string `json:"warning,omitempty"`
	Done     bool   `json:"done,omitempty"`

	SessionID SessionID `json:"session_id,omitempty"`
	TurnID    TurnID    `json:"turn_id,omitempty"`
}

func DeltaEvent(delta string) Event {
	return Event{Delta: delta}
}

func ArtifactEvent(artifact string) Event {
	return Event{Artifact: artifact, Done: true}
}

func ErrorEvent(msg string) Event {
	return Event{Error: msg, Done: true}
}
