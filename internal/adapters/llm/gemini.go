package llm

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"github.com/PabloGalante/mermaid-agent/internal/observability"
	"google.golang.org/genai"
)

// GeminiUpstream streams completions from the Gemini API. The endpoint
// base URL is optional for Gemini; an empty one uses the SDK default.
type GeminiUpstream struct{}

func NewGeminiUpstream() *GeminiUpstream {
	return &GeminiUpstream{}
}

// Open implements domain.Upstream.
func (g *GeminiUpstream) Open(ctx context.Context, cfg domain.GenerationConfig, messages []domain.Message) (domain.DeltaStream, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.EndpointBaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, domain.NewUpstreamTransportError(err)
	}

	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	genCfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	observability.LoggerFromContext(ctx).Info("opening gemini stream", "model", cfg.ModelName, "messages", len(messages))

	next, stop := iter.Pull2(client.Models.GenerateContentStream(ctx, cfg.ModelName, contents, genCfg))

	s := &geminiStream{next: next, stop: stop}
	// Pull the first response so that request errors surface from Open
	// like they do for the HTTP adapter.
	if !s.advance() && s.err != nil {
		stop()
		return nil, s.err
	}
	s.primed = true
	return s, nil
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()

	primed bool
	curr   string
	err    error
	done   bool
}

// advance moves to the next non-empty text fragment.
func (s *geminiStream) advance() bool {
	for {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			return false
		}
		if err != nil {
			s.done = true
			s.err = mapGeminiError(err)
			return false
		}
		if text := resp.Text(); text != "" {
			s.curr = text
			return true
		}
	}
}

func (s *geminiStream) Next() bool {
	if s.primed {
		s.primed = false
		return !s.done
	}
	if s.done {
		return false
	}
	return s.advance()
}

func (s *geminiStream) Delta() string {
	return s.curr
}

func (s *geminiStream) Err() error {
	return s.err
}

func (s *geminiStream) Close() error {
	s.done = true
	s.stop()
	return nil
}

func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewUpstreamStatusError(apiErr.Code, apiErr.Message)
	}
	return domain.NewUpstreamTransportError(err)
}
