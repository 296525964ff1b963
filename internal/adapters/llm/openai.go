package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"github.com/PabloGalante/mermaid-agent/internal/observability"
)

// OpenAIUpstream streams chat completions from any OpenAI-compatible
// endpoint.
type OpenAIUpstream struct {
	client *http.Client
}

func NewOpenAIUpstream(client *http.Client) *OpenAIUpstream {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIUpstream{client: client}
}

// CompletionsURL appends the chat completions path to a base URL. Bases
// that already carry a version segment ("v1", "v3") only get
// "/chat/completions"; others get "/v1/chat/completions".
func CompletionsURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.Contains(base, "v1") || strings.Contains(base, "v3") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Open implements domain.Upstream.
func (u *OpenAIUpstream) Open(ctx context.Context, cfg domain.GenerationConfig, messages []domain.Message) (domain.DeltaStream, error) {
	body, err := json.Marshal(chatRequest{
		Model:    cfg.ModelName,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := CompletionsURL(cfg.EndpointBaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewUpstreamTransportError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	log := observability.LoggerFromContext(ctx)
	log.Info("opening upstream stream", "url", url, "model", cfg.ModelName, "messages", len(messages))

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, domain.NewUpstreamTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		log.Warn("upstream rejected request", "status", resp.StatusCode)
		return nil, domain.NewUpstreamStatusError(resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return &openAIStream{
		ctx:     ctx,
		body:    resp.Body,
		scanner: newLineScanner(resp.Body),
	}, nil
}

type openAIStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *lineScanner

	curr string
	err  error
	done bool
}

func (s *openAIStream) Next() bool {
	if s.done {
		return false
	}
	for {
		data, ok := s.scanner.nextData()
		if !ok {
			s.done = true
			if err := s.scanner.err(); err != nil {
				s.err = domain.NewUpstreamTransportError(err)
			} else if err := s.ctx.Err(); err != nil {
				s.err = domain.NewUpstreamTransportError(err)
			}
			return false
		}
		if data == doneSentinel {
			s.done = true
			return false
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			w := &domain.ParseWarning{Frame: data, Err: err}
			observability.LoggerFromContext(s.ctx).Warn("skipping malformed stream frame", "error", w.Error())
			continue
		}
		if chunk.Error != nil {
			s.done = true
			s.err = domain.NewUpstreamError(chunk.Error.Message)
			return false
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.curr = chunk.Choices[0].Delta.Content
		return true
	}
}

func (s *openAIStream) Delta() string {
	return s.curr
}

func (s *openAIStream) Err() error {
	return s.err
}

func (s *openAIStream) Close() error {
	s.done = true
	return s.body.Close()
}
