package httpadapter_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httpadapter "github.com/PabloGalante/mermaid-agent/internal/adapters/http"
	"github.com/PabloGalante/mermaid-agent/internal/adapters/llm"
	"github.com/PabloGalante/mermaid-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/mermaid-agent/internal/app/conversation"
	"github.com/PabloGalante/mermaid-agent/internal/app/credentials"
	"github.com/PabloGalante/mermaid-agent/internal/app/sessions"
	"github.com/PabloGalante/mermaid-agent/internal/app/usage"
	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

func newTestServer(t *testing.T, limit int, up *llm.MockUpstream) http.Handler {
	t.Helper()

	defaults := domain.GenerationConfig{EndpointBaseURL: "http://upstream", APIKey: "shared", ModelName: "m"}
	mgr := sessions.NewManager(memory.NewSessionStore(), sessions.Options{})
	svc := conversation.NewService(
		credentials.NewResolver(defaults, "letmein"),
		usage.NewThrottle(limit, nil),
		mgr,
		up,
		conversation.Options{},
	)
	return httpadapter.NewServer(svc)
}

func do(t *testing.T, srv http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func readEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("bad event %q: %v", data, err)
		}
		out = append(out, ev)
	}
	return out
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, 0, llm.NewMockUpstream())
	w := do(t, srv, http.MethodGet, "/healthz", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestGenerateStreamsEvents(t *testing.T) {
	srv := newTestServer(t, 0, llm.NewMockUpstream("```mermaid\n", "flowchart TD\n  A --> B\n", "```"))

	w := do(t, srv, http.MethodPost, "/generate", `{"text":"用户登录流程","diagram_type":"auto"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := readEvents(t, w.Body.String())
	if len(events) != 4 {
		t.Fatalf("expected 3 deltas and 1 terminal event, got %d", len(events))
	}
	last := events[3]
	if last["done"] != true || last["artifact"] != "flowchart TD\n  A --> B" || last["session_id"] == nil {
		t.Fatalf("unexpected terminal event %v", last)
	}

	w = do(t, srv, http.MethodGet, "/sessions", "")
	var list struct {
		Sessions []struct {
			Title     string `json:"title"`
			TurnCount int    `json:"turn_count"`
			Current   bool   `json:"current"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(list.Sessions) != 1 || list.Sessions[0].TurnCount != 1 || !list.Sessions[0].Current {
		t.Fatalf("unexpected sessions %+v", list.Sessions)
	}
}

func TestGenerateEmptyOutputEndsWithError(t *testing.T) {
	srv := newTestServer(t, 0, llm.NewMockUpstream())

	w := do(t, srv, http.MethodPost, "/generate", `{"text":"x"}`)
	events := readEvents(t, w.Body.String())
	if len(events) != 1 {
		t.Fatalf("expected a single terminal event, got %v", events)
	}
	last := events[0]
	if last["done"] != true || last["error"] != "upstream request failed: model returned no diagram code" || last["artifact"] != nil {
		t.Fatalf("unexpected terminal event %v", last)
	}

	w = do(t, srv, http.MethodGet, "/sessions", "")
	if strings.Contains(w.Body.String(), `"turn_count":1`) {
		t.Fatalf("empty output must not be committed: %s", w.Body.String())
	}
}

func TestGenerateErrorsBeforeStreaming(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		body   string
		header []string
		status int
	}{
		{"invalid json", 0, `{`, nil, http.StatusBadRequest},
		{"empty text", 0, `{"text":" "}`, nil, http.StatusBadRequest},
		{"wrong password", 0, `{"text":"x","access_password":"nope"}`, nil, http.StatusUnauthorized},
		{"partial config", 0, `{"text":"x","ai_config":{"api_url":"http://x"}}`, nil, http.StatusBadRequest},
		{"unknown session", 0, `{"text":"x","session_id":"missing"}`, nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.limit, llm.NewMockUpstream("flowchart TD"))
			w := do(t, srv, http.MethodPost, "/generate", tt.body, tt.header...)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d, body=%s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestGenerateQuotaPerClient(t *testing.T) {
	srv := newTestServer(t, 1, llm.NewMockUpstream("flowchart TD"))

	if w := do(t, srv, http.MethodPost, "/generate", `{"text":"x"}`, "X-Client-ID", "a"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/generate", `{"text":"x"}`, "X-Client-ID", "a"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/generate", `{"text":"x"}`, "X-Client-ID", "a", "X-Access-Password", "letmein"); w.Code != http.StatusOK {
		t.Fatalf("expected authenticated caller to pass, got %d", w.Code)
	}

	w := do(t, srv, http.MethodGet, "/usage?client_id=a", "")
	var info conversation.UsageInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if info.Count != 1 || info.Limit != 1 || info.Remaining != 0 {
		t.Fatalf("unexpected usage %+v", info)
	}
}

func TestRepairEndpoint(t *testing.T) {
	srv := newTestServer(t, 0, llm.NewMockUpstream())

	w := do(t, srv, http.MethodPost, "/repair", `{"code":"pie title X\n\"A\":1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	events := readEvents(t, w.Body.String())
	last := events[len(events)-1]
	if last["done"] != true || last["artifact"] != "pie title X\n    \"A\" : 1" || last["changed"] != true {
		t.Fatalf("unexpected repair result %v", last)
	}

	if w := do(t, srv, http.MethodPost, "/repair", `{"code":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty code, got %d", w.Code)
	}
}

func TestDirectionEndpoint(t *testing.T) {
	srv := newTestServer(t, 0, llm.NewMockUpstream())

	w := do(t, srv, http.MethodPost, "/direction", `{"code":"flowchart TD\nA-->B"}`)
	var resp struct {
		Code    string `json:"code"`
		Changed bool   `json:"changed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Changed || resp.Code != "flowchart LR\nA-->B" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, 0, llm.NewMockUpstream())

	w := do(t, srv, http.MethodPost, "/sessions", `{"first_message":"订单处理流程"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", w.Code, w.Body.String())
	}
	var created domain.Session
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if w := do(t, srv, http.MethodGet, "/sessions/current", ""); w.Code != http.StatusOK {
		t.Fatalf("expected current session, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/sessions/"+string(created.ID)+"/context", ""); w.Code != http.StatusOK {
		t.Fatalf("expected context, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodDelete, "/sessions/current", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/sessions/current", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected no current session, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/sessions/"+string(created.ID)+"/select", ""); w.Code != http.StatusOK {
		t.Fatalf("expected select to succeed, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodDelete, "/sessions/"+string(created.ID), ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/sessions/"+string(created.ID), ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestDiagramTypes(t *testing.T) {
	srv := newTestServer(t, 0, llm.NewMockUpstream())
	w := do(t, srv, http.MethodGet, "/diagram-types", "")

	var types []llm.DiagramType
	if err := json.Unmarshal(w.Body.Bytes(), &types); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(types) == 0 || types[0].Value != "auto" {
		t.Fatalf("unexpected types %+v", types)
	}
}
