package httpadapter

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PabloGalante/mermaid-agent/internal/app/conversation"
	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"github.com/PabloGalante/mermaid-agent/internal/observability"
)

const (
	clientIDHeader       = "X-Client-ID"
	accessPasswordHeader = "X-Access-Password"

	maxBodyBytes = 1 << 20
)

type Server struct {
	svc *conversation.Service
}

func NewServer(svc *conversation.Service) http.Handler {
	s := &Server{svc: svc}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/generate", s.handleGenerate)
	mux.HandleFunc("/repair", s.handleRepair)
	mux.HandleFunc("/direction", s.handleDirection)
	mux.HandleFunc("/usage", s.handleUsage)
	mux.HandleFunc("/diagram-types", s.handleDiagramTypes)

	// /sessions → list (GET), create (POST)
	mux.HandleFunc("/sessions", s.handleSessions)

	// /sessions/current       → GET: current session, DELETE: clear selection
	// /sessions/{id}          → GET, DELETE
	// /sessions/{id}/select   → POST
	// /sessions/{id}/context  → GET
	mux.HandleFunc("/sessions/", s.handleSessionWithID)

	return chainMiddlewares(mux, withLogging, withRequestID, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type credentialsFields struct {
	AIConfig       *domain.GenerationConfig `json:"ai_config,omitempty"`
	AccessPassword string                   `json:"access_password,omitempty"`
	Model          string                   `json:"model,omitempty"`
}

type generateRequest struct {
	credentialsFields

	Text        string `json:"text"`
	DiagramType string `json:"diagram_type,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	NewSession  bool   `json:"new_session,omitempty"`
}

type repairRequest struct {
	credentialsFields

	Code        string `json:"code"`
	RenderError string `json:"render_error,omitempty"`
}

type repairDoneEvent struct {
	Artifact  string   `json:"artifact"`
	Warning   string   `json:"warning,omitempty"`
	Changed   bool     `json:"changed"`
	UsedModel bool     `json:"used_model"`
	Applied   []string `json:"applied,omitempty"`
	Diff      string   `json:"diff,omitempty"`
	Done      bool     `json:"done"`
}

type directionRequest struct {
	Code string `json:"code"`
}

type directionResponse struct {
	Code    string `json:"code"`
	Changed bool   `json:"changed"`
}

type createSessionRequest struct {
	FirstMessage string `json:"first_message"`
}

type sessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	TurnCount int       `json:"turn_count"`
	Current   bool      `json:"current"`
}

type listSessionsResponse struct {
	Sessions []sessionSummary `json:"sessions"`
}

type contextResponse struct {
	Messages []domain.Message `json:"messages"`
}

// ─────────────────────────────────────────────
// Generation
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		internalError(w, err)
		return
	}

	_, err = s.svc.Generate(r.Context(), conversation.GenerateInput{
		Caller:      caller(r, req.credentialsFields),
		SessionID:   domain.SessionID(req.SessionID),
		NewSession:  req.NewSession,
		Text:        req.Text,
		DiagramType: req.DiagramType,
	}, sse)
	if err != nil && !sse.Started() {
		writeError(w, r, err)
	}
	// Once streaming has begun the terminal event already carries the
	// outcome.
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req repairRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		internalError(w, err)
		return
	}

	res, err := s.svc.Repair(r.Context(), conversation.RepairInput{
		Caller:      caller(r, req.credentialsFields),
		Code:        req.Code,
		RenderError: req.RenderError,
	}, sse)
	if err != nil {
		if !sse.Started() {
			writeError(w, r, err)
			return
		}
		_ = sse.Send(domain.ErrorEvent(err.Error()))
		return
	}

	_ = sse.write(repairDoneEvent{
		Artifact:  res.Artifact,
		Warning:   res.Warning,
		Changed:   res.Changed,
		UsedModel: res.UsedModel,
		Applied:   res.Applied,
		Diff:      res.Diff,
		Done:      true,
	})
}

func (s *Server) handleDirection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req directionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		badRequest(w, "code is required")
		return
	}

	code, changed := s.svc.ToggleDirection(req.Code)
	writeJSON(w, http.StatusOK, directionResponse{Code: code, Changed: changed})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	id := r.URL.Query().Get("client_id")
	if id == "" {
		id = clientID(r)
	}
	writeJSON(w, http.StatusOK, s.svc.Usage(id))
}

func (s *Server) handleDiagramTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.DiagramTypes())
}

// ─────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────

// /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSessions(w, r)
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /sessions/{id}, /sessions/{id}/select, /sessions/{id}/context
func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(path, "/")
	id := parts[0]

	if id == "" {
		http.NotFound(w, r)
		return
	}

	if id == "current" && len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleCurrentSession(w, r)
		case http.MethodDelete:
			s.svc.ClearSelection()
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w)
		}
		return
	}

	sessionID := domain.SessionID(id)

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetSession(w, r, sessionID)
		case http.MethodDelete:
			s.handleDeleteSession(w, r, sessionID)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 2 {
		switch {
		case parts[1] == "select" && r.Method == http.MethodPost:
			s.handleSelectSession(w, r, sessionID)
		case parts[1] == "context" && r.Method == http.MethodGet:
			s.handleSessionContext(w, r, sessionID)
		case parts[1] == "select" || parts[1] == "context":
			methodNotAllowed(w)
		default:
			http.NotFound(w, r)
		}
		return
	}

	http.NotFound(w, r)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var currentID domain.SessionID
	if cur, ok := s.svc.CurrentSession(); ok {
		currentID = cur.ID
	}

	list := s.svc.ListSessions()
	resp := listSessionsResponse{Sessions: make([]sessionSummary, 0, len(list))}
	for _, sess := range list {
		resp.Sessions = append(resp.Sessions, sessionSummary{
			ID:        string(sess.ID),
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			TurnCount: sess.CommittedTurns(),
			Current:   sess.ID == currentID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := s.svc.CreateSession(r.Context(), req.FirstMessage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.svc.CurrentSession()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no current session"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	sess, err := s.svc.GetSession(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	if err := s.svc.DeleteSession(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	if err := s.svc.SelectSession(id); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleGetSession(w, r, id)
}

func (s *Server) handleSessionContext(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	msgs, err := s.svc.ContextWindow(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contextResponse{Messages: msgs})
}

// ─────────────────────────────────────────────
// Request Helpers
// ─────────────────────────────────────────────

func caller(r *http.Request, f credentialsFields) conversation.Caller {
	password := f.AccessPassword
	if password == "" {
		password = r.Header.Get(accessPasswordHeader)
	}
	return conversation.Caller{
		ClientID:   clientID(r),
		Config:     f.AIConfig,
		Credential: password,
		Model:      f.Model,
	}
}

// clientID identifies the caller for quota purposes: the X-Client-ID
// header, else the remote host.
func clientID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(clientIDHeader)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindConfiguration, domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusUnauthorized
	case domain.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case domain.KindTurnLimitExceeded:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		internalError(w, err)
		return
	}
	writeJSON(w, statusFor(de.Kind), map[string]string{
		"error": de.Error(),
		"kind":  string(de.Kind),
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}
