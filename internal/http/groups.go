package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/chorus/internal/bus"
	"github.com/nextlevelbuilder/chorus/internal/orchestrator"
	"github.com/nextlevelbuilder/chorus/internal/state"
)

// GroupsHandler exposes the orchestrator operations over HTTP.
type GroupsHandler struct {
	orch  *orchestrator.Orchestrator
	token string
	allow func(clientID string) bool // nil = no rate limiting
}

func NewGroupsHandler(orch *orchestrator.Orchestrator, token string) *GroupsHandler {
	return &GroupsHandler{orch: orch, token: token}
}

// SetRateLimiter installs a per-client admission check.
func (h *GroupsHandler) SetRateLimiter(allow func(clientID string) bool) {
	h.allow = allow
}

// RegisterRoutes registers all group orchestration routes on the given mux.
func (h *GroupsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/groups/{groupID}/messages", h.authMiddleware(h.handleMessage))
	mux.HandleFunc("GET /v1/groups/{groupID}/typing", h.authMiddleware(h.handleListTyping))
	mux.HandleFunc("GET /v1/groups/{groupID}/agents/{agentID}/state", h.authMiddleware(h.handleGetState))
	mux.HandleFunc("PUT /v1/groups/{groupID}/agents/{agentID}/state", h.authMiddleware(h.handleSetState))
	mux.HandleFunc("GET /v1/groups/{groupID}/agents/{agentID}/can-respond", h.authMiddleware(h.handleCanRespond))
	mux.HandleFunc("POST /v1/groups/{groupID}/clear", h.authMiddleware(h.handleClear))
}

func (h *GroupsHandler) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" && extractBearerToken(r) != h.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if h.allow != nil && !h.allow(clientID(r)) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next(w, r)
	}
}

// messageRequest is the body of POST /v1/groups/{groupID}/messages.
type messageRequest struct {
	MessageID       string   `json:"message_id,omitempty"`
	UserID          string   `json:"user_id"`
	UserName        string   `json:"user_name,omitempty"`
	Content         string   `json:"content"`
	MentionedAgents []string `json:"mentioned_agents,omitempty"`
}

type scoreResponse struct {
	AgentID    string             `json:"agent_id"`
	AgentName  string             `json:"agent_name,omitempty"`
	Total      float64            `json:"total"`
	Components map[string]float64 `json:"components"`
	Reasons    []string           `json:"reasons,omitempty"`
	Mentioned  bool               `json:"mentioned,omitempty"`
}

func (h *GroupsHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	selected, err := h.orch.HandleMessage(r.Context(), bus.InboundGroupMessage{
		GroupID:         groupID,
		MessageID:       req.MessageID,
		UserID:          req.UserID,
		UserName:        req.UserName,
		Content:         req.Content,
		MentionedAgents: req.MentionedAgents,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	out := make([]scoreResponse, 0, len(selected))
	for _, sc := range selected {
		out = append(out, scoreResponse{
			AgentID:    sc.AgentID,
			AgentName:  sc.AgentName,
			Total:      sc.Total,
			Components: sc.Components,
			Reasons:    sc.Reasons,
			Mentioned:  sc.Mentioned,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"responders": out})
}

func (h *GroupsHandler) handleListTyping(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")
	typing, err := h.orch.States().ListTyping(r.Context(), groupID)
	if err != nil {
		slog.Warn("http: list typing failed", "group", groupID, "error", err)
		typing = nil
	}
	if typing == nil {
		typing = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"typing": typing})
}

func (h *GroupsHandler) handleGetState(w http.ResponseWriter, r *http.Request) {
	groupID, agentID := r.PathValue("groupID"), r.PathValue("agentID")
	st, err := h.orch.States().GetState(r.Context(), groupID, agentID)
	if err != nil {
		slog.Warn("http: get state failed", "group", groupID, "agent", agentID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(st)})
}

// stateRequest is the body of PUT .../state.
type stateRequest struct {
	State string `json:"state"`
	TTLMs int64  `json:"ttl_ms,omitempty"`
}

func (h *GroupsHandler) handleSetState(w http.ResponseWriter, r *http.Request) {
	groupID, agentID := r.PathValue("groupID"), r.PathValue("agentID")

	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	newState := state.AgentState(req.State)
	switch newState {
	case state.StateIdle, state.StateReading, state.StateTyping, state.StateCooldown:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown state: " + req.State})
		return
	}

	var ttl []time.Duration
	if req.TTLMs > 0 {
		ttl = append(ttl, time.Duration(req.TTLMs)*time.Millisecond)
	}
	if err := h.orch.States().SetState(r.Context(), groupID, agentID, newState, ttl...); err != nil {
		slog.Warn("http: set state failed", "group", groupID, "agent", agentID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": req.State})
}

func (h *GroupsHandler) handleCanRespond(w http.ResponseWriter, r *http.Request) {
	groupID, agentID := r.PathValue("groupID"), r.PathValue("agentID")
	decision, err := h.orch.States().CanRespond(r.Context(), groupID, agentID)
	if err != nil {
		slog.Warn("http: can-respond failed", "group", groupID, "agent", agentID, "error", err)
		writeJSON(w, http.StatusOK, map[string]interface{}{"allowed": false, "reason": "check_failed"})
		return
	}
	resp := map[string]interface{}{"allowed": decision.Allowed}
	if decision.Reason != "" {
		resp["reason"] = decision.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *GroupsHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")
	if err := h.orch.ClearGroup(r.Context(), groupID); err != nil {
		slog.Warn("http: clear group failed", "group", groupID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "clear failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// clientID keys the rate limiter: remote IP without port.
func clientID(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
