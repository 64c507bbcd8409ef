package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"brainstorm/internal/service"
	"brainstorm/internal/transport/rest/middleware"
)

// SessionHandler handles brainstorming session endpoints
type SessionHandler struct {
	sessionSvc *service.SessionService
	logger     *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionSvc *service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc, logger: logger}
}

// JoinRequest is the request body for joining a session by code
type JoinRequest struct {
	RoomCode string `json:"codigoSala"`
	Password string `json:"senha"`
}

func (h *SessionHandler) actor(r *http.Request) (service.Actor, bool) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		return service.Actor{}, false
	}
	return service.ActorFromUser(user, ""), true
}

func (h *SessionHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if service.HTTPStatus(err) >= http.StatusInternalServerError {
		h.logger.Error("session request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeServiceError(w, err)
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req service.NewSessionInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessionSvc.Create(r.Context(), actor, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// List handles GET /v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionSvc.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessoes": sessions})
}

// Get handles GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionSvc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Join handles POST /v1/sessions/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req JoinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RoomCode == "" {
		writeError(w, http.StatusBadRequest, "codigoSala is required")
		return
	}

	session, err := h.sessionSvc.JoinByCode(r.Context(), actor, req.RoomCode, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// WordsRequest is the request body for submitting several words at once
type WordsRequest struct {
	Level int      `json:"nivel"`
	Words []string `json:"palavras"`
}

// SubmitWords handles POST /v1/sessions/{id}/words
func (h *SessionHandler) SubmitWords(w http.ResponseWriter, r *http.Request) {
	actor, _ := h.actor(r)

	var req WordsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ideas, err := h.sessionSvc.SubmitBatch(r.Context(), actor, mux.Vars(r)["id"], req.Level, req.Words)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"nivel":         req.Level,
		"ideias":        ideas,
		"palavrasCount": len(ideas),
	})
}

// Start handles POST /v1/sessions/{id}/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	actor, _ := h.actor(r)

	state, err := h.sessionSvc.Start(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// Pause handles POST /v1/sessions/{id}/pause
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	actor, _ := h.actor(r)

	if err := h.sessionSvc.Pause(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// Conclude handles POST /v1/sessions/{id}/conclude
func (h *SessionHandler) Conclude(w http.ResponseWriter, r *http.Request) {
	actor, _ := h.actor(r)

	res, err := h.sessionSvc.Conclude(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Kick handles POST /v1/sessions/{id}/kick/{participantId}
func (h *SessionHandler) Kick(w http.ResponseWriter, r *http.Request) {
	actor, _ := h.actor(r)
	vars := mux.Vars(r)

	if err := h.sessionSvc.Kick(r.Context(), actor, vars["id"], vars["participantId"]); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// State handles GET /v1/sessions/{id}/state
func (h *SessionHandler) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessionSvc.State(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// Result handles GET /v1/sessions/{id}/result
func (h *SessionHandler) Result(w http.ResponseWriter, r *http.Request) {
	res, err := h.sessionSvc.Result(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
