package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Protocol-Lattice/go-dbagent/src/dsn"
	"github.com/Protocol-Lattice/go-dbagent/src/session"
	"github.com/rs/zerolog/hlog"
)

const sessionNotFound = "Session not found. Connect first."

// Request fields are pointers so that a missing field (422) can be told
// apart from an empty one, which the registry rejects like any other value.
type connectRequest struct {
	ConnStr *string `json:"conn_str"`
}

type connectResponse struct {
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	DatabaseType string `json:"database_type"`
}

type queryRequest struct {
	SessionID *string `json:"session_id"`
	Prompt    *string `json:"prompt"`
	DryRun    bool    `json:"dry_run"`
}

type sessionView struct {
	SessionID    string    `json:"session_id"`
	DatabaseType string    `json:"database_type"`
	ConnStr      string    `json:"conn_str"`
	CreatedAt    time.Time `json:"created_at"`
}

type disconnectResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.ConnStr == nil {
		writeError(w, http.StatusUnprocessableEntity, "conn_str is required")
		return
	}

	sess, err := s.registry.Connect(r.Context(), *req.ConnStr)
	if err != nil {
		hlog.FromRequest(r).Warn().Str("error", dsn.Mask(err.Error())).Msg("connect failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{
		SessionID:    sess.ID,
		Message:      "Connected successfully",
		DatabaseType: string(sess.Dialect),
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	switch {
	case req.SessionID == nil:
		writeError(w, http.StatusUnprocessableEntity, "session_id is required")
		return
	case req.Prompt == nil:
		writeError(w, http.StatusUnprocessableEntity, "prompt is required")
		return
	}

	run := s.registry.Query
	if req.DryRun {
		run = s.registry.Plan
	}
	res, err := run(r.Context(), *req.SessionID, *req.Prompt)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, sessionNotFound)
	case errors.Is(err, session.ErrPlanningUnsupported):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.registry.List()
	out := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, newSessionView(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.registry.Lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, sessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess))
}

func newSessionView(sess session.Session) sessionView {
	return sessionView{
		SessionID:    sess.ID,
		DatabaseType: string(sess.Dialect),
		ConnStr:      dsn.Mask(sess.ConnString),
		CreatedAt:    sess.CreatedAt,
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.registry.Disconnect(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, sessionNotFound)
		return
	}
	if err != nil {
		// The session is already gone; only releasing its handle failed.
		hlog.FromRequest(r).Warn().Err(err).Str("session_id", id).Msg("close session handle")
	}
	writeJSON(w, http.StatusOK, disconnectResponse{SessionID: id, Message: "Disconnected"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.registry.History(r.Context(), r.PathValue("id"), limit)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, entries)
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, sessionNotFound)
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
