package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hiveagent/hive/session"
)

type createSessionRequest struct {
	SessionID string `json:"session_id"`
	AgentPath string `json:"agent_path"`
	Model     string `json:"model"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	HasWorker bool   `json:"has_worker"`
	Loading   bool   `json:"loading,omitempty"`
}

func sessionResponseFor(sess *session.Session) sessionResponse {
	return sessionResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status()),
		HasWorker: sess.HasWorker(),
		Loading:   sess.LoadingWorker(),
	}
}

func (h *handlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errBodyRequired) {
		writeInvalidRequest(w, err.Error())
		return
	}

	sess, err := h.manager.Create(strings.TrimSpace(req.SessionID))
	if err != nil {
		if errors.Is(err, session.ErrSessionExists) {
			writeJSON(w, http.StatusConflict, map[string]bool{"loading": false})
			return
		}
		writeMappedError(w, err)
		return
	}

	if req.AgentPath != "" {
		if h.agents == nil {
			writeError(w, http.StatusInternalServerError, errorCodeRuntime, "no agent loader configured")
			return
		}
		spec, err := h.agents.Load(r.Context(), req.AgentPath, req.Model)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		if err := h.manager.LoadWorker(sess.ID, spec); err != nil {
			writeMappedError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, sessionResponseFor(sess))
}

func (h *handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.manager.Get(pathSessionID(r))
	if !ok {
		writeError(w, http.StatusNotFound, errorCodeNotFound, "session not found")
		return
	}
	if sess.LoadingWorker() {
		writeJSON(w, http.StatusAccepted, map[string]bool{"loading": true})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponseFor(sess))
}

func (h *handlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Destroy(pathSessionID(r)); err != nil {
		writeMappedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loadWorkerRequest struct {
	AgentPath string `json:"agent_path"`
	WorkerID  string `json:"worker_id"`
	Model     string `json:"model"`
}

func (h *handlers) handleLoadWorker(w http.ResponseWriter, r *http.Request) {
	var req loadWorkerRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.AgentPath) == "" {
		writeInvalidRequest(w, "agent_path is required")
		return
	}
	if h.agents == nil {
		writeError(w, http.StatusInternalServerError, errorCodeRuntime, "no agent loader configured")
		return
	}

	spec, err := h.agents.Load(r.Context(), req.AgentPath, req.Model)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if req.WorkerID != "" {
		spec.ID = req.WorkerID
	}

	if err := h.manager.LoadWorker(pathSessionID(r), spec); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) handleUnloadWorker(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.UnloadWorker(pathSessionID(r)); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
