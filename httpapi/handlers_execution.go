package httpapi

import (
	"net/http"
	"strings"
)

type triggerRequest struct {
	EntryPointID string         `json:"entry_point_id"`
	InputData    map[string]any `json:"input_data"`
	SessionState map[string]any `json:"session_state"`
}

func (h *handlers) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.EntryPointID) == "" {
		writeInvalidRequest(w, "entry_point_id is required")
		return
	}

	execID, err := h.manager.Trigger(r.Context(), pathSessionID(r), req.EntryPointID, req.InputData)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"execution_id": execID})
}

type injectRequest struct {
	NodeID      string `json:"node_id"`
	Content     string `json:"content"`
	GraphID     string `json:"graph_id"`
	ExecutionID string `json:"execution_id"`
}

func (h *handlers) handleInject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.NodeID) == "" {
		writeInvalidRequest(w, "node_id is required")
		return
	}

	delivered, err := h.manager.Inject(pathSessionID(r), req.ExecutionID, req.NodeID, req.Content)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeInvalidRequest(w, "message is required")
		return
	}

	result, err := h.manager.Chat(pathSessionID(r), req.Message)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": result.Status, "delivered": result.Delivered})
}

type stopRequest struct {
	ExecutionID string `json:"execution_id"`
}

func (h *handlers) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.ExecutionID) == "" {
		writeInvalidRequest(w, "execution_id is required")
		return
	}
	if err := h.manager.Stop(pathSessionID(r), req.ExecutionID); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type resumeRequest struct {
	CheckpointID string `json:"checkpoint_id"`
}

func (h *handlers) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	execID, err := h.manager.Resume(r.Context(), pathSessionID(r), req.CheckpointID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"execution_id": execID})
}

type replayRequest struct {
	CheckpointID string `json:"checkpoint_id"`
}

func (h *handlers) handleReplay(w http.ResponseWriter, r *http.Request) {
	var req replayRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.CheckpointID) == "" {
		writeInvalidRequest(w, "checkpoint_id is required")
		return
	}
	execID, err := h.manager.Replay(r.Context(), pathSessionID(r), req.CheckpointID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"execution_id": execID})
}
