// Package httpapi exposes SessionManager over net/http, following the
// method+path pattern routing the teacher's coding-agent server uses.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hiveagent/hive/session"
)

// AgentLoader resolves an agent_path (and optional model override) from the
// HTTP worker-load request into a ready session.AgentSpec. The composition
// root supplies the concrete implementation (reading graph specs under
// config.Config.AgentsDir and a small named-model registry); the wire
// protocol for LLM providers is outside this engine's scope.
type AgentLoader interface {
	Load(ctx context.Context, agentPath, modelName string) (session.AgentSpec, error)
}

type handlers struct {
	manager *session.Manager
	agents  AgentLoader
	logger  *slog.Logger
}

// NewRouter builds the full HTTP surface from spec §6 over manager,
// resolving agent_path worker-load requests through agents.
func NewRouter(manager *session.Manager, agents AgentLoader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{manager: manager, agents: agents, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", h.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{sid}", h.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{sid}", h.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{sid}/worker", h.handleLoadWorker)
	mux.HandleFunc("DELETE /api/sessions/{sid}/worker", h.handleUnloadWorker)
	mux.HandleFunc("POST /api/sessions/{sid}/trigger", h.handleTrigger)
	mux.HandleFunc("POST /api/sessions/{sid}/inject", h.handleInject)
	mux.HandleFunc("POST /api/sessions/{sid}/chat", h.handleChat)
	mux.HandleFunc("POST /api/sessions/{sid}/stop", h.handleStop)
	mux.HandleFunc("POST /api/sessions/{sid}/resume", h.handleResume)
	mux.HandleFunc("POST /api/sessions/{sid}/replay", h.handleReplay)
	mux.HandleFunc("GET /api/sessions/{sid}/events", h.handleEvents)
	mux.HandleFunc("GET /api/sessions/{sid}/graphs/{gid}/nodes", h.handleGraphNodes)
	return mux
}

func pathSessionID(r *http.Request) string {
	return r.PathValue("sid")
}
