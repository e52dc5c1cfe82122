// Package app wires the hiveserver composition root: event bus, checkpoint
// store, session manager, HTTP server, and graceful shutdown, following the
// teacher's internal/app.App split between process wiring and transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/hiveagent/hive/agentfile"
	"github.com/hiveagent/hive/checkpoint/fsstore"
	"github.com/hiveagent/hive/config"
	"github.com/hiveagent/hive/httpapi"
	"github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/session"
	"github.com/hiveagent/hive/state"
	"github.com/hiveagent/hive/toolreg"
)

// App owns the hiveserver process's runtime wiring and HTTP server
// lifecycle.
type App struct {
	cfg               config.Config
	manager           *session.Manager
	server            *http.Server
	cancelServerScope context.CancelFunc
	ready             atomic.Bool
}

// New composes the runtime from cfg: a filesystem checkpoint store rooted
// at cfg.CheckpointDir, an agentfile.Loader rooted at cfg.AgentsDir using
// models as its name -> node.Model registry (real LLM provider wiring is
// this engine's boundary, supplied by the embedding deployment), and a
// session.Manager with queenConfig as every session's always-on queen.
func New(cfg config.Config, models map[string]node.Model, queenConfig session.QueenConfig, tools *toolreg.Registry, logger *slog.Logger) (*App, error) {
	if cfg.HTTPAddr == "" {
		return nil, errors.New("new app: empty HTTPAddr")
	}
	if logger == nil {
		return nil, errors.New("new app: nil logger")
	}

	checkpoints, err := fsstore.New(cfg.CheckpointDir())
	if err != nil {
		return nil, fmt.Errorf("new app checkpoint store: %w", err)
	}

	manager := session.NewManager(checkpoints, queenConfig, state.Isolated, cfg.HealthInterval, logger)
	loader := agentfile.New(cfg.AgentsDir(), models, tools)

	serverScopeCtx, cancelServerScope := context.WithCancel(context.Background())
	a := &App{
		cfg:               cfg,
		manager:           manager,
		cancelServerScope: cancelServerScope,
	}

	router := httpapi.NewRouter(manager, loader, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.Handle("/", router)

	handler := httpapi.RequestLogging(logger)(
		httpapi.RequestLimits(cfg.Limits)(
			httpapi.CORS(cfg.CORS)(mux),
		),
	)

	a.server = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return serverScopeCtx
		},
	}

	return a, nil
}

// Start blocks serving HTTP until Shutdown is called.
func (a *App) Start() error {
	a.ready.Store(true)
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	a.ready.Store(false)
	return err
}

// Shutdown drains in-flight HTTP requests within ctx's deadline. Live
// session executions are not cancelled here; the caller destroys sessions
// explicitly if a full teardown is desired.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return errors.New("shutdown: nil context")
	}
	a.ready.Store(false)
	a.cancelServerScope()
	return a.server.Shutdown(ctx)
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !a.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
