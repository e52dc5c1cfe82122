// Command hiveserver runs the HTTP front end over the session engine:
// session lifecycle, worker loading, triggers, chat, and SSE event
// streaming, per the persistence layout rooted at HIVE_HOME.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hiveagent/hive/config"
	"github.com/hiveagent/hive/internal/app"
	"github.com/hiveagent/hive/judge"
	"github.com/hiveagent/hive/logging"
	"github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/session"
	"github.com/hiveagent/hive/toolreg"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)

	tools := toolreg.New()
	models := modelRegistry()

	queenConfig := session.QueenConfig{
		ToolExecutor:  registryExecutor{tools},
		JudgeProtocol: judge.New(nil, nil, 0),
	}
	if m, ok := models[defaultModelName]; ok {
		queenConfig.Model = m
	}

	application, err := app.New(cfg, models, queenConfig, tools, logger)
	if err != nil {
		log.Fatalf("new app: %v", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- application.Start()
	}()
	logger.Info("hiveserver listening", "addr", cfg.HTTPAddr)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrCh:
		if err != nil {
			log.Fatalf("server exited: %v", err)
		}
		return
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	logger.Info("hiveserver shutting down")
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown server: %v", err)
	}

	if err := <-serverErrCh; err != nil {
		log.Fatalf("server stopped with error: %v", err)
	}
}

const defaultModelName = "default"

// modelRegistry returns the name -> node.Model registry queens and workers
// resolve "model" overrides against. Wiring a real provider (OpenAI,
// Anthropic, a local runtime) is a deployment concern outside this engine's
// scope; operators building a production hiveserver binary replace this
// function with one that constructs their provider client and registers it
// under defaultModelName.
func modelRegistry() map[string]node.Model {
	return map[string]node.Model{}
}

type registryExecutor struct{ reg *toolreg.Registry }

func (r registryExecutor) Execute(ctx context.Context, call toolreg.ToolCall) (toolreg.ToolResult, error) {
	return r.reg.Execute(ctx, call)
}
