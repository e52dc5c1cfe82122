package session

import "errors"

var (
	// ErrSessionNotFound is returned for any operation against an unknown session id.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionExists is returned by Create when session_id is already taken.
	ErrSessionExists = errors.New("session: already exists")
	// ErrWorkerBusy is returned by LoadWorker when a worker is already loaded.
	ErrWorkerBusy = errors.New("session: worker already loaded")
	// ErrNoWorker is returned by operations that require a loaded worker.
	ErrNoWorker = errors.New("session: no worker loaded")
	// ErrExecutionNotFound is returned by Stop/Inject for an unknown execution id.
	ErrExecutionNotFound = errors.New("session: execution not found")
	// ErrChatUnavailable is returned by Chat when neither a blocked worker nor a queen can take the message.
	ErrChatUnavailable = errors.New("session: no worker or queen available to receive chat")
	// ErrSessionIDEmpty is returned when a caller supplies an empty session id to Create.
	ErrSessionIDEmpty = errors.New("session: id is empty")
	// ErrConfigError wraps a rejected AgentSpec (e.g. no graphs declared).
	ErrConfigError = errors.New("session: invalid agent spec")
	// ErrEntryPointNotFound is returned by Trigger for an unknown entry point id.
	ErrEntryPointNotFound = errors.New("session: entry point not found")
	// ErrGraphNotFound is returned when a checkpoint references a graph the worker no longer holds.
	ErrGraphNotFound = errors.New("session: graph not found")
)
