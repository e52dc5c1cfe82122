package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hiveagent/hive/checkpoint"
	"github.com/hiveagent/hive/graph"
	"github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/session"
)

const (
	errorCodeInvalidRequest = "invalid_request"
	errorCodeNotFound       = "not_found"
	errorCodeConflict       = "conflict"
	errorCodeForbidden      = "forbidden"
	errorCodeUnprocessable  = "unprocessable"
	errorCodeRuntime        = "runtime_error"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{Error: apiError{Code: code, Message: message}})
}

func writeInvalidRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, errorCodeInvalidRequest, message)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code := mapRuntimeError(err)
	writeError(w, status, code, err.Error())
}

// errBodyRequired is returned by decodeJSONBody for a missing/empty body.
// Callers where every field is optional (e.g. session creation) treat it
// as "use zero values" rather than a client error.
var errBodyRequired = errors.New("request body is required")

func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errBodyRequired
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain exactly one JSON object")
	}
	return nil
}

// mapRuntimeError classifies a session/graph/node/checkpoint sentinel error
// into an HTTP status and a stable machine-readable code, grounded in the
// teacher's httpapi/response.go mapRuntimeError.
func mapRuntimeError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrExecutionNotFound),
		errors.Is(err, session.ErrEntryPointNotFound),
		errors.Is(err, session.ErrGraphNotFound),
		errors.Is(err, checkpoint.ErrNotFound):
		return http.StatusNotFound, errorCodeNotFound

	case errors.Is(err, session.ErrSessionExists),
		errors.Is(err, session.ErrWorkerBusy):
		return http.StatusConflict, errorCodeConflict

	case errors.Is(err, session.ErrNoWorker),
		errors.Is(err, session.ErrChatUnavailable):
		return http.StatusForbidden, errorCodeForbidden

	case errors.Is(err, session.ErrSessionIDEmpty),
		errors.Is(err, session.ErrConfigError),
		errors.Is(err, graph.ErrConfigError),
		errors.Is(err, checkpoint.ErrSessionIDEmpty):
		return http.StatusBadRequest, errorCodeInvalidRequest

	case errors.Is(err, node.ErrStalled),
		errors.Is(err, node.ErrToolDoomLoop),
		errors.Is(err, node.ErrIterationBudgetExhausted):
		return http.StatusUnprocessableEntity, errorCodeUnprocessable

	default:
		return http.StatusInternalServerError, errorCodeRuntime
	}
}
