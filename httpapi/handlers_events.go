package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hiveagent/hive/eventbus"
)

const ssePingInterval = 15 * time.Second

// handleEvents streams session events as SSE: one JSON-encoded `data:` line
// per event, pushed as the bus's dispatch goroutine calls the subscription
// handler (never polled), plus a `: ping` comment every 15s to keep
// intermediaries from closing the connection. Parse failures are the
// client's concern; the framing here never changes shape mid-stream.
func (h *handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := pathSessionID(r)
	if _, ok := h.manager.Get(sessionID); !ok {
		writeError(w, http.StatusNotFound, errorCodeNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errorCodeRuntime, "streaming is unsupported by response writer")
		return
	}

	filter := parseEventFilter(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan eventbus.Event, eventbus.DefaultQueueCapacity)
	handle, err := h.manager.Subscribe(sessionID, filter, func(e eventbus.Event) {
		select {
		case events <- e:
		default:
		}
	})
	if err != nil {
		return
	}
	defer h.manager.Unsubscribe(sessionID, handle)

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-ping.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseEventFilter(r *http.Request) eventbus.Filter {
	var filter eventbus.Filter
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(t); trimmed != "" {
				filter.EventTypes = append(filter.EventTypes, eventbus.EventType(trimmed))
			}
		}
	}
	return filter
}
