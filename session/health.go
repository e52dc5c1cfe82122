package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hiveagent/hive/eventbus"
)

// DefaultHealthJudgeInterval is how often HealthJudge inspects the worker's
// recent event window when a session does not override it.
const DefaultHealthJudgeInterval = 10 * time.Second

// healthJudgeRetryThreshold is the number of node_retry events in one
// inspection window that counts as an elevated retry rate worth a ticket.
const healthJudgeRetryThreshold = 3

// HealthJudge is the optional timer-driven executor created alongside a
// worker. It inspects the worker's recent events on a fixed schedule and
// may escalate pathology to the queen.
type HealthJudge struct {
	bus      *eventbus.Bus
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	recent []eventbus.Event

	sub  eventbus.Handle
	stop chan struct{}
	wg   sync.WaitGroup
}

func newHealthJudge(bus *eventbus.Bus, interval time.Duration, logger *slog.Logger) *HealthJudge {
	if interval <= 0 {
		interval = DefaultHealthJudgeInterval
	}
	return &HealthJudge{
		bus:      bus,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start subscribes to the worker's bus and begins the inspection ticker.
func (h *HealthJudge) Start() error {
	handle, err := h.bus.Subscribe(eventbus.Filter{}, h.record)
	if err != nil {
		return err
	}
	h.sub = handle
	h.wg.Add(1)
	go h.loop()
	return nil
}

// Stop ends the inspection ticker and unsubscribes from the bus.
func (h *HealthJudge) Stop() {
	close(h.stop)
	h.wg.Wait()
	_ = h.bus.Unsubscribe(h.sub)
}

func (h *HealthJudge) record(e eventbus.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent = append(h.recent, e)
}

func (h *HealthJudge) loop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.inspect()
		case <-h.stop:
			return
		}
	}
}

func (h *HealthJudge) inspect() {
	h.mu.Lock()
	window := h.recent
	h.recent = nil
	h.mu.Unlock()

	var retries, pathologies int
	for _, e := range window {
		switch e.Type {
		case eventbus.EventNodeRetry:
			retries++
		case eventbus.EventNodeStalled, eventbus.EventNodeToolDoomLoop:
			pathologies++
		}
	}

	switch {
	case pathologies > 0:
		h.bus.Publish(eventbus.Event{
			Type: eventbus.EventWorkerEscalationTicket,
			Data: map[string]any{"reason": "node pathology detected", "count": pathologies},
		})
		h.bus.Publish(eventbus.Event{
			Type: eventbus.EventQueenInterventionRequested,
			Data: map[string]any{"reason": "worker pathology"},
		})
	case retries >= healthJudgeRetryThreshold:
		h.bus.Publish(eventbus.Event{
			Type: eventbus.EventWorkerEscalationTicket,
			Data: map[string]any{"reason": "elevated retry rate", "retries": retries},
		})
	}
}
