package httpapi

import (
	"net/http"

	"github.com/hiveagent/hive/session"
)

type nodeProgressResponse struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	MaxNodeVisits int    `json:"max_node_visits,omitempty"`
	VisitCount    int    `json:"visit_count"`
}

type edgeResponse struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Condition string `json:"condition"`
	Priority  int    `json:"priority"`
}

type graphTopologyResponse struct {
	GraphID   string                 `json:"graph_id"`
	EntryNode string                 `json:"entry_node"`
	Nodes     []nodeProgressResponse `json:"nodes"`
	Edges     []edgeResponse         `json:"edges"`
}

// handleGraphNodes returns a worker's loaded graph topology plus per-node
// visit counts of one of the graph's executions (see visitCountsFor). The
// optional "execution_id" query param selects a specific execution. Visit
// counts are those recorded when an execution ended; an execution still
// running reports none.
func (h *handlers) handleGraphNodes(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.manager.Get(pathSessionID(r))
	if !ok {
		writeError(w, http.StatusNotFound, errorCodeNotFound, "session not found")
		return
	}
	worker, ok := sess.Worker()
	if !ok {
		writeError(w, http.StatusForbidden, errorCodeForbidden, "no worker loaded")
		return
	}
	g, ok := worker.Graph(r.PathValue("gid"))
	if !ok {
		writeError(w, http.StatusNotFound, errorCodeNotFound, "graph not found")
		return
	}

	visits := visitCountsFor(worker, g.ID, r.URL.Query().Get("execution_id"))

	resp := graphTopologyResponse{
		GraphID:   g.ID,
		EntryNode: g.EntryNode,
		Nodes:     make([]nodeProgressResponse, 0, len(g.Nodes)),
		Edges:     make([]edgeResponse, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		resp.Nodes = append(resp.Nodes, nodeProgressResponse{
			ID:            n.ID,
			Type:          string(n.Type),
			MaxNodeVisits: n.MaxNodeVisits,
			VisitCount:    visits[n.ID],
		})
	}
	for _, e := range g.Edges {
		resp.Edges = append(resp.Edges, edgeResponse{
			Source:    e.Source,
			Target:    e.Target,
			Condition: string(e.Condition),
			Priority:  e.Priority,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// visitCountsFor returns the visit-count ledger of executionID among
// worker's streams for graphID. If executionID is empty it takes whichever
// stream for graphID Worker.Streams lists last; that list has no defined
// order, so this is not necessarily the most recently started execution.
// Returns nil if no matching stream has finished yet.
func visitCountsFor(worker *session.Worker, graphID, executionID string) map[string]int {
	streams := worker.Streams()
	if executionID != "" {
		for _, s := range streams {
			if s.ExecutionID == executionID && s.GraphID == graphID {
				return s.Snapshot().VisitCounts
			}
		}
		return nil
	}

	var latest *session.Stream
	for _, s := range streams {
		if s.GraphID != graphID {
			continue
		}
		latest = s
	}
	if latest == nil {
		return nil
	}
	return latest.Snapshot().VisitCounts
}
