// Package agentfile implements httpapi.AgentLoader by reading a graph
// specification as JSON from the persistence layout's agents directory
// (~/.hive/agents/{name}.json) and resolving its model by name against a
// small registry the composition root supplies. Graph authoring itself is
// out of scope; this only deserializes an already-authored file.
package agentfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hiveagent/hive/graph"
	"github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/session"
	"github.com/hiveagent/hive/toolreg"
)

// Loader resolves an agent_path (a bare name, not a filesystem path, to
// keep the HTTP surface independent of server-local layout) to a
// session.AgentSpec.
type Loader struct {
	dir    string
	models map[string]node.Model
	tools  *toolreg.Registry
}

// New constructs a Loader rooted at dir (typically config.Config.AgentsDir())
// with models as the name -> node.Model registry that "model" overrides
// resolve against. A node with no "model" override uses the file's
// default_model.
func New(dir string, models map[string]node.Model, tools *toolreg.Registry) *Loader {
	return &Loader{dir: dir, models: models, tools: tools}
}

type fileSpec struct {
	ID           string          `json:"id"`
	DefaultModel string          `json:"default_model"`
	Graphs       []fileGraphSpec `json:"graphs"`
}

type fileGraphSpec struct {
	ID          string           `json:"id"`
	EntryNode   string           `json:"entry_node"`
	Nodes       []fileNodeSpec   `json:"nodes"`
	Edges       []fileEdgeSpec   `json:"edges"`
	EntryPoints []fileEntryPoint `json:"entry_points"`
}

type fileNodeSpec struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	OutputKeys      []fileOutputKey `json:"output_keys"`
	PermittedTools  []string        `json:"permitted_tools"`
	MaxRetries      int             `json:"max_retries"`
	MaxNodeVisits   int             `json:"max_node_visits"`
	MaxIterations   int             `json:"max_iterations"`
	SuccessCriteria string          `json:"success_criteria"`
	SystemPrompt    string          `json:"system_prompt"`
	ClientFacing    bool            `json:"client_facing"`
}

type fileOutputKey struct {
	Name     string `json:"name"`
	Nullable bool   `json:"nullable"`
}

type fileEdgeSpec struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Condition string `json:"condition"`
	Priority  int    `json:"priority"`
}

type fileEntryPoint struct {
	ID          string `json:"id"`
	TriggerKind string `json:"trigger_kind"`
	TargetNode  string `json:"target_node"`
}

// Load implements httpapi.AgentLoader.
func (l *Loader) Load(_ context.Context, agentPath, modelName string) (session.AgentSpec, error) {
	path := filepath.Join(l.dir, agentPath+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return session.AgentSpec{}, fmt.Errorf("%w: read agent file %q: %v", graph.ErrConfigError, agentPath, err)
	}

	var fs fileSpec
	if err := json.Unmarshal(raw, &fs); err != nil {
		return session.AgentSpec{}, fmt.Errorf("%w: decode agent file %q: %v", graph.ErrConfigError, agentPath, err)
	}

	if modelName == "" {
		modelName = fs.DefaultModel
	}
	model, ok := l.models[modelName]
	if !ok {
		return session.AgentSpec{}, fmt.Errorf("%w: unknown model %q", graph.ErrConfigError, modelName)
	}

	graphs := make([]graph.GraphSpec, 0, len(fs.Graphs))
	for _, g := range fs.Graphs {
		graphs = append(graphs, toGraphSpec(g))
	}

	var toolExec node.ToolExecutor
	if l.tools != nil {
		toolExec = registryExecutor{l.tools}
	}

	return session.AgentSpec{
		ID:           fs.ID,
		Graphs:       graphs,
		Model:        model,
		Tools:        l.tools,
		ToolExecutor: toolExec,
	}, nil
}

type registryExecutor struct{ reg *toolreg.Registry }

func (r registryExecutor) Execute(ctx context.Context, call toolreg.ToolCall) (toolreg.ToolResult, error) {
	return r.reg.Execute(ctx, call)
}

func toGraphSpec(fg fileGraphSpec) graph.GraphSpec {
	nodes := make([]graph.NodeSpec, 0, len(fg.Nodes))
	for _, n := range fg.Nodes {
		outputs := make([]graph.OutputKey, 0, len(n.OutputKeys))
		for _, k := range n.OutputKeys {
			outputs = append(outputs, graph.OutputKey{Name: k.Name, Nullable: k.Nullable})
		}
		nodes = append(nodes, graph.NodeSpec{
			ID:              n.ID,
			Type:            graph.NodeType(n.Type),
			OutputKeys:      outputs,
			PermittedTools:  n.PermittedTools,
			MaxRetries:      n.MaxRetries,
			MaxNodeVisits:   n.MaxNodeVisits,
			MaxIterations:   n.MaxIterations,
			SuccessCriteria: n.SuccessCriteria,
			SystemPrompt:    n.SystemPrompt,
			ClientFacing:    n.ClientFacing,
		})
	}

	edges := make([]graph.EdgeSpec, 0, len(fg.Edges))
	for _, e := range fg.Edges {
		edges = append(edges, graph.EdgeSpec{
			Source:    e.Source,
			Target:    e.Target,
			Condition: graph.EdgeCondition(e.Condition),
			Priority:  e.Priority,
		})
	}

	entryPoints := make([]graph.EntryPointSpec, 0, len(fg.EntryPoints))
	for _, ep := range fg.EntryPoints {
		entryPoints = append(entryPoints, graph.EntryPointSpec{
			ID:          ep.ID,
			TriggerKind: ep.TriggerKind,
			TargetNode:  ep.TargetNode,
		})
	}

	return graph.GraphSpec{
		ID:          fg.ID,
		EntryNode:   fg.EntryNode,
		Nodes:       nodes,
		Edges:       edges,
		EntryPoints: entryPoints,
	}
}
