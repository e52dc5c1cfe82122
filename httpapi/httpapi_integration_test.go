package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hiveagent/hive/graph"
	"github.com/hiveagent/hive/httpapi"
	"github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/node/nodetest"
	"github.com/hiveagent/hive/session"
	"github.com/hiveagent/hive/state"
	"github.com/hiveagent/hive/toolreg"
)

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type fakeLoader struct {
	spec session.AgentSpec
	err  error
}

func (f fakeLoader) Load(context.Context, string, string) (session.AgentSpec, error) {
	return f.spec, f.err
}

func setOutputTurn(key, value string) node.Turn {
	return node.Turn{
		Role: node.RoleAssistant,
		ToolCalls: []toolreg.ToolCall{
			{ID: "1", Name: toolreg.SetOutputTool, Arguments: map[string]any{"key": key, "value": value}},
		},
	}
}

func newTestServer(t *testing.T, loader httpapi.AgentLoader) *httptest.Server {
	t.Helper()
	manager := session.NewManager(nil, session.QueenConfig{}, state.Shared, 0, nil)
	router := httpapi.NewRouter(manager, loader, nil)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func performJSON(t *testing.T, client *http.Client, method, url string, body any, dst any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestCreateSessionAndGet(t *testing.T) {
	server := newTestServer(t, nil)

	var created map[string]any
	status := performJSON(t, server.Client(), http.MethodPost, server.URL+"/api/sessions", map[string]string{"session_id": "s1"}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create status: got=%d want=%d", status, http.StatusCreated)
	}
	if created["session_id"] != "s1" {
		t.Fatalf("unexpected session_id: %+v", created)
	}

	var fetched map[string]any
	status = performJSON(t, server.Client(), http.MethodGet, server.URL+"/api/sessions/s1", nil, &fetched)
	if status != http.StatusOK {
		t.Fatalf("get status: got=%d want=%d", status, http.StatusOK)
	}

	var conflict map[string]any
	status = performJSON(t, server.Client(), http.MethodPost, server.URL+"/api/sessions", map[string]string{"session_id": "s1"}, &conflict)
	if status != http.StatusConflict {
		t.Fatalf("duplicate create status: got=%d want=%d", status, http.StatusConflict)
	}
}

func TestGetUnknownSessionNotFound(t *testing.T) {
	server := newTestServer(t, nil)

	var resp errorResponse
	status := performJSON(t, server.Client(), http.MethodGet, server.URL+"/api/sessions/nope", nil, &resp)
	if status != http.StatusNotFound {
		t.Fatalf("status: got=%d want=%d", status, http.StatusNotFound)
	}
	if resp.Error.Code != "not_found" {
		t.Fatalf("code: got=%q want=%q", resp.Error.Code, "not_found")
	}
}

func TestLoadWorkerAndTriggerLinearGraph(t *testing.T) {
	model := nodetest.NewScriptedModel(setOutputTurn("ans", "hi"))
	g := graph.GraphSpec{
		ID:        "g1",
		EntryNode: "a",
		Nodes: []graph.NodeSpec{
			{ID: "a", Type: graph.NodeTypeEventLoop, MaxIterations: 5, OutputKeys: []graph.OutputKey{{Name: "ans"}}},
		},
		EntryPoints: []graph.EntryPointSpec{{ID: "start", TargetNode: "a", TriggerKind: "manual"}},
	}
	loader := fakeLoader{spec: session.AgentSpec{
		ID:           "agent1",
		Graphs:       []graph.GraphSpec{g},
		Model:        model,
		ToolExecutor: nodetest.NewMapToolExecutor(nil),
	}}
	server := newTestServer(t, loader)

	performJSON(t, server.Client(), http.MethodPost, server.URL+"/api/sessions", map[string]string{"session_id": "s1"}, nil)

	var loaded map[string]any
	status := performJSON(t, server.Client(), http.MethodPost, server.URL+"/api/sessions/s1/worker", map[string]string{"agent_path": "local://agent1"}, &loaded)
	if status != http.StatusOK {
		t.Fatalf("load worker status: got=%d want=%d", status, http.StatusOK)
	}

	var triggered map[string]string
	status = performJSON(t, server.Client(), http.MethodPost, server.URL+"/api/sessions/s1/trigger",
		map[string]any{"entry_point_id": "start", "input_data": map[string]any{"q": "hi"}}, &triggered)
	if status != http.StatusOK {
		t.Fatalf("trigger status: got=%d want=%d", status, http.StatusOK)
	}
	if triggered["execution_id"] == "" {
		t.Fatal("expected execution_id in trigger response")
	}

	var topology map[string]any
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		status = performJSON(t, server.Client(), http.MethodGet, server.URL+"/api/sessions/s1/graphs/g1/nodes", nil, &topology)
		if status == http.StatusOK {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if status != http.StatusOK {
		t.Fatalf("graph topology status: got=%d want=%d", status, http.StatusOK)
	}
	if topology["graph_id"] != "g1" {
		t.Fatalf("unexpected topology: %+v", topology)
	}
}

func TestTriggerWithoutWorkerIsForbidden(t *testing.T) {
	server := newTestServer(t, nil)
	performJSON(t, server.Client(), http.MethodPost, server.URL+"/api/sessions", map[string]string{"session_id": "s1"}, nil)

	var resp errorResponse
	status := performJSON(t, server.Client(), http.MethodPost, server.URL+"/api/sessions/s1/trigger",
		map[string]any{"entry_point_id": "start"}, &resp)
	if status != http.StatusForbidden {
		t.Fatalf("status: got=%d want=%d", status, http.StatusForbidden)
	}
}
