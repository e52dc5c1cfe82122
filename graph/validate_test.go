package graph

import (
	"errors"
	"testing"
)

func TestValidateEmptyGraphRejected(t *testing.T) {
	err := Validate(GraphSpec{})
	if !errors.Is(err, ErrEmptyGraph) {
		t.Fatalf("expected ErrEmptyGraph, got %v", err)
	}
}

func TestValidateMissingEntryNode(t *testing.T) {
	g := GraphSpec{
		Nodes:     []NodeSpec{{ID: "a"}},
		EntryNode: "missing",
	}
	if err := Validate(g); !errors.Is(err, ErrMissingEntryNode) {
		t.Fatalf("expected ErrMissingEntryNode, got %v", err)
	}
}

func TestValidateDanglingEdge(t *testing.T) {
	g := GraphSpec{
		Nodes:     []NodeSpec{{ID: "a"}},
		EntryNode: "a",
		Edges:     []EdgeSpec{{Source: "a", Target: "ghost", Condition: EdgeAlways}},
	}
	if err := Validate(g); !errors.Is(err, ErrDanglingEdge) {
		t.Fatalf("expected ErrDanglingEdge, got %v", err)
	}
}

func TestValidateOnSuccessCycleWithNoExitRejected(t *testing.T) {
	g := GraphSpec{
		Nodes:     []NodeSpec{{ID: "a"}, {ID: "b"}},
		EntryNode: "a",
		Edges: []EdgeSpec{
			{Source: "a", Target: "b", Condition: EdgeOnSuccess},
			{Source: "b", Target: "a", Condition: EdgeOnSuccess},
		},
	}
	if err := Validate(g); !errors.Is(err, ErrNoExitFromOnSuccess) {
		t.Fatalf("expected ErrNoExitFromOnSuccess, got %v", err)
	}
}

func TestValidateOnSuccessCycleWithExitAllowed(t *testing.T) {
	g := GraphSpec{
		Nodes:     []NodeSpec{{ID: "a"}, {ID: "b"}},
		EntryNode: "a",
		Edges: []EdgeSpec{
			{Source: "a", Target: "b", Condition: EdgeOnSuccess},
			{Source: "b", Target: "a", Condition: EdgeOnSuccess},
			{Source: "b", Target: "a", Condition: EdgeOnFailure},
		},
	}
	if err := Validate(g); err != nil {
		t.Fatalf("expected no error for a cycle with an escape edge, got %v", err)
	}
}

func TestOutgoingEdgesSortedByPriorityThenDeclarationOrder(t *testing.T) {
	g := GraphSpec{
		Edges: []EdgeSpec{
			{Source: "a", Target: "x", Priority: 5},
			{Source: "a", Target: "y", Priority: 1},
			{Source: "a", Target: "z", Priority: 1},
		},
	}
	out := g.OutgoingEdges("a")
	if len(out) != 3 || out[0].Target != "y" || out[1].Target != "z" || out[2].Target != "x" {
		t.Fatalf("unexpected edge order: %+v", out)
	}
}

func TestClassifyBackEdges(t *testing.T) {
	g := GraphSpec{
		Edges: []EdgeSpec{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}
	back := ClassifyBackEdges(g, "a")
	if !back[1] {
		t.Fatalf("expected edge index 1 (b->a) to be classified as a back edge, got %v", back)
	}
	if back[0] {
		t.Fatalf("did not expect edge index 0 (a->b) to be a back edge")
	}
}
