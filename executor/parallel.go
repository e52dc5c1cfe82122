package executor

import (
	"context"
	"fmt"
	"reflect"

	"golang.org/x/sync/errgroup"

	"github.com/hiveagent/hive/eventbus"
	"github.com/hiveagent/hive/graph"
	"github.com/hiveagent/hive/state"
)

// runParallel runs each branch rooted at one of edges' targets to its own
// natural completion on an isolated Execution clone, then merges their
// staged outputs back into exec and sharedState. Under SHARED/ISOLATED
// isolation a key written by more than one branch is a state_conflict and
// fails the execution; under SYNCHRONIZED the branches are merged in
// traversal order, so the later branch's value wins.
//
// This runs each branch to completion rather than joining at the graph's
// nearest common descendant: simpler to reason about and to test, at the
// cost of not supporting branches that are meant to reconverge mid-flight.
func (x *GraphExecutor) runParallel(ctx context.Context, g graph.GraphSpec, exec graph.Execution, edges []graph.EdgeSpec, bus *eventbus.Bus, sharedState *state.SharedState) (graph.Execution, error) {
	branches := make([]graph.Execution, len(edges))
	grp, gctx := errgroup.WithContext(ctx)

	for i, edge := range edges {
		i, edge := i, edge
		bus.Publish(eventbus.Event{
			Type: eventbus.EventEdgeTraversed,
			Data: map[string]any{"source": edge.Source, "target": edge.Target, "edge_condition": edge.Condition, "parallel": true},
		})
		branch := exec.Clone()
		branch.CurrentNode = edge.Target
		grp.Go(func() error {
			result, err := x.walk(gctx, g, branch, bus, sharedState, false)
			branches[i] = result
			return err
		})
	}

	if err := grp.Wait(); err != nil {
		return exec, err
	}

	return mergeBranches(exec, branches, bus, sharedState)
}

func mergeBranches(base graph.Execution, branches []graph.Execution, bus *eventbus.Bus, sharedState *state.SharedState) (graph.Execution, error) {
	merged := base
	writers := make(map[string]int) // output key -> branch index that wrote it first
	inherited := make(map[string]any, len(base.Outputs))
	for key, value := range base.Outputs {
		inherited[key] = value
	}

	for i, b := range branches {
		for key, value := range b.Outputs {
			if before, ok := inherited[key]; ok && reflect.DeepEqual(before, value) {
				continue // carried over from before the fan-out, not written by this branch
			}
			if writer, already := writers[key]; already {
				if sharedState.Isolation() == state.Synchronized {
					merged.Outputs[key] = value
					sharedState.Set(merged.ExecutionID, key, value)
					continue
				}
				bus.Publish(eventbus.Event{
					Type: eventbus.EventStateConflict,
					Data: map[string]any{"key": key, "branches": []int{writer, i}},
				})
				return base, fmt.Errorf("%w: key=%q written by branches %d and %d", ErrStateConflict, key, writer, i)
			}
			writers[key] = i
			merged.Outputs[key] = value
			sharedState.Set(merged.ExecutionID, key, value)
		}
		for node, count := range b.VisitCounts {
			merged.VisitCounts[node] += count
		}
	}
	return merged, nil
}
