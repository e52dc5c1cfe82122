package graph

import "fmt"

// Validate rejects a GraphSpec that cannot be executed: an empty node list,
// a missing or dangling entry node, edges referencing undeclared nodes,
// duplicate node ids, or an on_success-only cycle with no way out. All
// failures wrap ErrConfigError so callers can errors.Is against one
// sentinel regardless of the specific cause.
func Validate(g GraphSpec) error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("%w: %w", ErrConfigError, ErrEmptyGraph)
	}

	seen := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("%w: %w: %q", ErrConfigError, ErrDuplicateNodeID, n.ID)
		}
		seen[n.ID] = struct{}{}
	}

	if _, ok := seen[g.EntryNode]; !ok {
		return fmt.Errorf("%w: %w: %q", ErrConfigError, ErrMissingEntryNode, g.EntryNode)
	}

	for _, e := range g.Edges {
		if _, ok := seen[e.Source]; !ok {
			return fmt.Errorf("%w: %w: source=%q", ErrConfigError, ErrDanglingEdge, e.Source)
		}
		if _, ok := seen[e.Target]; !ok {
			return fmt.Errorf("%w: %w: target=%q", ErrConfigError, ErrDanglingEdge, e.Target)
		}
	}

	if cycle := findOnSuccessOnlyCycle(g); cycle != nil {
		return fmt.Errorf("%w: %w: nodes=%v", ErrConfigError, ErrNoExitFromOnSuccess, cycle)
	}

	return nil
}

// findOnSuccessOnlyCycle reports a cycle made entirely of on_success edges
// where none of the participating nodes has any other outgoing edge, i.e.
// a trap the executor can never leave on success.
func findOnSuccessOnlyCycle(g GraphSpec) []string {
	hasOtherExit := make(map[string]bool, len(g.Nodes))
	onSuccessAdj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		if e.Condition == EdgeOnSuccess {
			onSuccessAdj[e.Source] = append(onSuccessAdj[e.Source], e.Target)
		} else {
			hasOtherExit[e.Source] = true
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.Nodes))
	stack := make([]string, 0, len(g.Nodes))

	var visit func(node string) []string
	visit = func(node string) []string {
		state[node] = visiting
		stack = append(stack, node)
		for _, next := range onSuccessAdj[node] {
			switch state[next] {
			case unvisited:
				if cyc := visit(next); cyc != nil {
					return cyc
				}
			case visiting:
				if !cycleHasExit(stack, next, hasOtherExit) {
					idx := indexOf(stack, next)
					return append([]string(nil), stack[idx:]...)
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[node] = done
		return nil
	}

	for _, n := range g.Nodes {
		if state[n.ID] == unvisited {
			if cyc := visit(n.ID); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

func cycleHasExit(stack []string, from string, hasOtherExit map[string]bool) bool {
	idx := indexOf(stack, from)
	for _, node := range stack[idx:] {
		if hasOtherExit[node] {
			return true
		}
	}
	return false
}

func indexOf(stack []string, node string) int {
	for i, s := range stack {
		if s == node {
			return i
		}
	}
	return -1
}
