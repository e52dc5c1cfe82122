package node

import (
	"reflect"

	"github.com/hiveagent/hive/toolreg"
)

// detectStall reports whether current is byte-identical to the previous two
// assistant turns (three in a row including the current one) with no tool
// calls accompanying the current turn.
func detectStall(previousTexts []string, current string, currentHasToolCalls bool) bool {
	if currentHasToolCalls {
		return false
	}
	if len(previousTexts) < 2 {
		return false
	}
	lastTwo := previousTexts[len(previousTexts)-2:]
	return lastTwo[0] == current && lastTwo[1] == current
}

// doomLoopTracker counts consecutive iterations where the same tool is
// called with argument-equal inputs and returns a non-error result.
type doomLoopTracker struct {
	toolName  string
	arguments map[string]any
	streak    int
	warned    bool
}

// observe records one iteration's tool calls and results. It reports
// whether a doom loop was detected this call, and whether it is the second
// occurrence (the node should fail rather than just warn).
func (d *doomLoopTracker) observe(calls []toolreg.ToolCall, results []toolreg.ToolResult) (detected bool, shouldFail bool) {
	if len(calls) != 1 || len(results) != 1 {
		d.reset()
		return false, false
	}
	call := calls[0]
	result := results[0]
	if result.IsError {
		d.reset()
		return false, false
	}

	if d.streak > 0 && d.toolName == call.Name && reflect.DeepEqual(d.arguments, call.Arguments) {
		d.streak++
	} else {
		d.toolName = call.Name
		d.arguments = call.Arguments
		d.streak = 1
		d.warned = false
	}

	if d.streak < 3 {
		return false, false
	}
	if !d.warned {
		d.warned = true
		return true, false
	}
	return true, true
}

func (d *doomLoopTracker) reset() {
	d.streak = 0
	d.warned = false
	d.toolName = ""
	d.arguments = nil
}
