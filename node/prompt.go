package node

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ComposeSystemPrompt assembles a node's system prompt from up to three
// layers: static node identity, an auto-summarized narrative of prior
// output-key writes (only present once this node run has set some),
// and a trailing timestamp line. Narrative generation here is a plain
// string join rather than an LLM summarization call — synthesizing a
// narrative via the model is outside this loop's boundary.
func ComposeSystemPrompt(identity string, recentOutputs map[string]any, now time.Time) string {
	var b strings.Builder
	b.WriteString(identity)

	if len(recentOutputs) > 0 {
		b.WriteString("\n\nContext from prior steps:\n")
		keys := make([]string, 0, len(recentOutputs))
		for key := range recentOutputs {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", key, recentOutputs[key])
		}
	}

	b.WriteString("\nCurrent date and time: ")
	b.WriteString(now.Format(time.RFC3339))
	return b.String()
}
