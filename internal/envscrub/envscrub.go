// Package envscrub centralizes construction of the child environment
// passed to agent subprocesses. Ad-hoc filtering at call sites is exactly
// what this exists to prevent.
package envscrub

import (
	"fmt"
	"os"
	"strings"
)

// selfIdentifyingKeys are host environment variables that, if inherited,
// would mislead a spawned agent CLI into believing it is itself running
// nested inside another agent's session. Matching is case-insensitive.
var selfIdentifyingKeys = []string{
	"CLAUDECODE",
	"CLAUDE_CODE_ENTRYPOINT",
	"CLAUDE_CODE_SSE_PORT",
	"CODEX_SANDBOX",
	"CODEX_SANDBOX_NETWORK_DISABLED",
	"CURSOR_AGENT",
	"CURSOR_TRACE_ID",
}

// Build returns a copy of the host environment (os.Environ) with every
// self-identifying key removed, plus any extra key/value pairs overlaid.
func Build(extra map[string]string) []string {
	blocked := make(map[string]bool, len(selfIdentifyingKeys))
	for _, k := range selfIdentifyingKeys {
		blocked[strings.ToUpper(k)] = true
	}

	host := os.Environ()
	out := make([]string, 0, len(host)+len(extra))
	for _, kv := range host {
		name, _, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		if blocked[strings.ToUpper(name)] {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range extra {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
