package invoker

// Schema identifies which of the three documented NDJSON envelopes a
// backend's stream output follows.
type Schema string

const (
	SchemaClaude Schema = "claude"
	SchemaCodex  Schema = "codex"
	SchemaCursor Schema = "cursor"
)

// Backend describes one configured agent CLI.
type Backend struct {
	Name               string
	Binary             string
	BaseArgs           []string
	ResumeFlag         string // e.g. "--resume"; empty disables continuation
	StreamFormatArgs   []string
	ReadOnlyArgs       []string // passed only by the Council Orchestrator
	PromptViaStdin     bool     // false: prompt is appended as the final argv element
	Schema             Schema
}

// DefaultBackends returns the three built-in backends:
// claude, codex, cursor.
func DefaultBackends() map[string]Backend {
	return map[string]Backend{
		"claude": {
			Name:             "claude",
			Binary:           "claude",
			BaseArgs:         []string{"--print", "--output-format", "stream-json", "--verbose"},
			ResumeFlag:       "--resume",
			StreamFormatArgs: nil,
			ReadOnlyArgs:     []string{"--allowedTools", ""},
			PromptViaStdin:   true,
			Schema:           SchemaClaude,
		},
		"codex": {
			Name:             "codex",
			Binary:           "codex",
			BaseArgs:         []string{"exec", "--json"},
			ResumeFlag:       "--session",
			PromptViaStdin:   true,
			Schema:           SchemaCodex,
		},
		"cursor": {
			Name:             "cursor",
			Binary:           "cursor-agent",
			BaseArgs:         []string{"--print", "--output-format", "stream-json"},
			ResumeFlag:       "--resume",
			PromptViaStdin:   true,
			Schema:           SchemaCursor,
		},
	}
}
