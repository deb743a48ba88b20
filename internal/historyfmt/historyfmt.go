// Package historyfmt renders a thread's messages into the plain
// conversation block used in group-chat and council-review prompts.
package historyfmt

import (
	"fmt"
	"strings"

	"github.com/kdorchestrator/kd/internal/thread"
)

// Render formats history for target, who is about to be prompted to
// continue the discussion.
func Render(messages []thread.Message, target string) string {
	var sb strings.Builder
	sb.WriteString("[Previous conversation]\n")
	for _, m := range messages {
		body := thread.StripSenderPrefix(m.From, m.Body)
		fmt.Fprintf(&sb, "%s: %s\n\n", m.From, strings.TrimRight(body, "\n"))
	}
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "You are %s. Continue the discussion. Respond to the points raised above.\n", target)
	return sb.String()
}
