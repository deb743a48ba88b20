// Package frontmatter splits and rebuilds markdown files with a leading
// YAML metadata block, the format used for every Task and Message file
// under .kd/.
package frontmatter

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Document is a parsed frontmatter file: Raw holds every frontmatter key
// decoded into a generic map, and Body the markdown that follows the
// closing delimiter. Keys are not split into known and unknown sets.
type Document struct {
	Raw  map[string]any
	Body string
}

// Parse splits data into its frontmatter map and body. It returns an error
// if the file does not open with a "---" line or the closing delimiter is
// missing.
func Parse(data []byte) (Document, error) {
	text := string(data)
	if !strings.HasPrefix(text, delimiter) {
		return Document{}, fmt.Errorf("frontmatter: missing opening %q delimiter", delimiter)
	}
	rest := text[len(delimiter):]
	rest = "\n" + strings.TrimPrefix(rest, "\n")

	closeIdx := strings.Index(rest, "\n"+delimiter)
	if closeIdx < 0 {
		return Document{}, fmt.Errorf("frontmatter: missing closing %q delimiter", delimiter)
	}
	yamlBlock := rest[:closeIdx]
	after := rest[closeIdx+1+len(delimiter):]
	after = strings.TrimPrefix(after, "\n")

	raw := map[string]any{}
	if strings.TrimSpace(yamlBlock) != "" {
		if err := yaml.Unmarshal([]byte(yamlBlock), &raw); err != nil {
			return Document{}, fmt.Errorf("frontmatter: parse yaml block: %w", err)
		}
	}

	return Document{Raw: raw, Body: after}, nil
}

// Render writes fields as a YAML block (a map's keys come out sorted, a
// struct's fields in declaration order) followed by body, with each body
// line's trailing whitespace stripped.
func Render(fields any, body string) ([]byte, error) {
	yamlBytes, err := yaml.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: render yaml block: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(delimiter)
	sb.WriteString("\n")
	sb.Write(yamlBytes)
	sb.WriteString(delimiter)
	sb.WriteString("\n")
	sb.WriteString(StripTrailingWhitespace(body))
	return []byte(sb.String()), nil
}

// StripTrailingWhitespace removes trailing spaces/tabs from each line of s,
// preserving intentional empty lines.
func StripTrailingWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
