package frontmatter

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	data := []byte("---\nid: abcd\nstatus: open\n---\n# Title\n\nbody text\n")
	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if doc.Raw["id"] != "abcd" {
		t.Errorf("Raw[id] = %v, want abcd", doc.Raw["id"])
	}
	if doc.Raw["status"] != "open" {
		t.Errorf("Raw[status] = %v, want open", doc.Raw["status"])
	}
	if !strings.HasPrefix(doc.Body, "# Title") {
		t.Errorf("Body = %q, want prefix %q", doc.Body, "# Title")
	}
}

func TestParseMissingOpeningDelimiter(t *testing.T) {
	if _, err := Parse([]byte("# Title\nbody\n")); err == nil {
		t.Fatal("Parse() expected error for missing opening delimiter, got nil")
	}
}

func TestParseMissingClosingDelimiter(t *testing.T) {
	if _, err := Parse([]byte("---\nid: abcd\n# Title\n")); err == nil {
		t.Fatal("Parse() expected error for missing closing delimiter, got nil")
	}
}

func TestParseEmptyFrontmatter(t *testing.T) {
	doc, err := Parse([]byte("---\n---\nbody\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Raw) != 0 {
		t.Errorf("Raw = %v, want empty", doc.Raw)
	}
	if doc.Body != "body\n" {
		t.Errorf("Body = %q, want %q", doc.Body, "body\n")
	}
}

func TestRenderRoundTrip(t *testing.T) {
	fields := struct {
		ID     string `yaml:"id"`
		Status string `yaml:"status"`
	}{ID: "abcd", Status: "open"}

	out, err := Render(fields, "# Title\n\nbody\n")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	doc, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(Render()) error = %v", err)
	}
	if doc.Raw["id"] != "abcd" || doc.Raw["status"] != "open" {
		t.Errorf("round-tripped Raw = %v", doc.Raw)
	}
	if !strings.Contains(doc.Body, "# Title") {
		t.Errorf("round-tripped Body = %q", doc.Body)
	}
}

func TestStripTrailingWhitespace(t *testing.T) {
	in := "line one  \nline two\t\n\nline four"
	want := "line one\nline two\n\nline four"
	if got := StripTrailingWhitespace(in); got != want {
		t.Errorf("StripTrailingWhitespace() = %q, want %q", got, want)
	}
}
