package chatpoller

import (
	"os"
	"testing"

	"github.com/kdorchestrator/kd/internal/invoker"
	"github.com/kdorchestrator/kd/internal/kdpath"
	"github.com/kdorchestrator/kd/internal/thread"
)

func newTestPoller(t *testing.T, members []string) (*Poller, kdpath.Layout) {
	t.Helper()
	layout := kdpath.Layout{RepoRoot: t.TempDir()}
	store := thread.New(layout)
	if err := store.CreateThread("feature-x", "council", members, thread.PatternCouncil); err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}
	backends := map[string]invoker.Backend{
		"claude": {Name: "claude", Schema: invoker.SchemaClaude},
	}
	p, err := New(layout, store, backends, "feature-x", "council", members)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, layout
}

func TestPollDetectsNewMessage(t *testing.T) {
	p, layout := newTestPoller(t, []string{"claude"})
	store := thread.New(layout)

	if _, _, err := store.AppendMessage("feature-x", "council", "king", "", "please begin", nil); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	events, err := p.Poll()
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	var found bool
	for _, e := range events {
		if e.Kind == EventNewMessage && e.Message.Body == "please begin" {
			found = true
		}
	}
	if !found {
		t.Errorf("Poll() events = %+v, want a new-message event", events)
	}

	// A second poll with no new writes should surface nothing further.
	events, err = p.Poll()
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Poll() on idle thread = %+v, want no events", events)
	}
}

func TestPollStreamDetectsDeltas(t *testing.T) {
	p, layout := newTestPoller(t, []string{"claude"})

	streamPath := layout.StreamFile("feature-x", "council", "claude")
	line := `{"type":"assistant","message":{"content":[{"type":"text","text":"hello there"}]}}` + "\n"
	if err := os.WriteFile(streamPath, []byte(line), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	events, err := p.Poll()
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	var found bool
	for _, e := range events {
		if e.Kind == EventStreamDelta && e.Member == "claude" && e.Text == "hello there" {
			found = true
		}
	}
	if !found {
		t.Errorf("Poll() events = %+v, want a stream delta for claude", events)
	}
}

func TestPollStreamRetainsPartialTrailingLine(t *testing.T) {
	p, layout := newTestPoller(t, []string{"claude"})
	streamPath := layout.StreamFile("feature-x", "council", "claude")

	complete := `{"type":"assistant","message":{"content":[{"type":"text","text":"done line"}]}}` + "\n"
	partial := `{"type":"assistant","message":{"content":[{"type":"text","text"` // no closing brace or newline yet
	if err := os.WriteFile(streamPath, []byte(complete+partial), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	events, err := p.Poll()
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	for _, e := range events {
		if e.Text != "done line" {
			t.Errorf("Poll() surfaced an event from an incomplete trailing line: %+v", e)
		}
	}

	// The writer finishes the line; the next poll must pick up from right
	// after the previously complete line, not skip the now-finished one.
	rest := `:"finished now"}]}}` + "\n"
	f, err := os.OpenFile(streamPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(rest); err != nil {
		t.Fatal(err)
	}
	f.Close()

	events, err = p.Poll()
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	var found bool
	for _, e := range events {
		if e.Text == "finished now" {
			found = true
		}
	}
	if !found {
		t.Errorf("Poll() after completing the trailing line = %+v, want the now-complete delta", events)
	}
}

func TestPollStreamResetsOffsetOnShrink(t *testing.T) {
	p, layout := newTestPoller(t, []string{"claude"})
	streamPath := layout.StreamFile("feature-x", "council", "claude")

	first := `{"type":"assistant","message":{"content":[{"type":"text","text":"first run output, quite long"}]}}` + "\n"
	if err := os.WriteFile(streamPath, []byte(first), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := p.Poll(); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	// Simulate a relaunch: the stream file is truncated and rewritten shorter.
	second := `{"type":"assistant","message":{"content":[{"type":"text","text":"short"}]}}` + "\n"
	if err := os.WriteFile(streamPath, []byte(second), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	events, err := p.Poll()
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	var found bool
	for _, e := range events {
		if e.Kind == EventStreamDelta && e.Text == "short" {
			found = true
		}
	}
	if !found {
		t.Errorf("Poll() after shrink = %+v, want the post-shrink delta re-read from offset 0", events)
	}
}

func TestPollIgnoresMissingStreamFile(t *testing.T) {
	p, _ := newTestPoller(t, []string{"claude"})
	events, err := p.Poll()
	if err != nil {
		t.Fatalf("Poll() error = %v, want nil for an as-yet-unwritten stream file", err)
	}
	if len(events) != 0 {
		t.Errorf("Poll() events = %+v, want none", events)
	}
}

func TestWakeArmsOrDegradesGracefully(t *testing.T) {
	p, _ := newTestPoller(t, []string{"claude"})
	ch := p.Wake()
	if ch == nil {
		t.Skip("fsnotify watcher could not be armed in this environment")
	}
}
