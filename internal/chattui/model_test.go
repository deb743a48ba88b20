package chattui

import (
	"reflect"
	"testing"

	"github.com/kdorchestrator/kd/internal/invoker"
	"github.com/kdorchestrator/kd/internal/kdpath"
	"github.com/kdorchestrator/kd/internal/thread"
)

func newTestModel(t *testing.T, members []string) *model {
	t.Helper()
	layout := kdpath.Layout{RepoRoot: t.TempDir()}
	store := thread.New(layout)
	if err := store.CreateThread("feature-x", "chat", members, thread.PatternWork); err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}
	m, err := newModel(Options{
		Layout:     layout,
		Threads:    store,
		Invoker:    invoker.New(),
		Backends:   map[string]invoker.Backend{},
		BranchSlug: "feature-x",
		ThreadSlug: "chat",
		Members:    members,
		Username:   "king",
	})
	if err != nil {
		t.Fatalf("newModel() error = %v", err)
	}
	t.Cleanup(func() { m.poller.Close() })
	return m
}

func TestDirectedTargets(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"no mentions", "just a plain message", nil},
		{"single mention", "hey @codex can you look", []string{"codex"}},
		{"multiple mentions", "@claude and @cursor please weigh in", []string{"claude", "cursor"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := directedTargets(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("directedTargets(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestUnmutedMembers(t *testing.T) {
	m := newTestModel(t, []string{"claude", "codex", "cursor"})
	m.muted["codex"] = true

	got := m.unmutedMembers()
	want := []string{"claude", "cursor"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unmutedMembers() = %v, want %v", got, want)
	}
}

func TestNextUnmutedMemberSkipsMuted(t *testing.T) {
	m := newTestModel(t, []string{"claude", "codex", "cursor"})
	m.muted["codex"] = true

	first := m.nextUnmutedMember()
	second := m.nextUnmutedMember()
	third := m.nextUnmutedMember()

	if first != "claude" || second != "cursor" || third != "claude" {
		t.Errorf("round robin sequence = %q, %q, %q, want claude, cursor, claude", first, second, third)
	}
}

func TestNextUnmutedMemberAllMutedReturnsEmpty(t *testing.T) {
	m := newTestModel(t, []string{"claude"})
	m.muted["claude"] = true

	if got := m.nextUnmutedMember(); got != "" {
		t.Errorf("nextUnmutedMember() = %q, want empty when everyone is muted", got)
	}
}

func TestAutoMessagesBudgetExcludesMuted(t *testing.T) {
	m := newTestModel(t, []string{"claude", "codex"})
	m.muted["codex"] = true

	if got := m.autoMessagesBudget(); got != 1 {
		t.Errorf("autoMessagesBudget() = %d, want 1", got)
	}
}

func TestAutoMessagesBudgetZeroDisablesAutoTurns(t *testing.T) {
	m := newTestModel(t, []string{"claude", "codex"})
	zero := 0
	m.opts.AutoMessages = &zero

	if got := m.autoMessagesBudget(); got != 0 {
		t.Errorf("autoMessagesBudget() = %d, want 0 when council.auto_messages=0", got)
	}
}

func TestAutoMessagesBudgetCapsAtConfiguredValue(t *testing.T) {
	m := newTestModel(t, []string{"claude", "codex", "cursor"})
	one := 1
	m.opts.AutoMessages = &one

	if got := m.autoMessagesBudget(); got != 1 {
		t.Errorf("autoMessagesBudget() = %d, want 1 when council.auto_messages=1", got)
	}
}

func TestInterruptInvalidatesGeneration(t *testing.T) {
	m := newTestModel(t, []string{"claude"})
	m.generation = 5

	m.interrupt()

	if m.generation != 6 {
		t.Errorf("generation after interrupt = %d, want 6", m.generation)
	}
	if !m.interrupted || !m.quitArmed {
		t.Error("interrupt() did not set interrupted/quitArmed")
	}
	if m.pendingTurns != 0 {
		t.Errorf("pendingTurns after interrupt = %d, want 0", m.pendingTurns)
	}
}

func TestApplyTurnResultDropsStaleGeneration(t *testing.T) {
	m := newTestModel(t, []string{"claude"})
	m.generation = 2
	m.pendingTurns = 1

	cmd := m.applyTurnResult(turnResultMsg{generation: 1, member: "claude", resp: &invoker.AgentResponse{Text: "late response"}})
	if cmd != nil {
		t.Error("applyTurnResult() returned a continuation command for a stale generation")
	}

	msgs, err := m.opts.Threads.ListMessages("feature-x", "chat")
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range msgs {
		if msg.Body == "late response" {
			t.Error("applyTurnResult() persisted a message from an invalidated generation")
		}
	}
}

func TestApplyTurnResultPersistsCurrentGeneration(t *testing.T) {
	m := newTestModel(t, []string{"claude"})
	gen := m.generation

	m.applyTurnResult(turnResultMsg{generation: gen, member: "claude", resp: &invoker.AgentResponse{Text: "hello"}})

	msgs, err := m.opts.Threads.ListMessages("feature-x", "chat")
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, msg := range msgs {
		if msg.From == "claude" && msg.Body == "hello" {
			found = true
		}
	}
	if !found {
		t.Error("applyTurnResult() did not persist the response for the current generation")
	}
}

func TestIsOwnPendingMessage(t *testing.T) {
	m := newTestModel(t, []string{"claude"})
	msg := thread.Message{Seq: 1, From: "claude", Body: "already rendered"}
	m.rendered = append(m.rendered, renderedLine{text: m.formatMessage(msg)})

	if !m.isOwnPendingMessage(msg) {
		t.Error("isOwnPendingMessage() = false, want true for a message already rendered")
	}

	other := thread.Message{Seq: 2, From: "codex", Body: "not yet seen"}
	if m.isOwnPendingMessage(other) {
		t.Error("isOwnPendingMessage() = true, want false for an unrendered message")
	}
}
