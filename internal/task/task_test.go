package task

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kdorchestrator/kd/internal/kdpath"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusOpen, StatusInProgress, true},
		{StatusOpen, StatusClosed, false},
		{StatusInProgress, StatusInReview, true},
		{StatusInProgress, StatusClosed, true},
		{StatusInReview, StatusInProgress, true},
		{StatusInReview, StatusOpen, false},
		{StatusClosed, StatusOpen, true},
		{StatusClosed, StatusInProgress, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	want := &Task{
		ID:       "ab12",
		Status:   StatusOpen,
		Deps:     []string{"cd34"},
		Created:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Priority: "high",
		Title:    "Fix the login bug",
		Description: "Users can't log in on mobile.",
		AcceptanceCriteria: []Checklist{
			{Text: "repro no longer occurs", Done: true},
			{Text: "regression test added", Done: false},
		},
		Worklog: []string{"iteration 1: investigated", "iteration 2: fixed"},
	}

	data, err := Render(want)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got.ID != want.ID || got.Status != want.Status || got.Priority != want.Priority {
		t.Errorf("round-tripped scalar fields: got %+v, want %+v", got, want)
	}
	if got.Title != want.Title || got.Description != want.Description {
		t.Errorf("round-tripped title/description: got %+v", got)
	}
	if len(got.Deps) != 1 || got.Deps[0] != "cd34" {
		t.Errorf("round-tripped Deps = %v", got.Deps)
	}
	if len(got.AcceptanceCriteria) != 2 || !got.AcceptanceCriteria[0].Done || got.AcceptanceCriteria[1].Done {
		t.Errorf("round-tripped AcceptanceCriteria = %+v", got.AcceptanceCriteria)
	}
	if len(got.Worklog) != 2 {
		t.Errorf("round-tripped Worklog = %v", got.Worklog)
	}
}

func TestAppendWorklogBody(t *testing.T) {
	body := "# Title\n\n## Acceptance Criteria\n- [ ] thing\n\n## Worklog\n- entry one\n"
	got := AppendWorklogBody(body, "entry two")
	if !strings.Contains(got, "- entry one\n- entry two\n") {
		t.Errorf("AppendWorklogBody() = %q, want entry two appended after entry one", got)
	}
}

func TestAppendWorklogBodyBeforeNextHeading(t *testing.T) {
	body := "## Worklog\n- entry one\n\n## Notes\nsome notes\n"
	got := AppendWorklogBody(body, "entry two")
	worklogIdx := strings.Index(got, "## Worklog")
	notesIdx := strings.Index(got, "## Notes")
	entryTwoIdx := strings.Index(got, "entry two")
	if !(worklogIdx < entryTwoIdx && entryTwoIdx < notesIdx) {
		t.Errorf("AppendWorklogBody() did not insert before next heading: %q", got)
	}
}

func TestAppendWorklogBodyNoExistingSection(t *testing.T) {
	body := "# Title\n\nno worklog section yet\n"
	got := AppendWorklogBody(body, "first entry")
	if !strings.Contains(got, "## Worklog\n- first entry\n") {
		t.Errorf("AppendWorklogBody() = %q, want a new Worklog section appended", got)
	}
}

func TestStoreCreateFindMove(t *testing.T) {
	dir := t.TempDir()
	layout := kdpath.New(dir)
	store := New(layout)

	tk := &Task{ID: "ab12", Title: "Do the thing", Status: StatusOpen}
	path, err := store.Create("", tk)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !store.IsBacklogPath(path) {
		t.Errorf("IsBacklogPath(%q) = false, want true", path)
	}

	if _, err := store.Create("", tk); err != ErrIDCollision {
		t.Fatalf("Create() duplicate id error = %v, want ErrIDCollision", err)
	}

	found, foundPath, err := store.Find("", "ab12")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if found.Title != "Do the thing" {
		t.Errorf("Find() Title = %q", found.Title)
	}

	if err := store.SetStatus(foundPath, found, StatusInProgress); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if err := store.SetStatus(foundPath, found, StatusOpen); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("SetStatus() illegal transition error = %v, want ErrInvalidTransition", err)
	}

	archivePath := layout.ArchiveBacklogTicket("ab12")
	if err := store.Move(foundPath, archivePath); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if _, _, err := store.Find("", "ab12"); err != nil {
		t.Fatalf("Find() after archive move error = %v", err)
	}
}

func TestStoreFindNotFound(t *testing.T) {
	store := New(kdpath.New(t.TempDir()))
	if _, _, err := store.Find("", "zzzz"); err != ErrNotFound {
		t.Fatalf("Find() missing task error = %v, want ErrNotFound", err)
	}
}
