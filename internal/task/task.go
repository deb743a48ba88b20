// Package task implements the Task Store: CRUD and lifecycle of tasks
// persisted as one markdown file with YAML frontmatter per task, plus the
// state machine governing their status transitions.
package task

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kdorchestrator/kd/internal/frontmatter"
	"github.com/kdorchestrator/kd/internal/kdpath"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusClosed     Status = "closed"
)

// legalTransitions encodes the declared task status state machine.
var legalTransitions = map[Status]map[Status]bool{
	StatusOpen:       {StatusInProgress: true},
	StatusInProgress: {StatusInReview: true, StatusClosed: true},
	StatusInReview:   {StatusInProgress: true, StatusClosed: true},
	StatusClosed:     {StatusOpen: true},
}

// ErrInvalidTransition is returned when a requested status change is not in
// legalTransitions.
var ErrInvalidTransition = errors.New("task: illegal status transition")

// ErrNotFound is returned when a task ID cannot be resolved in any known
// location (branch, backlog, archive).
var ErrNotFound = errors.New("task: not found")

// ErrIDCollision is returned when a freshly generated ID already exists.
var ErrIDCollision = errors.New("task: id collision")

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to Status) bool {
	return legalTransitions[from][to]
}

// Priority and Type are free-form but kept as named types for call-site
// clarity; the store does not constrain their values.
type Priority string
type Kind string

// Task is the in-memory representation of one task file.
type Task struct {
	ID        string    `yaml:"id"`
	Status    Status    `yaml:"status"`
	Deps      []string  `yaml:"deps,omitempty"`
	Links     []string  `yaml:"links,omitempty"`
	Created   time.Time `yaml:"created"`
	Type      Kind      `yaml:"type,omitempty"`
	Priority  Priority  `yaml:"priority,omitempty"`
	Assignee  string    `yaml:"assignee,omitempty"`
	HandMode  bool      `yaml:"hand_mode,omitempty"`

	Title              string
	Description        string
	AcceptanceCriteria []Checklist
	Worklog            []string

	path string
}

// Checklist is one `- [ ]`/`- [x]` acceptance-criteria line.
type Checklist struct {
	Done bool
	Text string
}

var idHexPattern = regexp.MustCompile(`^[0-9a-f]{4}$`)

// NewID generates a random 4-hex-character ID from the 16-bit keyspace.
func NewID() (string, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("task: generate id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

const (
	headingAcceptance = "## Acceptance Criteria"
	headingWorklog    = "## Worklog"
)

// Render serializes a task to its markdown+frontmatter file contents.
func Render(t *Task) ([]byte, error) {
	var body strings.Builder
	fmt.Fprintf(&body, "# %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(&body, "\n%s\n", t.Description)
	}
	body.WriteString("\n" + headingAcceptance + "\n")
	for _, c := range t.AcceptanceCriteria {
		mark := " "
		if c.Done {
			mark = "x"
		}
		fmt.Fprintf(&body, "- [%s] %s\n", mark, c.Text)
	}
	body.WriteString("\n" + headingWorklog + "\n")
	for _, entry := range t.Worklog {
		fmt.Fprintf(&body, "- %s\n", entry)
	}

	fm := struct {
		ID       string   `yaml:"id"`
		Status   Status   `yaml:"status"`
		Deps     []string `yaml:"deps,omitempty"`
		Links    []string `yaml:"links,omitempty"`
		Created  string   `yaml:"created"`
		Type     Kind     `yaml:"type,omitempty"`
		Priority Priority `yaml:"priority,omitempty"`
		Assignee string   `yaml:"assignee,omitempty"`
		HandMode bool     `yaml:"hand_mode,omitempty"`
	}{
		ID: t.ID, Status: t.Status, Deps: t.Deps, Links: t.Links,
		Created: t.Created.UTC().Format(time.RFC3339),
		Type: t.Type, Priority: t.Priority, Assignee: t.Assignee, HandMode: t.HandMode,
	}
	return frontmatter.Render(fm, body.String())
}

var checklistPattern = regexp.MustCompile(`^- \[( |x|X)\] (.*)$`)

// Parse decodes a task file's bytes.
func Parse(data []byte) (*Task, error) {
	doc, err := frontmatter.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("task: %w", err)
	}
	t := &Task{}
	if v, ok := doc.Raw["id"].(string); ok {
		t.ID = v
	}
	if v, ok := doc.Raw["status"].(string); ok {
		t.Status = Status(v)
	}
	t.Deps = stringList(doc.Raw["deps"])
	t.Links = stringList(doc.Raw["links"])
	if v, ok := doc.Raw["created"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			t.Created = ts
		}
	}
	if v, ok := doc.Raw["type"].(string); ok {
		t.Type = Kind(v)
	}
	if v, ok := doc.Raw["priority"].(string); ok {
		t.Priority = Priority(v)
	}
	if v, ok := doc.Raw["assignee"].(string); ok {
		t.Assignee = v
	}
	if v, ok := doc.Raw["hand_mode"].(bool); ok {
		t.HandMode = v
	}

	lines := strings.Split(doc.Body, "\n")
	section := ""
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "# "):
			t.Title = strings.TrimPrefix(line, "# ")
		case line == headingAcceptance:
			section = "acceptance"
		case line == headingWorklog:
			section = "worklog"
		case strings.HasPrefix(line, "## "):
			section = ""
		case section == "acceptance":
			if m := checklistPattern.FindStringSubmatch(line); m != nil {
				t.AcceptanceCriteria = append(t.AcceptanceCriteria, Checklist{
					Done: strings.EqualFold(m[1], "x"),
					Text: m[2],
				})
			}
		case section == "worklog":
			if strings.HasPrefix(line, "- ") {
				t.Worklog = append(t.Worklog, strings.TrimPrefix(line, "- "))
			}
		case section == "" && t.Title != "" && strings.TrimSpace(line) != "":
			if t.Description == "" {
				t.Description = strings.TrimSpace(line)
			}
		}
	}
	return t, nil
}

func stringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Location identifies where a task file currently lives.
type Location int

const (
	LocationBranch Location = iota
	LocationBacklog
	LocationArchiveBranch
	LocationArchiveBacklog
)

// Store resolves task paths and performs the CRUD/lifecycle operations.
type Store struct {
	Layout kdpath.Layout
}

func New(layout kdpath.Layout) *Store { return &Store{Layout: layout} }

// Create writes a new task in a branch's tickets directory (or the backlog
// when branchSlug is empty). Refuses to create when the ID already exists.
func (s *Store) Create(branchSlug string, t *Task) (string, error) {
	var path string
	if branchSlug == "" {
		path = s.Layout.BacklogTicket(t.ID)
	} else {
		path = s.Layout.Ticket(branchSlug, t.ID)
	}
	if _, err := os.Stat(path); err == nil {
		return "", ErrIDCollision
	}
	if t.Created.IsZero() {
		t.Created = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	data, err := Render(t)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("task: mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("task: write: %w", err)
	}
	return path, nil
}

// Find locates a task by ID, searching the branch, backlog, and archive in
// turn. branchSlug may be empty to search only backlog+archive.
func (s *Store) Find(branchSlug, id string) (*Task, string, error) {
	candidates := []string{}
	if branchSlug != "" {
		candidates = append(candidates, s.Layout.Ticket(branchSlug, id), s.Layout.ArchiveBranch(branchSlug)+"/tickets/"+id+".md")
	}
	candidates = append(candidates, s.Layout.BacklogTicket(id), s.Layout.ArchiveBacklogTicket(id))

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		t, err := Parse(data)
		if err != nil {
			return nil, "", err
		}
		t.path = path
		return t, path, nil
	}
	return nil, "", ErrNotFound
}

// Save rewrites a task's file at its current path.
func (s *Store) Save(path string, t *Task) error {
	data, err := Render(t)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SetStatus validates and applies a status transition, rewriting the file
// in place. Callers that need to move the file (backlog<->archive) must
// call Move separately; SetStatus never relocates a file.
func (s *Store) SetStatus(path string, t *Task, newStatus Status) error {
	if !CanTransition(t.Status, newStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, newStatus)
	}
	t.Status = newStatus
	return s.Save(path, t)
}

// AppendWorklogBody inserts a new worklog entry inside the "## Worklog"
// section, before the next heading (or EOF), never at the literal end of
// file if another section follows it.
func AppendWorklogBody(body, entry string) string {
	idx := strings.Index(body, headingWorklog)
	if idx < 0 {
		return body + "\n" + headingWorklog + "\n- " + entry + "\n"
	}
	afterHeading := idx + len(headingWorklog)
	rest := body[afterHeading:]

	end := len(rest)
	if nextHeading := strings.Index(rest, "\n## "); nextHeading >= 0 {
		end = nextHeading + 1 // just past the "\n" that precedes "## "
	}
	entries := strings.TrimRight(rest[:end], "\n")
	tail := rest[len(entries):]
	if tail == "" {
		tail = "\n"
	}
	return body[:afterHeading] + entries + "\n- " + entry + tail
}

// AppendWorklog appends entry to a task file's worklog by parsing the file,
// adding the entry to Task.Worklog and re-rendering it, so frontmatter is
// preserved. Body sections other than the title, description, acceptance
// criteria and worklog are not carried through the re-render.
func (s *Store) AppendWorklog(path string, entry string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("task: read for worklog: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return err
	}
	t.Worklog = append(t.Worklog, entry)
	return s.Save(path, t)
}

// Move relocates a task file between the backlog and its archive mirror:
// backlog tasks move to archive on close, back to backlog on reopen.
func (s *Store) Move(fromPath, toPath string) error {
	if err := os.MkdirAll(filepath.Dir(toPath), 0o755); err != nil {
		return fmt.Errorf("task: mkdir for move: %w", err)
	}
	if err := os.Rename(fromPath, toPath); err != nil {
		return fmt.Errorf("task: move: %w", err)
	}
	return nil
}

// IsBacklogPath reports whether path sits directly under the backlog
// tickets directory (as opposed to a branch or archive).
func (s *Store) IsBacklogPath(path string) bool {
	return filepath.Dir(path) == s.Layout.BacklogTickets()
}
