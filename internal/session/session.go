// Package session implements the Session Store: one JSON record per agent
// role per branch, with PID-based liveness probing and single-writer
// semantics.
package session

import (
	"os"
	"regexp"
	"syscall"
	"time"

	"github.com/kdorchestrator/kd/internal/jsonfile"
	"github.com/kdorchestrator/kd/internal/kdpath"
)

// Status is an AgentSession's runtime state.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusWorking         Status = "working"
	StatusAwaitingCouncil Status = "awaiting_council"
	StatusNeedsKingReview Status = "needs_king_review"
	StatusBlocked         Status = "blocked"
	StatusDone            Status = "done"
	StatusFailed          Status = "failed"
	StatusStopped         Status = "stopped"
)

// terminalOrIdle are statuses ListActiveAgents excludes outright.
var terminalOrIdle = map[Status]bool{
	StatusIdle: true, StatusDone: true, StatusFailed: true, StatusStopped: true,
}

// State is one agent's runtime record.
type State struct {
	ResumeID          string    `json:"resume_id,omitempty"`
	Status            Status    `json:"status"`
	PID               int       `json:"pid,omitempty"`
	TaskID            string    `json:"ticket_id,omitempty"`
	ThreadID          string    `json:"thread_id,omitempty"`
	StartedAt         time.Time `json:"started_at,omitempty"`
	LastActivity      time.Time `json:"last_activity,omitempty"`
	StartSHA          string    `json:"start_sha,omitempty"`
	ReviewBounceCount int       `json:"review_bounce_count"`
	HandMode          bool      `json:"hand_mode,omitempty"`
	Backend           string    `json:"agent_backend,omitempty"`
}

// Store resolves and mutates per-agent session files under one branch.
type Store struct {
	Layout kdpath.Layout
}

func New(layout kdpath.Layout) *Store { return &Store{Layout: layout} }

// GetAgentState reads one agent's record. A missing file is not an error;
// it returns a zero-value idle State.
func (s *Store) GetAgentState(branchSlug, name string) (State, error) {
	path := s.Layout.Session(branchSlug, name)
	var st State
	if err := jsonfile.Read(path, &st); err != nil {
		if os.IsNotExist(err) {
			return State{Status: StatusIdle}, nil
		}
		return State{}, err
	}
	return st, nil
}

// SetAgentState overwrites an agent's record wholesale.
func (s *Store) SetAgentState(branchSlug, name string, st State) error {
	return jsonfile.Write(s.Layout.Session(branchSlug, name), st)
}

// Mutator applies partial updates during UpdateAgentState.
type Mutator func(*State)

// UpdateAgentState performs a read-modify-write against one agent's record,
// preserving every field the mutator doesn't touch.
func (s *Store) UpdateAgentState(branchSlug, name string, mutate Mutator) (State, error) {
	st, err := s.GetAgentState(branchSlug, name)
	if err != nil {
		return State{}, err
	}
	mutate(&st)
	st.LastActivity = time.Now().UTC()
	if err := s.SetAgentState(branchSlug, name, st); err != nil {
		return State{}, err
	}
	return st, nil
}

// ActiveSession pairs a session's file-derived name with its state.
type ActiveSession struct {
	Name  string
	State State
}

var sessionFileName = regexp.MustCompile(`^(.+)\.json$`)

// ListActiveAgents returns sessions whose status is not in
// {idle,done,failed,stopped} and whose recorded PID is a live process.
// Stale records are filtered here, never mutated.
func (s *Store) ListActiveAgents(branchSlug string) ([]ActiveSession, error) {
	dir := s.Layout.Sessions(branchSlug)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []ActiveSession
	for _, e := range entries {
		m := sessionFileName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		name := m[1]
		st, err := s.GetAgentState(branchSlug, name)
		if err != nil {
			continue
		}
		if terminalOrIdle[st.Status] {
			continue
		}
		if !IsAlive(st.PID) {
			continue
		}
		out = append(out, ActiveSession{Name: name, State: st})
	}
	return out, nil
}

// ReapStale is a separately-testable helper that rewrites working-status
// records with dead PIDs to failed, for callers that want the filesystem
// itself cleaned up rather than relying on ListActiveAgents' boundary
// filter. It is never called implicitly; the default path is to filter,
// not mutate.
func (s *Store) ReapStale(branchSlug string) (int, error) {
	dir := s.Layout.Sessions(branchSlug)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	reaped := 0
	for _, e := range entries {
		m := sessionFileName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		name := m[1]
		st, err := s.GetAgentState(branchSlug, name)
		if err != nil || terminalOrIdle[st.Status] {
			continue
		}
		if st.PID != 0 && !IsAlive(st.PID) {
			st.Status = StatusFailed
			if err := s.SetAgentState(branchSlug, name, st); err == nil {
				reaped++
			}
		}
	}
	return reaped, nil
}

// IsAlive reports whether pid names a live process. On Unix, FindProcess
// always succeeds, so a signal-0 probe is required to actually test
// liveness.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// BranchState is the per-branch operational blob.
type BranchState struct {
	CurrentThread   string `json:"current_thread,omitempty"`
	DesignApproved  bool   `json:"design_approved"`
	Done            bool   `json:"done"`
}

// BranchStateStore reads and writes one branch's state.json.
type BranchStateStore struct {
	Layout kdpath.Layout
}

func NewBranchState(layout kdpath.Layout) *BranchStateStore { return &BranchStateStore{Layout: layout} }

func (b *BranchStateStore) Get(branchSlug string) (BranchState, error) {
	var st BranchState
	path := b.Layout.State(branchSlug)
	if err := jsonfile.Read(path, &st); err != nil {
		if os.IsNotExist(err) {
			return BranchState{}, nil
		}
		return BranchState{}, err
	}
	return st, nil
}

func (b *BranchStateStore) Set(branchSlug string, st BranchState) error {
	return jsonfile.Write(b.Layout.State(branchSlug), st)
}

func (b *BranchStateStore) GetCurrentThread(branchSlug string) (string, error) {
	st, err := b.Get(branchSlug)
	return st.CurrentThread, err
}

func (b *BranchStateStore) SetCurrentThread(branchSlug, threadSlug string) error {
	st, err := b.Get(branchSlug)
	if err != nil {
		return err
	}
	st.CurrentThread = threadSlug
	return b.Set(branchSlug, st)
}
