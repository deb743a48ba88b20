// Package harness implements the Peasant Harness: an iterative
// prompt→invoke→parse→commit→gate→review loop that drives one subprocess
// agent to complete a single task.
package harness

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kdorchestrator/kd/internal/council"
	"github.com/kdorchestrator/kd/internal/gitutil"
	"github.com/kdorchestrator/kd/internal/invoker"
	"github.com/kdorchestrator/kd/internal/kdpath"
	"github.com/kdorchestrator/kd/internal/sentinel"
	"github.com/kdorchestrator/kd/internal/session"
	"github.com/kdorchestrator/kd/internal/task"
	"github.com/kdorchestrator/kd/internal/thread"
)

// FinalStatus is the Run result.
type FinalStatus string

const (
	FinalNeedsKingReview FinalStatus = "needs_king_review"
	FinalStopped         FinalStatus = "stopped"
	FinalFailed          FinalStatus = "failed"
)

// MaxBounces is the review_bounce_count cap before the harness stops
// re-looping and escalates to the human regardless of verdict.
const MaxBounces = 3

// GateCommand is one configured quality gate, run inside the worktree on
// a DONE signal before the task can move to in_review.
type GateCommand struct {
	Name string
	Argv []string
}

// DefaultGates returns a representative example gate set.
func DefaultGates() []GateCommand {
	return []GateCommand{
		{Name: "pytest", Argv: []string{"pytest"}},
		{Name: "ruff", Argv: []string{"ruff", "check"}},
	}
}

// RunParams configures one Run invocation.
type RunParams struct {
	AgentName      string
	TaskID         string
	BranchSlug     string
	WorkThreadSlug string
	WorkDir        string // worktree path, or the base repo checkout in hand-mode
	StartSHA       string
	FeatureBranch  string // required unless HandMode
	HandMode       bool
	MaxIterations  int
	CouncilTimeout time.Duration
}

// Harness wires the stores and orchestrators a Run needs.
type Harness struct {
	Layout   kdpath.Layout
	Tasks    *task.Store
	Threads  *thread.Store
	Sessions *session.Store
	Invoker  *invoker.Invoker
	Backends map[string]invoker.Backend
	Council  *council.Orchestrator
	Gates    []GateCommand
	LogFunc  func(branchSlug, taskID string, iteration int, content string) // nil is fine
}

// stopFlag is a harness-private cancellation primitive: SIGTERM sets it,
// checked between iterations and immediately after any blocking subprocess
// return.
type stopFlag struct{ v atomic.Bool }

func (s *stopFlag) Set()        { s.v.Store(true) }
func (s *stopFlag) IsSet() bool { return s.v.Load() }

// Run executes the full iterative loop for one task.
func (h *Harness) Run(ctx context.Context, p RunParams, stop *stopFlag) (FinalStatus, error) {
	if stop == nil {
		stop = &stopFlag{}
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = 50
	}
	gates := h.Gates
	if gates == nil {
		gates = DefaultGates()
	}

	sessionName := fmt.Sprintf("peasant-%s", p.TaskID)
	if err := h.startSession(p, sessionName); err != nil {
		return FinalFailed, err
	}

	highWaterMark := 0
	iteration := 0

	for {
		if stop.IsSet() {
			h.Sessions.UpdateAgentState(p.BranchSlug, sessionName, func(s *session.State) {
				s.Status = session.StatusStopped
			})
			return FinalStopped, nil
		}
		iteration++
		if iteration > p.MaxIterations {
			h.Sessions.UpdateAgentState(p.BranchSlug, sessionName, func(s *session.State) {
				s.Status = session.StatusFailed
			})
			return FinalFailed, fmt.Errorf("harness: exceeded max iterations (%d)", p.MaxIterations)
		}

		t, taskPath, err := h.Tasks.Find(p.BranchSlug, p.TaskID)
		if err != nil {
			return FinalFailed, fmt.Errorf("harness: reload task: %w", err)
		}

		directives, err := h.Threads.ListMessagesAfter(p.BranchSlug, p.WorkThreadSlug, highWaterMark)
		if err != nil {
			return FinalFailed, fmt.Errorf("harness: load directives: %w", err)
		}
		var newKingDirectives []thread.Message
		for _, m := range directives {
			if m.From == "king" {
				newKingDirectives = append(newKingDirectives, m)
			}
			if m.Seq > highWaterMark {
				highWaterMark = m.Seq
			}
		}

		prompt := composePrompt(t, iteration, newKingDirectives)

		backend, ok := h.Backends[p.AgentName]
		if !ok {
			return FinalFailed, fmt.Errorf("harness: no backend configured for %q", p.AgentName)
		}

		resumeID, _ := h.currentResumeID(p.BranchSlug, sessionName)
		resp, err := h.Invoker.Query(ctx, backend, invoker.Request{
			Prompt:   prompt,
			Timeout:  10 * time.Minute,
			ResumeID: resumeID,
		})
		if stop.IsSet() {
			h.Sessions.UpdateAgentState(p.BranchSlug, sessionName, func(s *session.State) {
				s.Status = session.StatusStopped
			})
			return FinalStopped, nil
		}
		if err != nil {
			return FinalFailed, fmt.Errorf("harness: invoke agent: %w", err)
		}

		if h.LogFunc != nil {
			h.LogFunc(p.BranchSlug, p.TaskID, iteration, resp.Text)
		}

		status := sentinel.ParseStatus(resp.Text)

		if _, commitErr := gitutil.CommitAll(p.WorkDir, fmt.Sprintf("%s: iteration %d", p.TaskID, iteration)); commitErr != nil {
			h.Tasks.AppendWorklog(taskPath, fmt.Sprintf("iteration %d: commit failed: %s", iteration, commitErr))
		}

		worklogEntry := firstParagraph(resp.Text)
		if worklogEntry != "" {
			h.Tasks.AppendWorklog(taskPath, fmt.Sprintf("iteration %d: %s", iteration, worklogEntry))
		}

		if _, _, err := h.Threads.AppendMessage(p.BranchSlug, p.WorkThreadSlug, p.AgentName, "", resp.Text, nil); err != nil {
			return FinalFailed, fmt.Errorf("harness: append response: %w", err)
		}

		h.Sessions.UpdateAgentState(p.BranchSlug, sessionName, func(s *session.State) {
			s.Status = session.StatusWorking
			s.ResumeID = resp.SessionID
		})

		if status != sentinel.StatusDone {
			continue
		}

		// DONE branch: run quality gates before handing off to review.
		if gateOutput, ok := runGates(p.WorkDir, gates); !ok {
			h.Tasks.AppendWorklog(taskPath, fmt.Sprintf("iteration %d: gate failure:\n%s", iteration, gateOutput))
			h.Threads.AppendMessage(p.BranchSlug, p.WorkThreadSlug, p.AgentName, "", "Quality gates failed:\n\n"+gateOutput, nil)
			continue // forced back to CONTINUE
		}

		if err := h.Tasks.SetStatus(taskPath, t, task.StatusInReview); err != nil {
			return FinalFailed, fmt.Errorf("harness: transition in_review: %w", err)
		}
		h.Sessions.UpdateAgentState(p.BranchSlug, sessionName, func(s *session.State) {
			s.Status = session.StatusAwaitingCouncil
		})

		outcome, err := h.runReviewRound(ctx, p, t, taskPath, sessionName)
		if err != nil {
			return FinalFailed, err
		}
		switch outcome {
		case reviewBounce:
			continue
		case reviewEscalate:
			return FinalNeedsKingReview, nil
		}
	}
}

type reviewOutcome int

const (
	reviewBounce reviewOutcome = iota
	reviewEscalate
)

func (h *Harness) runReviewRound(ctx context.Context, p RunParams, t *task.Task, taskPath, sessionName string) (reviewOutcome, error) {
	diffRange := fmt.Sprintf("%s..HEAD", p.StartSHA)
	if !p.HandMode {
		diffRange = fmt.Sprintf("%s...HEAD", p.FeatureBranch)
	}
	diff, _ := gitutil.DiffRange(p.WorkDir, diffRange)

	reviewPrompt := fmt.Sprintf(
		"Review task %s.\n\nTitle: %s\n\nWorklog:\n%s\n\nDiff (%s):\n%s\n\nRespond with free-form review followed by a final line: VERDICT: APPROVED|BLOCKING",
		t.ID, t.Title, strings.Join(t.Worklog, "\n"), diffRange, diff,
	)

	timeout := p.CouncilTimeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	reviewCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	orchestrator := *h.Council
	orchestrator.Timeout = timeout
	results, err := orchestrator.QueryToThread(reviewCtx, p.BranchSlug, p.WorkThreadSlug, reviewPrompt, nil)
	if err != nil {
		return reviewEscalate, fmt.Errorf("harness: council review: %w", err)
	}

	anyTimeout := false
	anyBlocking := false
	var feedback []string
	for _, r := range results {
		if r.Response.Error != nil {
			anyTimeout = true
			continue
		}
		verdict, _ := sentinel.ParseVerdict(r.Response.Text)
		if verdict == sentinel.VerdictBlocking {
			anyBlocking = true
			feedback = append(feedback, fmt.Sprintf("%s: %s", r.Name, r.Response.Text))
		}
	}

	if anyTimeout {
		h.Sessions.UpdateAgentState(p.BranchSlug, sessionName, func(s *session.State) {
			s.Status = session.StatusNeedsKingReview
		})
		return reviewEscalate, nil
	}

	bounceCount := 0
	h.Sessions.UpdateAgentState(p.BranchSlug, sessionName, func(s *session.State) {
		bounceCount = s.ReviewBounceCount
	})

	if anyBlocking && bounceCount < MaxBounces {
		h.Sessions.UpdateAgentState(p.BranchSlug, sessionName, func(s *session.State) {
			s.ReviewBounceCount++
			s.Status = session.StatusWorking
		})
		for _, fb := range feedback {
			h.Threads.AppendMessage(p.BranchSlug, p.WorkThreadSlug, "king", p.AgentName, "Directive (from council bounce): "+fb, nil)
		}
		if err := h.Tasks.SetStatus(taskPath, t, task.StatusInProgress); err != nil {
			return reviewEscalate, fmt.Errorf("harness: transition back to in_progress: %w", err)
		}
		return reviewBounce, nil
	}

	h.Sessions.UpdateAgentState(p.BranchSlug, sessionName, func(s *session.State) {
		s.Status = session.StatusNeedsKingReview
	})
	return reviewEscalate, nil
}

func (h *Harness) startSession(p RunParams, sessionName string) error {
	active, err := h.Sessions.ListActiveAgents(p.BranchSlug)
	if err != nil {
		return err
	}
	for _, a := range active {
		if a.State.TaskID == p.TaskID {
			return fmt.Errorf("harness: task %s already has an active session (pid %d)", p.TaskID, a.State.PID)
		}
		if p.HandMode && a.State.HandMode {
			return fmt.Errorf("harness: hand-mode collision with session %q", a.Name)
		}
	}

	return h.Sessions.SetAgentState(p.BranchSlug, sessionName, session.State{
		Status:    session.StatusWorking,
		TaskID:    p.TaskID,
		ThreadID:  p.WorkThreadSlug,
		StartedAt: time.Now().UTC(),
		StartSHA:  p.StartSHA,
		HandMode:  p.HandMode,
		Backend:   p.AgentName,
		PID:       os.Getpid(),
	})
}

func (h *Harness) currentResumeID(branchSlug, sessionName string) (string, error) {
	st, err := h.Sessions.GetAgentState(branchSlug, sessionName)
	if err != nil {
		return "", err
	}
	return st.ResumeID, nil
}

func composePrompt(t *task.Task, iteration int, directives []thread.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task %s: %s\n\n", t.ID, t.Title)
	if t.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", t.Description)
	}
	sb.WriteString("Acceptance criteria:\n")
	for _, c := range t.AcceptanceCriteria {
		mark := " "
		if c.Done {
			mark = "x"
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", mark, c.Text)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Iteration: %d\n\n", iteration)
	if len(t.Worklog) > 0 {
		sb.WriteString("Recent worklog:\n")
		start := 0
		if len(t.Worklog) > 5 {
			start = len(t.Worklog) - 5
		}
		for _, entry := range t.Worklog[start:] {
			fmt.Fprintf(&sb, "- %s\n", entry)
		}
		sb.WriteString("\n")
	}
	if len(directives) > 0 {
		sb.WriteString("New directives:\n")
		for _, d := range directives {
			fmt.Fprintf(&sb, "- %s\n", strings.TrimSpace(d.Body))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("End your response with a trailing line: STATUS: DONE|BLOCKED|CONTINUE\n")
	return sb.String()
}

func firstParagraph(text string) string {
	parts := strings.SplitN(strings.TrimSpace(text), "\n\n", 2)
	return strings.TrimSpace(parts[0])
}

// runGates runs each configured gate inside dir in order, stopping at the
// first failure. Returns combined output and whether all gates passed.
func runGates(dir string, gates []GateCommand) (string, bool) {
	var out strings.Builder
	for _, g := range gates {
		if len(g.Argv) == 0 {
			continue
		}
		cmd := exec.Command(g.Argv[0], g.Argv[1:]...)
		cmd.Dir = dir
		output, err := cmd.CombinedOutput()
		fmt.Fprintf(&out, "=== %s ===\n%s\n", g.Name, output)
		if err != nil {
			return out.String(), false
		}
	}
	return out.String(), true
}

// StopFlag is the exported alias callers outside this package construct
// and pass into Run; Set() is safe to call from a signal handler.
type StopFlag = stopFlag

// NewStopFlag constructs a stop flag a caller can Set() from a signal
// handler and pass into Run.
func NewStopFlag() *StopFlag { return &stopFlag{} }
