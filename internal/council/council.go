// Package council implements the Council Orchestrator: concurrent fan-out
// of a prompt to N advisor subprocesses, per-advisor streaming capture,
// partial-output-on-timeout semantics, and write-once persistence of
// finalized responses.
package council

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kdorchestrator/kd/internal/historyfmt"
	"github.com/kdorchestrator/kd/internal/invoker"
	"github.com/kdorchestrator/kd/internal/kdpath"
	"github.com/kdorchestrator/kd/internal/thread"
)

// DefaultPreamble is the built-in read-only instruction prepended to every
// council prompt (the council.preamble default).
const DefaultPreamble = `You are acting as a read-only reviewer. Do not modify any files and do not invoke any state-changing version-control commands (commit, push, merge, rebase, checkout -b). Respond with analysis and recommendations only.`

// MemberResult is one advisor's outcome, paired with its name for callers
// that need to correlate results back to configuration (e.g. bounce
// feedback routing in the harness).
type MemberResult struct {
	Name     string
	Response invoker.AgentResponse
	Err      error
	SeqNo    int
	Path     string
}

// Orchestrator fans a prompt out to the configured council members.
type Orchestrator struct {
	Layout      kdpath.Layout
	Threads     *thread.Store
	Invoker     *invoker.Invoker
	Backends    map[string]invoker.Backend
	Members     []string // configured council.members, in config order
	Preamble    string
	Timeout     time.Duration
}

var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9_-]+)`)

// resolveTargets resolves query targets: explicit targets win; else
// @mentions in prompt restrict the set (falling back to all configured
// members when none match); @all is an explicit broadcast.
func (o *Orchestrator) resolveTargets(prompt string, targets []string) []string {
	if len(targets) > 0 {
		return targets
	}

	mentions := mentionPattern.FindAllStringSubmatch(prompt, -1)
	if len(mentions) == 0 {
		return o.Members
	}

	wantAll := false
	mentioned := map[string]bool{}
	for _, m := range mentions {
		name := m[1]
		if name == "all" {
			wantAll = true
			continue
		}
		mentioned[name] = true
	}
	if wantAll {
		return o.Members
	}

	var matched []string
	for _, member := range o.Members {
		if mentioned[member] {
			matched = append(matched, member)
		}
	}
	if len(matched) == 0 {
		return o.Members
	}
	return matched
}

// QueryToThread runs the full fan-out and persists each finalized response
// to the thread, in completion order.
func (o *Orchestrator) QueryToThread(ctx context.Context, branchSlug, threadSlug, prompt string, targets []string) ([]MemberResult, error) {
	resolved := o.resolveTargets(prompt, targets)
	if len(resolved) == 0 {
		return nil, fmt.Errorf("council: no targets resolved")
	}

	history, err := o.Threads.ListMessages(branchSlug, threadSlug)
	if err != nil {
		return nil, fmt.Errorf("council: load history: %w", err)
	}

	preamble := o.Preamble
	if preamble == "" {
		preamble = DefaultPreamble
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}

	results := make([]MemberResult, len(resolved))
	var wg sync.WaitGroup
	for i, name := range resolved {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = o.queryOne(ctx, branchSlug, threadSlug, name, preamble, history, timeout)
		}(i, name)
	}
	wg.Wait()

	return results, nil
}

func (o *Orchestrator) queryOne(ctx context.Context, branchSlug, threadSlug, name, preamble string, history []thread.Message, timeout time.Duration) MemberResult {
	backend, ok := o.Backends[name]
	if !ok {
		return MemberResult{Name: name, Err: fmt.Errorf("council: no backend configured for %q", name)}
	}

	fullPrompt := preamble + "\n\n" + historyfmt.Render(history, name)
	streamPath := o.Layout.StreamFile(branchSlug, threadSlug, name)

	resp, err := o.Invoker.Query(ctx, backend, invoker.Request{
		Prompt:     fullPrompt,
		Timeout:    timeout,
		StreamPath: streamPath,
		ReadOnly:   true,
	})
	if err != nil {
		return MemberResult{Name: name, Err: err}
	}

	body := resp.Text
	if resp.Error != nil {
		body = fmt.Sprintf("%s\n\n(error: %s)", strings.TrimSpace(resp.Text), resp.Error)
	}

	seq, path, appendErr := o.Threads.AppendMessage(branchSlug, threadSlug, name, "", body, nil)
	if appendErr != nil {
		return MemberResult{Name: name, Response: *resp, Err: appendErr}
	}
	return MemberResult{Name: name, Response: *resp, SeqNo: seq, Path: path}
}
