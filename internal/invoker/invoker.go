// Package invoker implements the Agent Invoker: builds argv/env for an AI
// CLI, runs it as a subprocess with streamed stdout capture, enforces a
// wall-clock timeout by killing the whole process group, and parses the
// backend-specific output envelope.
//
// The subprocess lifecycle here — tee stdout to a buffer and an optional
// stream file, read stdout/stderr concurrently to avoid pipe deadlock,
// enforce timeout by killing the process group, salvage partial output on
// kill — is the one reusable primitive here; the Council
// Orchestrator and Peasant Harness both call Query and never duplicate it.
package invoker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kdorchestrator/kd/internal/envscrub"
)

// ErrAgentMissing is returned when the configured binary cannot be found.
var ErrAgentMissing = errors.New("invoker: agent binary not found")

// ErrAgentFailed is returned on a nonzero, non-timeout exit.
var ErrAgentFailed = errors.New("invoker: agent exited nonzero")

// ErrAgentTimeout is returned when the wall-clock timeout elapsed before
// the subprocess exited.
var ErrAgentTimeout = errors.New("invoker: agent timed out")

// AgentResponse is the Agent Invoker's public result.
type AgentResponse struct {
	Text          string
	Error         error
	SessionID     string
	Elapsed       time.Duration
	ExitCode      int
	CorrelationID string
}

// Request parameterizes one Query call.
type Request struct {
	Prompt     string
	Timeout    time.Duration
	StreamPath string // empty disables stream-file persistence
	ResumeID   string
	ReadOnly   bool
	ExtraEnv   map[string]string
}

// Invoker runs agent subprocesses. ActiveProcess, when non-nil, is invoked
// with each subprocess's *os.Process immediately after start so a caller
// (harness cancellation, TUI Escape handling) can hold a handle to
// terminate it directly instead of relying on polling alone.
type Invoker struct {
	ActiveProcess func(proc *os.Process)
}

func New() *Invoker { return &Invoker{} }

// Query runs one agent invocation end to end.
func (inv *Invoker) Query(ctx context.Context, backend Backend, req Request) (*AgentResponse, error) {
	start := time.Now()
	corrID := uuid.New().String()

	binPath, err := exec.LookPath(backend.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAgentMissing, backend.Binary, err)
	}

	argv := buildArgv(backend, req)
	cmd := exec.Command(binPath, argv...)
	cmd.Env = envscrub.Build(req.ExtraEnv)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if backend.PromptViaStdin {
		cmd.Stdin = strings.NewReader(req.Prompt)
	} else {
		cmd.Stdin = nil
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("invoker: stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("invoker: stderr pipe: %w", err)
	}

	var streamFile *os.File
	if req.StreamPath != "" {
		streamFile, err = os.OpenFile(req.StreamPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("invoker: open stream file: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		if streamFile != nil {
			streamFile.Close()
		}
		return nil, fmt.Errorf("invoker: start: %w", err)
	}
	if inv.ActiveProcess != nil {
		inv.ActiveProcess(cmd.Process)
	}

	var stdoutBuf strings.Builder
	var stderrBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	// Reading stdout and stderr concurrently prevents a deadlock where one
	// pipe's OS buffer fills while the other is being drained sequentially.
	go func() {
		defer wg.Done()
		drainLines(stdoutPipe, func(line string) {
			mu.Lock()
			stdoutBuf.WriteString(line)
			stdoutBuf.WriteString("\n")
			mu.Unlock()
			if streamFile != nil {
				streamFile.WriteString(line)
				streamFile.WriteString("\n")
				streamFile.Sync()
			}
		})
	}()
	go func() {
		defer wg.Done()
		drainLines(stderrPipe, func(line string) {
			mu.Lock()
			stderrBuf.WriteString(line)
			stderrBuf.WriteString("\n")
			mu.Unlock()
		})
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-waitDone:
	case <-time.After(timeout):
		timedOut = true
		killProcessGroup(cmd.Process)
		waitErr = <-waitDone
	case <-ctx.Done():
		killProcessGroup(cmd.Process)
		waitErr = <-waitDone
	}

	// Give the readers a bounded grace period to drain whatever the kernel
	// already buffered before we read final contents.
	drained := make(chan struct{})
	go func() { wg.Wait(); close(drained) }()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
	}
	if streamFile != nil {
		streamFile.Close()
	}

	mu.Lock()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()
	mu.Unlock()

	elapsed := time.Since(start)
	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	resp := &AgentResponse{Elapsed: elapsed, ExitCode: exitCode, CorrelationID: corrID}

	switch {
	case timedOut || errors.Is(ctx.Err(), context.DeadlineExceeded):
		resp.Error = fmt.Errorf("%w after %s", ErrAgentTimeout, timeout)
		resp.Text = extractPartialText(backend, stdout)
		if req.StreamPath == "" {
			// nothing to preserve
		}
		return resp, nil
	case waitErr != nil:
		resp.Error = fmt.Errorf("%w: %s", ErrAgentFailed, strings.TrimSpace(stderr))
		resp.Text = extractPartialText(backend, stdout)
		return resp, nil
	}

	parsed, err := Parse(backend.Schema, stdout)
	if err != nil {
		resp.Error = fmt.Errorf("invoker: parse output: %w", err)
		return resp, nil
	}
	resp.Text = parsed.Text
	resp.SessionID = parsed.SessionID

	// Successful parse: the stream file has served its purpose and is
	// deleted; on error/timeout paths above it is left for recovery.
	if req.StreamPath != "" {
		os.Remove(req.StreamPath)
	}
	return resp, nil
}

func buildArgv(backend Backend, req Request) []string {
	argv := append([]string{}, backend.BaseArgs...)
	if req.ReadOnly {
		argv = append(argv, backend.ReadOnlyArgs...)
	}
	if req.ResumeID != "" && backend.ResumeFlag != "" {
		argv = append(argv, backend.ResumeFlag, req.ResumeID)
	}
	argv = append(argv, backend.StreamFormatArgs...)
	if !backend.PromptViaStdin {
		argv = append(argv, req.Prompt)
	}
	return argv
}

// drainLines performs blocking line reads against r, invoking onLine for
// each complete line. A partial trailing line (no terminating newline, as
// happens when a process is killed mid-write) is still flushed to onLine
// once the reader sees EOF, matching the "partial output on kill" rule.
func drainLines(r io.Reader, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
}

func killProcessGroup(proc *os.Process) {
	if proc == nil {
		return
	}
	pgid, err := syscall.Getpgid(proc.Pid)
	if err != nil {
		proc.Kill()
		return
	}
	syscall.Kill(-pgid, syscall.SIGKILL)
}

// extractPartialText recovers whatever text the backend's schema can
// salvage from a partially-captured, possibly non-JSON-terminated stdout
// buffer — used on the timeout and nonzero-exit paths where a full parse
// is not expected to succeed.
func extractPartialText(backend Backend, stdout string) string {
	parsed, err := Parse(backend.Schema, stdout)
	if err == nil && parsed.Text != "" {
		return parsed.Text
	}
	return stdout
}
