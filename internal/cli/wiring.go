package cli

import (
	"time"

	"github.com/kdorchestrator/kd/internal/config"
	"github.com/kdorchestrator/kd/internal/council"
	"github.com/kdorchestrator/kd/internal/harness"
	"github.com/kdorchestrator/kd/internal/invoker"
	"github.com/kdorchestrator/kd/internal/kdpath"
	"github.com/kdorchestrator/kd/internal/session"
	"github.com/kdorchestrator/kd/internal/task"
	"github.com/kdorchestrator/kd/internal/thread"
)

// deps bundles the core stores and orchestrators every command needs,
// built once from the resolved repository root.
type deps struct {
	layout   kdpath.Layout
	cfg      *config.Config
	tasks    *task.Store
	threads  *thread.Store
	sessions *session.Store
	branches *session.BranchStateStore
	inv      *invoker.Invoker
	backends map[string]invoker.Backend
	orch     *council.Orchestrator
	harn     *harness.Harness
}

func buildDeps() (*deps, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, err
	}
	layout := kdpath.New(root)

	cfg, err := config.Load(layout.Config())
	if err != nil {
		cfg = &config.Config{} // a fresh repo may not have run `kd init` yet
	}

	tasks := task.New(layout)
	threads := thread.New(layout)
	sessions := session.New(layout)
	branches := session.NewBranchState(layout)
	inv := invoker.New()
	backends := invoker.DefaultBackends()

	members := cfg.Council.Members
	if len(members) == 0 {
		members = []string{"claude", "codex", "cursor"}
	}
	timeout := time.Duration(cfg.Council.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 600 * time.Second
	}

	orch := &council.Orchestrator{
		Layout:   layout,
		Threads:  threads,
		Invoker:  inv,
		Backends: backends,
		Members:  members,
		Preamble: cfg.Council.Preamble,
		Timeout:  timeout,
	}

	harn := &harness.Harness{
		Layout:   layout,
		Tasks:    tasks,
		Threads:  threads,
		Sessions: sessions,
		Invoker:  inv,
		Backends: backends,
		Council:  orch,
	}

	return &deps{
		layout: layout, cfg: cfg, tasks: tasks, threads: threads,
		sessions: sessions, branches: branches, inv: inv, backends: backends,
		orch: orch, harn: harn,
	}, nil
}
