// Package kdpath resolves the on-disk layout under a repository's .kd
// directory. It contains no I/O beyond path joining; callers are
// responsible for creating and reading the files it names.
package kdpath

import "path/filepath"

const RootDirName = ".kd"

// Layout resolves every path the core touches under one repository root.
type Layout struct {
	RepoRoot string
}

// New returns a Layout rooted at repoRoot (the git checkout root, not .kd).
func New(repoRoot string) Layout {
	return Layout{RepoRoot: repoRoot}
}

func (l Layout) Root() string { return filepath.Join(l.RepoRoot, RootDirName) }

func (l Layout) Config() string { return filepath.Join(l.Root(), "config.json") }

func (l Layout) Branches() string { return filepath.Join(l.Root(), "branches") }

func (l Layout) Branch(slug string) string { return filepath.Join(l.Branches(), slug) }

func (l Layout) Design(branchSlug string) string {
	return filepath.Join(l.Branch(branchSlug), "design.md")
}

func (l Layout) Tickets(branchSlug string) string {
	return filepath.Join(l.Branch(branchSlug), "tickets")
}

func (l Layout) Ticket(branchSlug, id string) string {
	return filepath.Join(l.Tickets(branchSlug), id+".md")
}

func (l Layout) Threads(branchSlug string) string {
	return filepath.Join(l.Branch(branchSlug), "threads")
}

func (l Layout) Thread(branchSlug, threadSlug string) string {
	return filepath.Join(l.Threads(branchSlug), threadSlug)
}

func (l Layout) ThreadMeta(branchSlug, threadSlug string) string {
	return filepath.Join(l.Thread(branchSlug, threadSlug), "thread.json")
}

func (l Layout) StreamFile(branchSlug, threadSlug, member string) string {
	return filepath.Join(l.Thread(branchSlug, threadSlug), ".stream-"+member+".jsonl")
}

func (l Layout) Sessions(branchSlug string) string {
	return filepath.Join(l.Branch(branchSlug), "sessions")
}

func (l Layout) Session(branchSlug, name string) string {
	return filepath.Join(l.Sessions(branchSlug), name+".json")
}

func (l Layout) Logs(branchSlug string) string {
	return filepath.Join(l.Branch(branchSlug), "logs")
}

func (l Layout) TaskLog(branchSlug, taskID string) string {
	return filepath.Join(l.Logs(branchSlug), taskID+".log")
}

func (l Layout) State(branchSlug string) string {
	return filepath.Join(l.Branch(branchSlug), "state.json")
}

func (l Layout) Backlog() string { return filepath.Join(l.Root(), "backlog") }

func (l Layout) BacklogTickets() string { return filepath.Join(l.Backlog(), "tickets") }

func (l Layout) BacklogTicket(id string) string {
	return filepath.Join(l.BacklogTickets(), id+".md")
}

func (l Layout) Archive() string { return filepath.Join(l.Root(), "archive") }

func (l Layout) ArchiveBranch(slug string) string { return filepath.Join(l.Archive(), "branches", slug) }

func (l Layout) ArchiveBacklogTicket(id string) string {
	return filepath.Join(l.Archive(), "backlog", "tickets", id+".md")
}

func (l Layout) Worktrees() string { return filepath.Join(l.Root(), "worktrees") }

func (l Layout) Worktree(id string) string { return filepath.Join(l.Worktrees(), id) }
