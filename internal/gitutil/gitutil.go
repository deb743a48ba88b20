// Package gitutil invokes git as an opaque black-box tool via plain
// os/exec. No third-party git library is wired here deliberately — git
// itself already fills that role.
package gitutil

import (
	"fmt"
	"os/exec"
	"strings"
)

func run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// CommitAll stages every change in dir and commits with message. Returns
// false, nil when there was nothing to commit.
func CommitAll(dir, message string) (committed bool, err error) {
	if _, err := run(dir, "add", "-A"); err != nil {
		return false, err
	}
	status, err := run(dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(status) == "" {
		return false, nil
	}
	if _, err := run(dir, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// HeadSHA returns the current commit hash at dir.
func HeadSHA(dir string) (string, error) {
	out, err := run(dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the checked-out branch name at dir.
func CurrentBranch(dir string) (string, error) {
	out, err := run(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DiffRange returns the diff text for range (e.g. "<sha>..HEAD" or
// "<branch>...HEAD").
func DiffRange(dir, diffRange string) (string, error) {
	return run(dir, "diff", diffRange)
}

// Merge fast-forwards/merges sourceBranch into the currently checked-out
// branch at dir (used by the reviewer accept path).
func Merge(dir, sourceBranch string) error {
	_, err := run(dir, "merge", sourceBranch)
	return err
}
