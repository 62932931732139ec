package orchestrator

import (
	"context"
	"fmt"
	"strings"
)

// gitOps is the version-control boundary; the production implementation
// shells out through the executor's allow-list.
type gitOps interface {
	CurrentBranch(ctx context.Context) (string, error)
	CreateBranch(ctx context.Context, name string, base string) error
	HasChanges(ctx context.Context) (bool, error)
	CommitAll(ctx context.Context, message string) (string, error)
	Push(ctx context.Context, name string) error
	CleanupBranch(ctx context.Context, name string, base string) error
	ConfigStatus(ctx context.Context) (GitConfigStatus, error)
}

type GitConfigStatus struct {
	UserName     string `json:"user_name"`
	UserEmail    string `json:"user_email"`
	RemoteOrigin string `json:"remote_origin"`
	Configured   bool   `json:"configured"`
}

type gitRunner struct {
	executor *Executor
	repoDir  string
}

func newGitRunner(executor *Executor, repoDir string) *gitRunner {
	return &gitRunner{executor: executor, repoDir: repoDir}
}

func (g *gitRunner) run(ctx context.Context, args ...string) (string, error) {
	result, err := g.executor.Run(ctx, "git", args, g.repoDir)
	if err != nil {
		return "", err
	}
	if result.TimedOut {
		return "", fmt.Errorf("git %s timed out", args[0])
	}
	if result.ExitCode != 0 {
		detail := firstLine(result.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", result.ExitCode)
		}
		return "", fmt.Errorf("git %s failed: %s", args[0], detail)
	}
	return strings.TrimSpace(result.Stdout), nil
}

func (g *gitRunner) CurrentBranch(ctx context.Context) (string, error) {
	return g.run(ctx, "branch", "--show-current")
}

// CreateBranch checks out a fresh branch from an up-to-date base. Dirty
// trees are stashed first so the switch cannot clobber local edits.
func (g *gitRunner) CreateBranch(ctx context.Context, name string, base string) error {
	dirty, err := g.HasChanges(ctx)
	if err != nil {
		return err
	}
	if dirty {
		if _, err := g.run(ctx, "stash", "push", "-m", "auto-stash before branch "+name); err != nil {
			return err
		}
	}

	if _, err := g.run(ctx, "checkout", base); err != nil {
		return err
	}
	if _, err := g.run(ctx, "pull", "origin", base); err != nil {
		return err
	}
	if _, err := g.run(ctx, "checkout", "-b", name); err != nil {
		return err
	}
	return nil
}

func (g *gitRunner) HasChanges(ctx context.Context) (bool, error) {
	staged, err := g.run(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return false, err
	}
	unstaged, err := g.run(ctx, "diff", "--name-only")
	if err != nil {
		return false, err
	}
	untracked, err := g.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return false, err
	}
	return staged != "" || unstaged != "" || untracked != "", nil
}

func (g *gitRunner) CommitAll(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, "add", "."); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return g.run(ctx, "rev-parse", "HEAD")
}

func (g *gitRunner) Push(ctx context.Context, name string) error {
	_, err := g.run(ctx, "push", "-u", "origin", name)
	return err
}

// CleanupBranch returns to the base branch and deletes a failed work
// branch. Both steps tolerate already-clean state.
func (g *gitRunner) CleanupBranch(ctx context.Context, name string, base string) error {
	if _, err := g.run(ctx, "checkout", base); err != nil {
		return err
	}
	_, _ = g.run(ctx, "branch", "-D", name)
	return nil
}

func (g *gitRunner) ConfigStatus(ctx context.Context) (GitConfigStatus, error) {
	if err := ctx.Err(); err != nil {
		return GitConfigStatus{}, err
	}

	// Missing config keys exit non-zero; that is a state, not a failure.
	status := GitConfigStatus{}
	if name, err := g.run(ctx, "config", "user.name"); err == nil {
		status.UserName = name
	}
	if email, err := g.run(ctx, "config", "user.email"); err == nil {
		status.UserEmail = email
	}
	if origin, err := g.run(ctx, "config", "remote.origin.url"); err == nil {
		status.RemoteOrigin = origin
	}
	status.Configured = status.UserName != "" && status.UserEmail != ""
	return status, nil
}
