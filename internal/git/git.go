// Package git wraps the git CLI behind a small interface so condition
// evaluation can be tested without spawning real processes.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Status describes the current working tree.
type Status struct {
	Branch  string
	Clean   bool
	Entries []string
}

// Client reads version-control state for a repository directory.
type Client interface {
	// CurrentBranch returns the checked-out branch name.
	CurrentBranch(ctx context.Context, dir string) (string, error)
	// Status returns the branch plus porcelain status entries.
	Status(ctx context.Context, dir string) (*Status, error)
	// UntrackedFiles returns paths git does not track.
	UntrackedFiles(ctx context.Context, dir string) ([]string, error)
}

// runner executes a git subcommand and returns its stdout. Swappable in
// tests.
type runner func(ctx context.Context, dir string, args ...string) (string, error)

// CLIClient shells out to the git binary. Every invocation is bounded
// by the configured timeout; a timed-out call fails like any other
// command failure.
type CLIClient struct {
	timeout time.Duration
	run     runner
}

// NewCLIClient creates a new CLIClient with the given per-command timeout.
func NewCLIClient(timeout time.Duration) *CLIClient {
	c := &CLIClient{timeout: timeout}
	c.run = c.execGit
	return c
}

func (c *CLIClient) execGit(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("git %s timed out after %s", args[0], c.timeout)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}

// CurrentBranch returns the checked-out branch name.
func (c *CLIClient) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := c.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Status returns the branch and porcelain status entries. A tree is
// clean when porcelain output is empty.
func (c *CLIClient) Status(ctx context.Context, dir string) (*Status, error) {
	branch, err := c.CurrentBranch(ctx, dir)
	if err != nil {
		return nil, err
	}
	out, err := c.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	entries := splitLines(out)
	return &Status{
		Branch:  branch,
		Clean:   len(entries) == 0,
		Entries: entries,
	}, nil
}

// UntrackedFiles returns paths git does not track.
func (c *CLIClient) UntrackedFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := c.run(ctx, dir, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if trimmed := strings.TrimRight(line, "\r"); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
