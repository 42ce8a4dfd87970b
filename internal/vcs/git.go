// Package vcs shells out to git for the repository facts the loop needs:
// a fingerprint of pending changes, the changed-file count, and recent log
// text for council evidence.
package vcs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"
)

// Client runs git commands in a fixed working tree.
type Client struct {
	dir string
}

// New creates a Client for the given working tree.
func New(dir string) *Client {
	return &Client{dir: dir}
}

func (c *Client) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// DiffFingerprint hashes the current diff summary including staged changes.
// Two iterations that leave the tree in the same pending state produce the
// same fingerprint.
func (c *Client) DiffFingerprint() (string, error) {
	status, err := c.git("status", "--porcelain")
	if err != nil {
		return "", err
	}
	diff, err := c.git("diff", "HEAD", "--stat")
	if err != nil {
		// A repo with no commits has no HEAD; fall back to status only.
		diff = ""
	}
	return fingerprintOf(status, diff), nil
}

// fingerprintOf is the pure hashing step, split out for tests.
func fingerprintOf(status, diffStat string) string {
	h := sha256.New()
	h.Write([]byte(status))
	h.Write([]byte{0})
	h.Write([]byte(diffStat))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ChangedFileCount returns the number of files with pending changes.
func (c *Client) ChangedFileCount() (int, error) {
	status, err := c.git("status", "--porcelain")
	if err != nil {
		return 0, err
	}
	return countPorcelainLines(status), nil
}

func countPorcelainLines(status string) int {
	count := 0
	for _, line := range strings.Split(status, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}

// RecentLog returns the last n commit subjects.
func (c *Client) RecentLog(n int) (string, error) {
	return c.git("log", "--oneline", fmt.Sprintf("-%d", n))
}

// Status returns the porcelain status output.
func (c *Client) Status() (string, error) {
	return c.git("status", "--porcelain")
}

// AddWorktree creates an isolated working-tree copy for a parallel stream.
func (c *Client) AddWorktree(path, branch string) error {
	_, err := c.git("worktree", "add", "-b", branch, path)
	return err
}

// RemoveWorktree detaches a working-tree copy.
func (c *Client) RemoveWorktree(path string) error {
	_, err := c.git("worktree", "remove", "--force", path)
	return err
}
