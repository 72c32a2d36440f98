package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoLocalPath is returned by Git when the snapshot has no file on disk.
var ErrNoLocalPath = errors.New("syncer: snapshot has no local path")

// CommandRunner runs an external command in dir and returns its combined
// output.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return out, nil
}

// Git commits the snapshot file into a working tree and optionally pushes.
type Git struct {
	// RepoDir is the working tree. Defaults to the snapshot's directory.
	RepoDir string
	// Remote and Branch are passed to git push. Push is skipped when Remote
	// is empty.
	Remote string
	Branch string
	// Runner executes git. Defaults to ExecRunner.
	Runner CommandRunner
}

// Name implements Syncer.
func (g *Git) Name() string { return "git" }

func (g *Git) runner() CommandRunner {
	if g.Runner == nil {
		return ExecRunner{}
	}
	return g.Runner
}

// Sync stages and commits t.Path, then pushes when Remote is set. Nothing is
// committed when the file is unchanged, but the push still runs so a retry
// after a failed push publishes the earlier commit.
func (g *Git) Sync(ctx context.Context, t Target) error {
	if t.Path == "" {
		return ErrNoLocalPath
	}

	dir := g.RepoDir
	if dir == "" {
		dir = filepath.Dir(t.Path)
	}
	rel, err := filepath.Rel(dir, t.Path)
	if err != nil {
		return err
	}
	run := g.runner()

	status, err := run.Run(ctx, dir, "git", "status", "--porcelain", "--", rel)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(status)) > 0 {
		if _, err := run.Run(ctx, dir, "git", "add", "--", rel); err != nil {
			return err
		}
		if _, err := run.Run(ctx, dir, "git", "commit", "-m", commitMessage(t.RootHash), "--", rel); err != nil {
			return err
		}
	}
	if g.Remote == "" {
		return nil
	}

	// A clean tree may still hold a commit whose push failed on an earlier
	// attempt, so the push runs regardless.
	args := []string{"push", g.Remote}
	if g.Branch != "" {
		args = append(args, g.Branch)
	}
	_, err = run.Run(ctx, dir, "git", args...)
	return err
}

func commitMessage(root string) string {
	if len(root) > 12 {
		root = root[:12]
	}
	return "Update root hash " + root
}
