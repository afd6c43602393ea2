// Package wrap restricts what an SSH-authenticated user may run. It
// is meant to be the forced command in authorized_keys: it parses
// SSH_ORIGINAL_COMMAND, allows only the two git transport commands
// against repositories under a configured base directory, and hands
// off to git shell.
package wrap

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
)

// Config locates the served repositories.
type Config struct {
	RepoBase string `yaml:"repobase"`
}

var allowedCommands = map[string]bool{
	"git-upload-pack":  true,
	"git-receive-pack": true,
}

// Invocation is one parsed and validated command request.
type Invocation struct {
	User    string
	Command string
	Path    string
}

// ShellCommand renders the invocation in the form git shell consumes.
func (inv Invocation) ShellCommand() string {
	return fmt.Sprintf("%s '%s'", inv.Command, inv.Path)
}

// Wrapper validates and executes transport commands for one
// repository base.
type Wrapper struct {
	cfg Config
}

func New(cfg Config) *Wrapper {
	return &Wrapper{cfg: cfg}
}

// Parse validates a raw SSH_ORIGINAL_COMMAND value. Both spellings of
// the transport commands are accepted ("git-upload-pack" and
// "git upload-pack"); the repository path must be absolute, resolve
// under the repository base, end in .git and exist.
func (w *Wrapper) Parse(user, raw string) (Invocation, error) {
	if w.cfg.RepoBase == "" {
		return Invocation{}, fmt.Errorf("no repository base configured")
	}
	if strings.TrimSpace(raw) == "" {
		return Invocation{}, fmt.Errorf("no command present")
	}

	tokens, err := shlex.Split(raw)
	if err != nil {
		return Invocation{}, fmt.Errorf("parse command: %w", err)
	}

	var command, pathArg string
	switch {
	case len(tokens) == 3 && tokens[0] == "git":
		command = "git-" + tokens[1]
		pathArg = tokens[2]
	case len(tokens) == 2:
		command = tokens[0]
		pathArg = tokens[1]
	default:
		return Invocation{}, fmt.Errorf("malformed command %q", raw)
	}

	if !allowedCommands[command] {
		return Invocation{}, fmt.Errorf("command %q not allowed", command)
	}
	if !strings.HasPrefix(pathArg, "/") {
		return Invocation{}, fmt.Errorf("expected an absolute repository path")
	}

	base := filepath.Clean(w.cfg.RepoBase)
	path := filepath.Join(base, pathArg)
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Invocation{}, fmt.Errorf("repository path escapes the repository base")
	}
	if !strings.HasSuffix(path, ".git") {
		return Invocation{}, fmt.Errorf("repository paths must end in .git")
	}
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		return Invocation{}, fmt.Errorf("repository does not exist")
	}

	return Invocation{User: user, Command: command, Path: path}, nil
}

// Exec runs the invocation through git shell with the caller's stdio
// attached, returning the child's exit code. A non-nil error means
// the child never ran.
func (w *Wrapper) Exec(inv Invocation) (int, error) {
	cmd := exec.Command("git", "shell", "-c", inv.ShellCommand())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
			return cmd.ProcessState.ExitCode(), nil
		}
		return 1, err
	}
	return 0, nil
}
