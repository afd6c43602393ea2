package git

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// RefTips returns the commit id at the tip of every current ref, with
// annotated tags peeled, excluding the refs named in skip. Hooks use
// this as the already-known frontier when deciding which commits a
// push introduced.
//
// Refs that do not point at commits (git allows tagging any object)
// are returned as-is; callers resolving tips to commits should skip
// ids that fail with ErrNotCommit.
func (r *Repo) RefTips(skip ...string) ([]OID, error) {
	output, err := r.run("for-each-ref", "--format=%(objectname) %(*objectname) %(refname)")
	if err != nil {
		return nil, err
	}
	skipSet := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipSet[name] = true
	}
	var tips []OID
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		var raw, refname string
		switch len(fields) {
		case 2:
			raw, refname = fields[0], fields[1]
		case 3:
			// Middle field is the peeled target of an annotated tag.
			raw, refname = fields[1], fields[2]
		default:
			return nil, fmt.Errorf("for-each-ref: unexpected line %q", line)
		}
		if skipSet[refname] {
			continue
		}
		id, err := ParseOID(raw)
		if err != nil {
			return nil, fmt.Errorf("for-each-ref: %w", err)
		}
		tips = append(tips, id)
	}
	return tips, nil
}

// VerifyCommit checks the GPG signature on a commit against the
// keyring git is configured with. An unsigned commit or a signature
// gpg will not vouch for returns ErrBadSignature.
func (r *Repo) VerifyCommit(id OID) error {
	return r.verify("verify-commit", id)
}

// VerifyTag checks the GPG signature on an annotated tag.
func (r *Repo) VerifyTag(id OID) error {
	return r.verify("verify-tag", id)
}

func (r *Repo) verify(subcmd string, id OID) error {
	cmd := exec.Command("git", "-C", r.dir, subcmd, string(id))
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%s %s: %w: %s", subcmd, id, ErrBadSignature, bytes.TrimSpace(output))
	}
	return fmt.Errorf("git %s: %w", subcmd, err)
}

// DiffStat returns the --stat summary of a commit against its first
// parent, or against the empty tree for a root commit. Merge commits
// produce no output.
func (r *Repo) DiffStat(id OID) (string, error) {
	output, err := r.run("diff-tree", "--stat", "--no-commit-id", "--root", string(id))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(output), "\n"), nil
}

// BranchesContaining lists the local branches whose history includes
// the given commit.
func (r *Repo) BranchesContaining(id OID) ([]string, error) {
	output, err := r.run("branch", "--contains", string(id))
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range strings.Split(string(output), "\n") {
		name := strings.TrimLeft(line, "*+ ")
		if name == "" || strings.HasPrefix(name, "(") {
			continue
		}
		branches = append(branches, name)
	}
	return branches, nil
}
