package git

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func gitRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gitRun(t, dir, "init", "-q")
	gitRun(t, dir, "config", "user.name", "Test Hacker")
	gitRun(t, dir, "config", "user.email", "hacker@example.net")
	return dir
}

func commitFile(t *testing.T, dir, name, content, msg string) OID {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	gitRun(t, dir, "add", name)
	gitRun(t, dir, "commit", "-q", "-m", msg)
	id, err := ParseOID(gitRun(t, dir, "rev-parse", "HEAD"))
	if err != nil {
		t.Fatalf("rev-parse gave a bad id: %v", err)
	}
	return id
}

func TestOpenNotRepo(t *testing.T) {
	requireGit(t)
	if _, err := Open(t.TempDir()); !errors.Is(err, ErrNotGitRepo) {
		t.Fatalf("err = %v, want ErrNotGitRepo", err)
	}
}

func TestRepoObjects(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	first := commitFile(t, dir, "a.txt", "one\n", "First commit")
	second := commitFile(t, dir, "a.txt", "one\ntwo\n", "Second commit")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	c, err := r.Commit(second)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if c.Committer.Email != "hacker@example.net" {
		t.Errorf("Committer = %v", c.Committer)
	}
	if len(c.Parents) != 1 || c.Parents[0] != first {
		t.Errorf("Parents = %v, want [%s]", c.Parents, first)
	}
	if c.Subject() != "Second commit" {
		t.Errorf("Subject = %q", c.Subject())
	}

	typ, err := r.ObjectType(first)
	if err != nil || typ != "commit" {
		t.Errorf("ObjectType = %q, %v", typ, err)
	}

	missing := OID(strings.Repeat("d", 40))
	if _, err := r.Commit(missing); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("missing object err = %v, want ErrObjectNotFound", err)
	}

	// The batch subprocess must survive a missing-object reply.
	if _, err := r.Commit(first); err != nil {
		t.Errorf("Commit after miss: %v", err)
	}
}

func TestRepoTags(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	tip := commitFile(t, dir, "a.txt", "one\n", "First commit")
	gitRun(t, dir, "tag", "-a", "v1.0", "-m", "Release v1.0")
	tagID, err := ParseOID(gitRun(t, dir, "rev-parse", "v1.0"))
	if err != nil {
		t.Fatal(err)
	}
	if tagID == tip {
		t.Fatal("annotated tag id should differ from the commit id")
	}

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	tag, err := r.Tag(tagID)
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if tag.Name != "v1.0" || tag.Object != tip || tag.ObjectType != "commit" {
		t.Errorf("tag = %+v", tag)
	}
	if !strings.Contains(tag.Message, "Release v1.0") {
		t.Errorf("Message = %q", tag.Message)
	}

	c, err := r.PeelToCommit(tagID)
	if err != nil {
		t.Fatalf("PeelToCommit: %v", err)
	}
	if c.ID != tip {
		t.Errorf("peeled to %s, want %s", c.ID, tip)
	}

	gitRun(t, dir, "tag", "light")
	lightID, err := ParseOID(gitRun(t, dir, "rev-parse", "light"))
	if err != nil {
		t.Fatal(err)
	}
	if lightID != tip {
		t.Fatal("lightweight tag should name the commit directly")
	}
	if typ, err := r.ObjectType(lightID); err != nil || typ != "commit" {
		t.Errorf("ObjectType = %q, %v", typ, err)
	}
}

func TestRefTips(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	tip := commitFile(t, dir, "a.txt", "one\n", "First commit")
	gitRun(t, dir, "tag", "-a", "v1.0", "-m", "Release v1.0")
	branch := gitRun(t, dir, "rev-parse", "--abbrev-ref", "HEAD")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	tips, err := r.RefTips()
	if err != nil {
		t.Fatalf("RefTips: %v", err)
	}
	if len(tips) != 2 {
		t.Fatalf("tips = %v, want two entries", tips)
	}
	for _, id := range tips {
		if id != tip {
			t.Errorf("tip = %s, want %s (tags should come back peeled)", id, tip)
		}
	}

	tips, err = r.RefTips("refs/heads/"+branch, "refs/tags/v1.0")
	if err != nil {
		t.Fatalf("RefTips with skip: %v", err)
	}
	if len(tips) != 0 {
		t.Errorf("tips = %v, want none after skipping all refs", tips)
	}
}

func TestVerifyUnsigned(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	tip := commitFile(t, dir, "a.txt", "one\n", "First commit")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err := r.VerifyCommit(tip); !errors.Is(err, ErrBadSignature) {
		t.Errorf("VerifyCommit on unsigned commit = %v, want ErrBadSignature", err)
	}
}

func TestDiffStatAndBranches(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	first := commitFile(t, dir, "a.txt", "one\n", "First commit")
	second := commitFile(t, dir, "a.txt", "one\ntwo\n", "Second commit")
	branch := gitRun(t, dir, "rev-parse", "--abbrev-ref", "HEAD")

	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	stat, err := r.DiffStat(second)
	if err != nil {
		t.Fatalf("DiffStat: %v", err)
	}
	if !strings.Contains(stat, "a.txt") {
		t.Errorf("stat = %q, want a.txt mentioned", stat)
	}

	branches, err := r.BranchesContaining(first)
	if err != nil {
		t.Fatalf("BranchesContaining: %v", err)
	}
	found := false
	for _, b := range branches {
		if b == branch {
			found = true
		}
	}
	if !found {
		t.Errorf("branches = %v, want %q included", branches, branch)
	}
}
