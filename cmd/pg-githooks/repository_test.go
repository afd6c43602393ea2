package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/mhagander/pg-githooks/internal/git"
	"github.com/mhagander/pg-githooks/internal/refs"
)

var zeros = git.OID(strings.Repeat("0", 40))

func tid(label string) git.OID {
	return git.OID(label + strings.Repeat("0", 40-len(label)))
}

type fakeHookRepo struct {
	commits map[git.OID]*git.Commit
	types   map[git.OID]string
	tags    map[git.OID]*git.Tag
	refs    map[string]git.OID
}

func newFakeHookRepo() *fakeHookRepo {
	return &fakeHookRepo{
		commits: make(map[git.OID]*git.Commit),
		types:   make(map[git.OID]string),
		tags:    make(map[git.OID]*git.Tag),
		refs:    make(map[string]git.OID),
	}
}

func (r *fakeHookRepo) add(id git.OID, parents ...git.OID) git.OID {
	r.commits[id] = &git.Commit{ID: id, Parents: parents}
	return id
}

func (r *fakeHookRepo) PeelToCommit(id git.OID) (*git.Commit, error) {
	if typ, ok := r.types[id]; ok && typ != "commit" {
		return nil, fmt.Errorf("%s is a %s: %w", id, typ, git.ErrNotCommit)
	}
	c, ok := r.commits[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, git.ErrObjectNotFound)
	}
	return c, nil
}

func (r *fakeHookRepo) ObjectType(id git.OID) (string, error) {
	if typ, ok := r.types[id]; ok {
		return typ, nil
	}
	return "commit", nil
}

func (r *fakeHookRepo) Tag(id git.OID) (*git.Tag, error) {
	tag, ok := r.tags[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, git.ErrObjectNotFound)
	}
	return tag, nil
}

func (r *fakeHookRepo) RefTips(skip ...string) ([]git.OID, error) {
	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}
	var tips []git.OID
	for name, tip := range r.refs {
		if !skipped[name] {
			tips = append(tips, tip)
		}
	}
	return tips, nil
}

func TestRepoFactsNewCommits(t *testing.T) {
	repo := newFakeHookRepo()
	b0 := repo.add(tid("b0"))
	m1 := repo.add(tid("m1"), b0)
	f0 := repo.add(tid("f0"), b0)
	f1 := repo.add(tid("f1"), f0)
	f2 := repo.add(tid("f2"), f1)

	// The ref has already moved, as the post-receive hook would see
	// it; only excluding the updated ref keeps its new history from
	// counting as known.
	repo.refs["refs/heads/master"] = m1
	repo.refs["refs/heads/feature"] = f2

	facts := &repoFacts{repo: repo}
	u := refs.Update{Refname: "refs/heads/feature", Old: f0, New: f2, RefKind: refs.Branch, Op: refs.FastForward}
	commits, err := facts.NewCommits(u)
	if err != nil {
		t.Fatalf("NewCommits: %v", err)
	}

	var got []string
	for _, c := range commits {
		got = append(got, string(c.ID))
	}
	sort.Strings(got)
	want := []string{string(f1), string(f2)}
	sort.Strings(want)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("NewCommits = %v, want %v", got, want)
	}
}

func TestRepoFactsNewCommitsTagOfBlob(t *testing.T) {
	repo := newFakeHookRepo()
	m1 := repo.add(tid("m1"))
	repo.refs["refs/heads/master"] = m1
	blob := tid("ab")
	repo.types[blob] = "blob"

	facts := &repoFacts{repo: repo}
	u := refs.Update{Refname: "refs/tags/gpg-key", Old: zeros, New: blob, RefKind: refs.Tag, Op: refs.Create}
	commits, err := facts.NewCommits(u)
	if err != nil {
		t.Fatalf("NewCommits: %v", err)
	}
	if len(commits) != 0 {
		t.Errorf("NewCommits = %v, want none for a non-commit tip", commits)
	}
}

func TestRepoFactsNewCommitsMissingObject(t *testing.T) {
	repo := newFakeHookRepo()
	repo.refs["refs/heads/master"] = repo.add(tid("m1"))

	facts := &repoFacts{repo: repo}
	u := refs.Update{Refname: "refs/heads/feature", Old: zeros, New: tid("ff"), RefKind: refs.Branch, Op: refs.Create}
	if _, err := facts.NewCommits(u); !errors.Is(err, git.ErrObjectNotFound) {
		t.Errorf("NewCommits = %v, want ErrObjectNotFound", err)
	}
}
