package main

import (
	"errors"

	"github.com/mhagander/pg-githooks/internal/git"
	"github.com/mhagander/pg-githooks/internal/refs"
	"github.com/mhagander/pg-githooks/internal/revwalk"
	"github.com/mhagander/pg-githooks/internal/signature"
)

// hookRepo is the slice of git plumbing the fact source reads.
type hookRepo interface {
	PeelToCommit(id git.OID) (*git.Commit, error)
	ObjectType(id git.OID) (string, error)
	Tag(id git.OID) (*git.Tag, error)
	RefTips(skip ...string) ([]git.OID, error)
}

// repoFacts feeds the policy engine from a live repository.
type repoFacts struct {
	repo     hookRepo
	verifier *signature.Verifier
}

func newRepoFacts(r *git.Repo) *repoFacts {
	return &repoFacts{repo: r, verifier: signature.NewVerifier(r)}
}

// NewCommits walks from the update's new tip, stopping at anything
// reachable from another ref or from the tip being replaced. The
// update hook runs before the ref moves, so the updated ref itself is
// excluded from the known set and its old tip added back explicitly.
func (f *repoFacts) NewCommits(u refs.Update) ([]*git.Commit, error) {
	tips, err := f.repo.RefTips(u.Refname)
	if err != nil {
		return nil, err
	}
	w := revwalk.New(revwalk.LoaderFunc(f.repo.PeelToCommit))
	if err := w.MarkKnown(tips...); err != nil {
		return nil, err
	}
	if err := w.MarkKnown(u.Old); err != nil {
		return nil, err
	}
	commits, err := w.Collect(u.New)
	if errors.Is(err, git.ErrNotCommit) {
		// A tag pointing at a tree or blob introduces no commits.
		return nil, nil
	}
	return commits, err
}

func (f *repoFacts) ObjectType(id git.OID) (string, error) {
	return f.repo.ObjectType(id)
}

func (f *repoFacts) Tag(id git.OID) (*git.Tag, error) {
	return f.repo.Tag(id)
}

func (f *repoFacts) CommitSignature(c *git.Commit) (signature.Status, error) {
	return f.verifier.Commit(c)
}

func (f *repoFacts) TagSignature(t *git.Tag) (signature.Status, error) {
	return f.verifier.Tag(t)
}
