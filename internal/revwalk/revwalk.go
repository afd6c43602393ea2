// Package revwalk enumerates commit history by walking parent edges.
// Every walk is deduplicated through a visited set, so ancestry shared
// between branches is traversed at most once and merge-heavy graphs
// cannot loop.
package revwalk

import (
	"errors"

	"github.com/mhagander/pg-githooks/internal/git"
)

// Loader resolves an object id to the commit it names, peeling
// annotated tags along the way.
type Loader interface {
	Load(id git.OID) (*git.Commit, error)
}

// LoaderFunc adapts a plain function to the Loader interface.
type LoaderFunc func(git.OID) (*git.Commit, error)

func (f LoaderFunc) Load(id git.OID) (*git.Commit, error) { return f(id) }

// ForRepo returns a walker reading objects from the given repository.
func ForRepo(r *git.Repo) *Walker {
	return New(LoaderFunc(r.PeelToCommit))
}

// Walker enumerates commits breadth first. The visited set persists
// across calls, so commits collected or marked once stay known. One
// walker serves one hook invocation; it is not safe for concurrent
// use.
type Walker struct {
	src     Loader
	visited map[git.OID]bool
}

func New(src Loader) *Walker {
	return &Walker{src: src, visited: make(map[git.OID]bool)}
}

// MarkKnown records everything reachable from the given tips as
// already present in the repository. Zero ids are ignored. So are tips
// with no commit behind them, since git permits refs to trees and
// blobs; an unresolvable tip is still an error.
func (w *Walker) MarkKnown(tips ...git.OID) error {
	for _, tip := range tips {
		if tip.IsZero() {
			continue
		}
		start, err := w.src.Load(tip)
		if errors.Is(err, git.ErrNotCommit) {
			continue
		}
		if err != nil {
			return err
		}
		if err := w.walkFrom(start, nil); err != nil {
			return err
		}
	}
	return nil
}

// Collect returns the commits reachable from tip that no earlier
// MarkKnown or Collect call has seen, and marks them seen.
func (w *Walker) Collect(tip git.OID) ([]*git.Commit, error) {
	start, err := w.src.Load(tip)
	if err != nil {
		return nil, err
	}
	var out []*git.Commit
	err = w.walkFrom(start, func(c *git.Commit) {
		out = append(out, c)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Walker) walkFrom(start *git.Commit, visit func(*git.Commit)) error {
	queue := []*git.Commit{start}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if w.visited[c.ID] {
			continue
		}
		w.visited[c.ID] = true
		if visit != nil {
			visit(c)
		}
		for _, p := range c.Parents {
			if w.visited[p] {
				continue
			}
			pc, err := w.src.Load(p)
			if err != nil {
				return err
			}
			queue = append(queue, pc)
		}
	}
	return nil
}

// NewCommits returns the commits reachable from tip but not from any
// of the known tips: the history a push genuinely introduces.
func NewCommits(src Loader, tip git.OID, known []git.OID) ([]*git.Commit, error) {
	w := New(src)
	if err := w.MarkKnown(known...); err != nil {
		return nil, err
	}
	return w.Collect(tip)
}

// IsAncestor reports whether ancestor lies strictly behind descendant
// along parent edges. A commit is not its own ancestor.
func IsAncestor(src Loader, ancestor, descendant git.OID) (bool, error) {
	if ancestor == descendant {
		return false, nil
	}
	start, err := src.Load(descendant)
	if err != nil {
		return false, err
	}
	visited := map[git.OID]bool{start.ID: true}
	queue := []*git.Commit{start}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, p := range c.Parents {
			if p == ancestor {
				return true, nil
			}
			if visited[p] {
				continue
			}
			visited[p] = true
			pc, err := src.Load(p)
			if err != nil {
				return false, err
			}
			queue = append(queue, pc)
		}
	}
	return false, nil
}
