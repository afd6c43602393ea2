// Package refs classifies the reference updates a push delivers to
// the hooks: which namespace the ref lives in, and whether the update
// creates, deletes, fast-forwards or rewrites it.
package refs

import (
	"fmt"
	"strings"

	"github.com/mhagander/pg-githooks/internal/git"
	"github.com/mhagander/pg-githooks/internal/revwalk"
)

// RefKind is the namespace a reference lives in.
type RefKind int

const (
	Branch RefKind = iota
	Tag
	Other
)

func (k RefKind) String() string {
	switch k {
	case Branch:
		return "branch"
	case Tag:
		return "tag"
	default:
		return "ref"
	}
}

// Op is what an update does to its reference.
type Op int

const (
	Create Op = iota
	Delete
	FastForward
	Forced
)

func (op Op) String() string {
	switch op {
	case Create:
		return "create"
	case Delete:
		return "delete"
	case FastForward:
		return "fast-forward"
	default:
		return "forced update"
	}
}

// Update is one classified reference update. Old is the all-zero id
// for a creation, New for a deletion.
type Update struct {
	Refname string
	Old     git.OID
	New     git.OID
	RefKind RefKind
	Op      Op
}

// ShortName returns the reference name without its namespace prefix:
// "refs/heads/master" becomes "master".
func (u Update) ShortName() string {
	switch u.RefKind {
	case Branch:
		return strings.TrimPrefix(u.Refname, "refs/heads/")
	case Tag:
		return strings.TrimPrefix(u.Refname, "refs/tags/")
	default:
		return u.Refname
	}
}

// Classify parses one hook argument triple into an Update. The walker
// source resolves ancestry when an update has to be told apart from a
// forced push; creations and deletions never touch the graph.
func Classify(src revwalk.Loader, refname, oldRaw, newRaw string) (Update, error) {
	u := Update{Refname: refname}

	switch {
	case strings.HasPrefix(refname, "refs/heads/"):
		u.RefKind = Branch
	case strings.HasPrefix(refname, "refs/tags/"):
		u.RefKind = Tag
	case strings.HasPrefix(refname, "refs/"):
		u.RefKind = Other
	default:
		return Update{}, fmt.Errorf("malformed refname %q", refname)
	}

	oldID, err := git.ParseOID(oldRaw)
	if err != nil {
		return Update{}, fmt.Errorf("%s: old id: %w", refname, err)
	}
	newID, err := git.ParseOID(newRaw)
	if err != nil {
		return Update{}, fmt.Errorf("%s: new id: %w", refname, err)
	}
	u.Old, u.New = oldID, newID

	switch {
	case oldID.IsZero() && newID.IsZero():
		return Update{}, fmt.Errorf("%s: both ids zero", refname)
	case oldID.IsZero():
		u.Op = Create
	case newID.IsZero():
		u.Op = Delete
	case oldID == newID:
		// git does not hand hooks no-op updates, but classify them
		// as fast-forwards rather than guessing.
		u.Op = FastForward
	default:
		ff, err := revwalk.IsAncestor(src, oldID, newID)
		if err != nil {
			return Update{}, fmt.Errorf("%s: ancestry check: %w", refname, err)
		}
		if ff {
			u.Op = FastForward
		} else {
			u.Op = Forced
		}
	}
	return u, nil
}
