// Package policy decides whether a pushed reference update is allowed
// in. The engine evaluates the enabled checks in a fixed order, cheap
// guards before graph walks, and the first failing check settles the
// verdict.
package policy

import (
	"fmt"
	"io"

	"github.com/mhagander/pg-githooks/internal/git"
	"github.com/mhagander/pg-githooks/internal/identity"
	"github.com/mhagander/pg-githooks/internal/refs"
	"github.com/mhagander/pg-githooks/internal/signature"
)

// Facts supplies the repository-derived inputs the engine consumes.
// Implementations only ever read the object store.
type Facts interface {
	// NewCommits returns the commits the update genuinely introduces:
	// reachable from its new tip but from no other current ref.
	NewCommits(u refs.Update) ([]*git.Commit, error)

	// ObjectType names the type of the object behind an id.
	ObjectType(id git.OID) (string, error)

	// Tag loads an annotated tag object.
	Tag(id git.OID) (*git.Tag, error)

	// CommitSignature and TagSignature report signature status for
	// objects that may carry one.
	CommitSignature(c *git.Commit) (signature.Status, error)
	TagSignature(t *git.Tag) (signature.Status, error)
}

// Verdict is the outcome of evaluating one reference update. A
// disallowed verdict always carries a reason.
type Verdict struct {
	Allowed bool
	Reason  string
}

func allow() Verdict { return Verdict{Allowed: true} }

func reject(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

func violation(c *git.Commit, msg string) Verdict {
	return reject("Commit %s violates the policy: %s", c.ID, msg)
}

// Engine evaluates the configured policy set against one reference
// update at a time. It keeps no state between evaluations, so one
// engine may serve every ref in a push, or a fresh one may be built
// per ref.
type Engine struct {
	rules      rules
	committers identity.Registry
	facts      Facts
	debug      io.Writer
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithDebug directs per-commit progress lines to w. Debug output
// never changes a verdict.
func WithDebug(w io.Writer) Option {
	return func(e *Engine) { e.debug = w }
}

// NewEngine compiles the configuration into an engine. A pattern that
// does not compile is a configuration error; no evaluation happens
// after one.
func NewEngine(cfg Config, committers identity.Registry, facts Facts, opts ...Option) (*Engine, error) {
	r, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	e := &Engine{rules: r, committers: committers, facts: facts, debug: io.Discard}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate runs every enabled check against one update. A non-nil
// error means the evaluation itself failed (corrupt object, unreadable
// repository) and the caller must fail closed; it is distinct from a
// disallowed verdict, which is an ordinary policy rejection.
func (e *Engine) Evaluate(u refs.Update) (Verdict, error) {
	if u.Op == refs.Delete {
		if u.RefKind == refs.Branch && e.rules.NoBranchDelete {
			return reject("Deletion of branch %s is not allowed", u.ShortName()), nil
		}
		// Nothing to walk on a deletion.
		return allow(), nil
	}

	if u.Op == refs.Create && u.RefKind == refs.Branch {
		if e.rules.NoBranchCreate {
			return reject("Creation of branch %s is not allowed", u.ShortName()), nil
		}
		if e.rules.branchName != nil && !e.rules.branchName.MatchString(u.ShortName()) {
			return reject("Branch name %s is not allowed by the branch name filter", u.ShortName()), nil
		}
	}

	if u.Op == refs.Forced && u.RefKind == refs.Branch && len(e.rules.forcePush) > 0 {
		allowed := false
		for _, re := range e.rules.forcePush {
			if re.MatchString(u.ShortName()) {
				allowed = true
				break
			}
		}
		if !allowed {
			return reject("Forced push to branch %s is not allowed", u.ShortName()), nil
		}
	}

	// An annotated tag is loaded once here and reused by the signed-tag
	// check below.
	var tag *git.Tag
	if u.RefKind == refs.Tag {
		typ, err := e.facts.ObjectType(u.New)
		if err != nil {
			return Verdict{}, err
		}
		if typ == "tag" {
			if tag, err = e.facts.Tag(u.New); err != nil {
				return Verdict{}, err
			}
		} else if e.rules.NoLightweightTags {
			return reject("Lightweight tags are not allowed (%s)", u.ShortName()), nil
		}
	}

	if e.rules.commitChecksEnabled() {
		commits, err := e.facts.NewCommits(u)
		if err != nil {
			return Verdict{}, err
		}
		for _, c := range commits {
			fmt.Fprintf(e.debug, "Checking commit %s\n", c.ID)
			v, err := e.checkCommit(c)
			if err != nil {
				return Verdict{}, err
			}
			if !v.Allowed {
				return v, nil
			}
			fmt.Fprintln(e.debug, "Commit ok.")
		}
	}

	if u.RefKind == refs.Tag && e.rules.SignTags {
		if tag == nil {
			return reject("Tag %s is not signed", u.ShortName()), nil
		}
		st, err := e.facts.TagSignature(tag)
		if err != nil {
			return Verdict{}, err
		}
		if !st.Present {
			return reject("Tag %s is not signed", u.ShortName()), nil
		}
		if !st.Valid {
			return reject("Tag %s has an invalid signature", u.ShortName()), nil
		}
	}

	return allow(), nil
}

// checkCommit applies the per-commit policies to one new commit.
func (e *Engine) checkCommit(c *git.Commit) (Verdict, error) {
	if e.rules.NoMerge && c.IsMerge() {
		return violation(c, "No merge commits allowed"), nil
	}

	if e.rules.CommitterEqualsAuthor && c.Author != c.Committer {
		return violation(c, fmt.Sprintf("Author (%s) must be equal to committer (%s)", c.Author, c.Committer)), nil
	}

	if e.rules.CommitterList {
		if v := e.checkRegistry(c, "Committer", c.Committer); !v.Allowed {
			return v, nil
		}
	}

	if e.rules.AuthorList {
		if v := e.checkRegistry(c, "Author", c.Author); !v.Allowed {
			return v, nil
		}
	}

	if e.rules.SignCommits {
		st, err := e.facts.CommitSignature(c)
		if err != nil {
			return Verdict{}, err
		}
		if !st.Present {
			return violation(c, "Unsigned commits are not allowed"), nil
		}
		if !st.Valid {
			return violation(c, "Commit signature is not valid"), nil
		}
	}

	return allow(), nil
}

// checkRegistry verifies one identity against the committers section.
// A listed name with a different email fails with a message naming
// both addresses, so the pusher can tell a typo from a missing entry.
func (e *Engine) checkRegistry(c *git.Commit, role string, id identity.Identity) Verdict {
	email, ok := e.committers.Lookup(id.Name)
	if !ok {
		return violation(c, fmt.Sprintf("%s %s not listed in committers section", role, id.Name))
	}
	if email != id.Email {
		return violation(c, fmt.Sprintf("%s %s has wrong email (%s, should be %s)", role, id.Name, id.Email, email))
	}
	return allow()
}
