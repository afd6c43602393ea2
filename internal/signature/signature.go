// Package signature checks cryptographic signatures on commits and
// annotated tags. Whether a signature is present is read off the
// object itself; whether it is valid is delegated to the gpg keyring
// git is configured with. The two questions get distinct answers so a
// rejection can say which one went wrong.
package signature

import (
	"errors"

	"github.com/mhagander/pg-githooks/internal/git"
)

// Status is the outcome of checking one object.
type Status struct {
	Present bool
	Valid   bool
}

// Verifier resolves signature status against one repository.
type Verifier struct {
	verifyCommit func(git.OID) error
	verifyTag    func(git.OID) error
}

// NewVerifier returns a verifier backed by the repository's gpg
// integration.
func NewVerifier(repo *git.Repo) *Verifier {
	return &Verifier{
		verifyCommit: repo.VerifyCommit,
		verifyTag:    repo.VerifyTag,
	}
}

// Commit reports the signature status of a parsed commit. Unsigned
// commits never reach gpg.
func (v *Verifier) Commit(c *git.Commit) (Status, error) {
	if !c.SignaturePresent {
		return Status{}, nil
	}
	return v.resolve(v.verifyCommit, c.ID)
}

// Tag reports the signature status of a parsed annotated tag.
func (v *Verifier) Tag(t *git.Tag) (Status, error) {
	if !t.SignaturePresent {
		return Status{}, nil
	}
	return v.resolve(v.verifyTag, t.ID)
}

func (v *Verifier) resolve(verify func(git.OID) error, id git.OID) (Status, error) {
	err := verify(id)
	if err == nil {
		return Status{Present: true, Valid: true}, nil
	}
	if errors.Is(err, git.ErrBadSignature) {
		return Status{Present: true}, nil
	}
	return Status{}, err
}
