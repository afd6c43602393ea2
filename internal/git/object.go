package git

import (
	"fmt"
	"strings"
	"time"

	"github.com/mhagander/pg-githooks/internal/identity"
)

// Commit is a parsed commit object.
type Commit struct {
	ID         OID
	Tree       OID
	Parents    []OID
	Author     identity.Identity
	Committer  identity.Identity
	AuthorTime time.Time
	CommitTime time.Time
	Message    string

	// SignaturePresent reports whether the object carries an embedded
	// gpgsig header. It says nothing about whether the signature is
	// valid; see Repo.VerifyCommit for that.
	SignaturePresent bool
}

// IsMerge reports whether the commit has more than one parent.
func (c *Commit) IsMerge() bool { return len(c.Parents) > 1 }

// Subject returns the first line of the commit message.
func (c *Commit) Subject() string {
	if i := strings.IndexByte(c.Message, '\n'); i >= 0 {
		return c.Message[:i]
	}
	return c.Message
}

// Tag is a parsed annotated tag object.
type Tag struct {
	ID         OID
	Object     OID
	ObjectType string
	Name       string
	Tagger     identity.Identity
	TagTime    time.Time
	Message    string

	// SignaturePresent reports whether the tag message ends in an
	// embedded PGP signature block.
	SignaturePresent bool
}

const pgpSignatureMarker = "-----BEGIN PGP SIGNATURE-----"

// parseCommit parses the raw bytes of a commit object as emitted by
// cat-file. Header continuation lines (leading space) fold into the
// preceding header, which is how multi-line gpgsig values arrive.
func parseCommit(id OID, raw []byte) (*Commit, error) {
	headers, message := splitObject(raw)
	c := &Commit{ID: id, Message: message}
	for _, h := range headers {
		key, value, _ := strings.Cut(h, " ")
		switch key {
		case "tree":
			tree, err := ParseOID(value)
			if err != nil {
				return nil, fmt.Errorf("commit %s: bad tree: %w", id, ErrCorruptObject)
			}
			c.Tree = tree
		case "parent":
			parent, err := ParseOID(value)
			if err != nil {
				return nil, fmt.Errorf("commit %s: bad parent: %w", id, ErrCorruptObject)
			}
			c.Parents = append(c.Parents, parent)
		case "author":
			who, when, err := identity.ParseLine(value)
			if err != nil {
				return nil, fmt.Errorf("commit %s: author: %v: %w", id, err, ErrCorruptObject)
			}
			c.Author, c.AuthorTime = who, when
		case "committer":
			who, when, err := identity.ParseLine(value)
			if err != nil {
				return nil, fmt.Errorf("commit %s: committer: %v: %w", id, err, ErrCorruptObject)
			}
			c.Committer, c.CommitTime = who, when
		case "gpgsig", "gpgsig-sha256":
			c.SignaturePresent = true
		}
	}
	if c.Tree == "" {
		return nil, fmt.Errorf("commit %s: missing tree header: %w", id, ErrCorruptObject)
	}
	if c.Author.Email == "" {
		return nil, fmt.Errorf("commit %s: missing author header: %w", id, ErrCorruptObject)
	}
	if c.Committer.Email == "" {
		return nil, fmt.Errorf("commit %s: missing committer header: %w", id, ErrCorruptObject)
	}
	return c, nil
}

// parseTag parses the raw bytes of an annotated tag object.
func parseTag(id OID, raw []byte) (*Tag, error) {
	headers, message := splitObject(raw)
	t := &Tag{ID: id}
	for _, h := range headers {
		key, value, _ := strings.Cut(h, " ")
		switch key {
		case "object":
			obj, err := ParseOID(value)
			if err != nil {
				return nil, fmt.Errorf("tag %s: bad object: %w", id, ErrCorruptObject)
			}
			t.Object = obj
		case "type":
			t.ObjectType = value
		case "tag":
			t.Name = value
		case "tagger":
			who, when, err := identity.ParseLine(value)
			if err != nil {
				return nil, fmt.Errorf("tag %s: tagger: %v: %w", id, err, ErrCorruptObject)
			}
			t.Tagger, t.TagTime = who, when
		}
	}
	if t.Object == "" || t.ObjectType == "" {
		return nil, fmt.Errorf("tag %s: missing object or type header: %w", id, ErrCorruptObject)
	}
	if i := strings.Index(message, pgpSignatureMarker); i >= 0 {
		t.SignaturePresent = true
		message = strings.TrimRight(message[:i], "\n")
	}
	t.Message = message
	return t, nil
}

// splitObject separates an object's header lines from its message.
// Continuation lines are folded into the header they extend.
func splitObject(raw []byte) (headers []string, message string) {
	text := string(raw)
	head, body, found := strings.Cut(text, "\n\n")
	if found {
		message = body
	} else {
		head = strings.TrimRight(text, "\n")
	}
	for _, line := range strings.Split(head, "\n") {
		if strings.HasPrefix(line, " ") && len(headers) > 0 {
			headers[len(headers)-1] += "\n" + line[1:]
			continue
		}
		headers = append(headers, line)
	}
	return headers, message
}
