// Package identity provides git author/committer identities and the
// registry of authorized committers.
package identity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Identity is a person as recorded in a git object header.
// Two identities are equal when both name and email match exactly.
type Identity struct {
	Name  string
	Email string
}

// String formats the identity the way git writes it.
func (i Identity) String() string {
	return i.Name + " <" + i.Email + ">"
}

// timestampRe matches the trailing "epoch timezone" part of an ident line.
var timestampRe = regexp.MustCompile(`^(\d+) ([+-]\d{4})$`)

// ParseLine parses the value of a git "author" or "committer" header,
// which has the form "Name <email> epoch timezone".
// A line that does not follow this form is a repository integrity
// problem, not a policy violation, so the error is fatal to the caller.
func ParseLine(line string) (Identity, time.Time, error) {
	lt := strings.Index(line, "<")
	gt := strings.Index(line, ">")
	if lt < 0 || gt < lt {
		return Identity{}, time.Time{}, fmt.Errorf("malformed ident %q", line)
	}

	name := strings.TrimSpace(line[:lt])
	email := line[lt+1 : gt]
	if name == "" {
		return Identity{}, time.Time{}, fmt.Errorf("malformed ident %q: empty name", line)
	}
	if email == "" {
		return Identity{}, time.Time{}, fmt.Errorf("malformed ident %q: empty email", line)
	}

	rest := strings.TrimSpace(line[gt+1:])
	m := timestampRe.FindStringSubmatch(rest)
	if m == nil {
		return Identity{}, time.Time{}, fmt.Errorf("malformed ident %q: bad timestamp", line)
	}

	epoch, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Identity{}, time.Time{}, fmt.Errorf("malformed ident %q: %w", line, err)
	}

	// Timezone is ±HHMM; convert to seconds east of UTC.
	sign := 1
	if m[2][0] == '-' {
		sign = -1
	}
	hours, _ := strconv.Atoi(m[2][1:3])
	mins, _ := strconv.Atoi(m[2][3:5])
	offset := sign * (hours*3600 + mins*60)

	when := time.Unix(epoch, 0).In(time.FixedZone(m[2], offset))
	return Identity{Name: name, Email: email}, when, nil
}

// Registry is the set of authorized identities, keyed by display name.
// It is built once from configuration and never mutated afterwards.
type Registry map[string]string

// NewRegistry copies the given name→email mapping into a Registry.
func NewRegistry(entries map[string]string) Registry {
	reg := make(Registry, len(entries))
	for name, email := range entries {
		reg[name] = email
	}
	return reg
}

// Lookup returns the registered email for a display name.
func (r Registry) Lookup(name string) (string, bool) {
	email, ok := r[name]
	return email, ok
}

// Contains reports whether the identity is registered with exactly
// this name and email.
func (r Registry) Contains(id Identity) bool {
	email, ok := r[id.Name]
	return ok && email == id.Email
}
