package git

import "fmt"

// OID is an object id: the lowercase hex hash naming a commit, tag,
// tree or blob. SHA-1 (40 chars) and SHA-256 (64 chars) repositories
// are both accepted. The all-zero id is the hook sentinel for "no
// object" (reference creation or deletion).
type OID string

// ParseOID validates an object id received from the hook command line
// or from git output.
func ParseOID(s string) (OID, error) {
	if len(s) != 40 && len(s) != 64 {
		return "", fmt.Errorf("malformed object id %q", s)
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("malformed object id %q", s)
		}
	}
	return OID(s), nil
}

// IsZero reports whether the id is the all-zero sentinel.
func (id OID) IsZero() bool {
	for _, c := range id {
		if c != '0' {
			return false
		}
	}
	return len(id) > 0
}

func (id OID) String() string { return string(id) }
