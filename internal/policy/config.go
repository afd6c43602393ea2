package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// Config is the policy switch set, one field per recognized key in
// the configuration file. Everything defaults to off: an absent key
// never restricts anything.
type Config struct {
	NoMerge               bool `yaml:"nomerge"`
	CommitterEqualsAuthor bool `yaml:"committerequalsauthor"`
	CommitterList         bool `yaml:"committerlist"`
	AuthorList            bool `yaml:"authorlist"`
	NoLightweightTags     bool `yaml:"nolightweighttags"`
	NoBranchCreate        bool `yaml:"nobranchcreate"`
	NoBranchDelete        bool `yaml:"nobranchdelete"`
	SignCommits           bool `yaml:"signcommits"`
	SignTags              bool `yaml:"signtags"`

	// BranchNameFilter restricts what newly created branches may be
	// called. The expression is matched against the short branch name
	// anchored at the start; anchoring the end with $ is up to the
	// expression author.
	BranchNameFilter string `yaml:"branchnamefilter"`

	// ForcePushBranches is a comma-separated list of patterns naming
	// branches that may be force-pushed, matched unanchored. Empty
	// leaves forced pushes unrestricted.
	ForcePushBranches string `yaml:"forcepushbranches"`
}

// rules is a Config with its patterns compiled.
type rules struct {
	Config
	branchName *regexp.Regexp
	forcePush  []*regexp.Regexp
}

func (c Config) compile() (rules, error) {
	r := rules{Config: c}
	if c.BranchNameFilter != "" {
		// The (?:...) group keeps alternations inside the filter from
		// escaping the anchor.
		re, err := regexp.Compile("^(?:" + c.BranchNameFilter + ")")
		if err != nil {
			return rules{}, fmt.Errorf("branchnamefilter: %w", err)
		}
		r.branchName = re
	}
	for _, pat := range strings.Split(c.ForcePushBranches, ",") {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return rules{}, fmt.Errorf("forcepushbranches: %q: %w", pat, err)
		}
		r.forcePush = append(r.forcePush, re)
	}
	return r, nil
}

// commitChecksEnabled reports whether any per-commit policy is on,
// which is what decides if the commit graph gets walked at all.
func (c Config) commitChecksEnabled() bool {
	return c.NoMerge || c.CommitterEqualsAuthor || c.CommitterList ||
		c.AuthorList || c.SignCommits
}
