// Package notify builds and delivers the commit notification mails
// for a received push: one mail per new commit, plus administrative
// mails for branch and tag lifecycle events.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/mhagander/pg-githooks/internal/git"
	"github.com/mhagander/pg-githooks/internal/refs"
	"github.com/mhagander/pg-githooks/internal/revwalk"
)

// Config drives mail generation. Subject may contain $shortmsg, which
// expands to the commit's first line; Gitweb may contain $action and
// $commit, which expand per link. When one ref update brings in more
// than MaxMails commits, a single summary mail replaces the
// per-commit mails.
type Config struct {
	Destination    string  `yaml:"destination"`
	FallbackSender string  `yaml:"fallbacksender"`
	Subject        string  `yaml:"subject"`
	Gitweb         string  `yaml:"gitweb"`
	Sendmail       string  `yaml:"sendmail"`
	MaxMails       int     `yaml:"maxmails"`
	RateLimit      float64 `yaml:"ratelimit"`
}

// Repository is the read-only slice of git plumbing the notifier
// consumes. *git.Repo satisfies it.
type Repository interface {
	PeelToCommit(id git.OID) (*git.Commit, error)
	ObjectType(id git.OID) (string, error)
	Tag(id git.OID) (*git.Tag, error)
	DiffStat(id git.OID) (string, error)
	BranchesContaining(id git.OID) ([]string, error)
	RefTips(skip ...string) ([]git.OID, error)
}

// Notifier turns classified ref updates into outbound messages.
type Notifier struct {
	cfg     Config
	repo    Repository
	sender  Sender
	limiter *rate.Limiter
}

// New builds a notifier. A non-positive rate limit means unthrottled
// delivery.
func New(cfg Config, repo Repository, sender Sender) *Notifier {
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = int(cfg.RateLimit) + 1
	}
	return &Notifier{
		cfg:     cfg,
		repo:    repo,
		sender:  sender,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Run mails everything one push introduced. Commits shared between
// several updated refs are mailed once, for the first ref that claims
// them; within a ref, commit mails go out oldest first. Delivery
// failures do not stop later mails.
func (n *Notifier) Run(ctx context.Context, updates []refs.Update) error {
	refnames := make([]string, 0, len(updates))
	oldTips := make([]git.OID, 0, len(updates))
	for _, u := range updates {
		refnames = append(refnames, u.Refname)
		if !u.Old.IsZero() && u.Old != "" {
			oldTips = append(oldTips, u.Old)
		}
	}

	// The post-receive hook runs after the refs moved, so the updated
	// refs must not count as already-known history; their old tips
	// still do.
	tips, err := n.repo.RefTips(refnames...)
	if err != nil {
		return err
	}
	w := revwalk.New(revwalk.LoaderFunc(n.repo.PeelToCommit))
	if err := w.MarkKnown(tips...); err != nil {
		return err
	}
	if err := w.MarkKnown(oldTips...); err != nil {
		return err
	}

	var queue []Message
	for _, u := range updates {
		msgs, err := n.messagesFor(u, w)
		if err != nil {
			return err
		}
		queue = append(queue, msgs...)
	}

	var errs []error
	for _, m := range queue {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := n.sender.Send(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) messagesFor(u refs.Update, w *revwalk.Walker) ([]Message, error) {
	switch {
	case u.Op == refs.Delete:
		return []Message{n.removedMessage(u)}, nil

	case u.Op == refs.Create && u.RefKind == refs.Branch:
		return []Message{n.branchCreatedMessage(u)}, nil

	case u.Op == refs.Create && u.RefKind == refs.Tag:
		typ, err := n.repo.ObjectType(u.New)
		if err != nil {
			return nil, err
		}
		if typ != "tag" {
			return []Message{n.lightweightTagMessage(u)}, nil
		}
		tag, err := n.repo.Tag(u.New)
		if err != nil {
			return nil, err
		}
		return []Message{n.annotatedTagMessage(tag)}, nil

	default:
		commits, err := w.Collect(u.New)
		if err != nil {
			return nil, err
		}
		sort.Slice(commits, func(i, j int) bool {
			return commits[i].CommitTime.Before(commits[j].CommitTime)
		})
		if n.cfg.MaxMails > 0 && len(commits) > n.cfg.MaxMails {
			return []Message{n.summaryMessage(u, commits)}, nil
		}
		msgs := make([]Message, 0, len(commits))
		for _, c := range commits {
			m, err := n.commitMessage(c)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, m)
		}
		return msgs, nil
	}
}

func (n *Notifier) commitMessage(c *git.Commit) (Message, error) {
	stat, err := n.repo.DiffStat(c.ID)
	if err != nil {
		return Message{}, err
	}
	branches, err := n.repo.BranchesContaining(c.ID)
	if err != nil {
		return Message{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Commit: %s\n", n.gitwebURL("commitdiff", string(c.ID)))
	b.WriteString("\nLog Message\n-----------\n")
	b.WriteString(strings.TrimRight(c.Message, "\n"))
	b.WriteString("\n\nBranches\n--------\n")
	b.WriteString(strings.Join(branches, "\n"))
	b.WriteString("\n\nModified Files\n--------------\n")
	for _, line := range strings.Split(stat, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			b.WriteString(trimmed)
			b.WriteString("\n")
		}
	}

	return Message{
		To:      n.cfg.Destination,
		From:    c.Author.String(),
		Subject: n.subject(c.Subject()),
		Body:    b.String(),
	}, nil
}

func (n *Notifier) branchCreatedMessage(u refs.Update) Message {
	body := fmt.Sprintf("Branch %s was created.\n\nView: %s",
		u.Refname, n.gitwebURL("shortlog", u.Refname))
	return Message{
		To:      n.cfg.Destination,
		From:    n.cfg.FallbackSender,
		Subject: n.subject(fmt.Sprintf("Branch %s was created", u.Refname)),
		Body:    body,
	}
}

func (n *Notifier) removedMessage(u refs.Update) Message {
	kind := "Branch"
	if u.RefKind == refs.Tag {
		kind = "Tag"
	}
	return Message{
		To:      n.cfg.Destination,
		From:    n.cfg.FallbackSender,
		Subject: n.subject(fmt.Sprintf("%s %s was removed", kind, u.Refname)),
		Body:    fmt.Sprintf("%s %s was removed.", kind, u.Refname),
	}
}

func (n *Notifier) lightweightTagMessage(u refs.Update) Message {
	return Message{
		To:      n.cfg.Destination,
		From:    n.cfg.FallbackSender,
		Subject: n.subject(fmt.Sprintf("Tag %s was created", u.Refname)),
		Body:    fmt.Sprintf("Tag %s was created.\n", u.Refname),
	}
}

func (n *Notifier) annotatedTagMessage(tag *git.Tag) Message {
	from := tag.Tagger.String()
	if tag.Tagger.Email == "" {
		from = n.cfg.FallbackSender
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tag %s has been created.\n", tag.Name)
	fmt.Fprintf(&b, "View: %s\n", n.gitwebURL("tag", "refs/tags/"+tag.Name))
	b.WriteString("\nLog Message\n-----------\n")
	// Only the first paragraph of the tag message goes out.
	for _, line := range strings.Split(tag.Message, "\n") {
		if strings.TrimSpace(line) == "" {
			break
		}
		b.WriteString(strings.TrimRight(line, " \t"))
		b.WriteString("\n")
	}

	return Message{
		To:      n.cfg.Destination,
		From:    from,
		Subject: n.subject(fmt.Sprintf("Tag %s has been created.", tag.Name)),
		Body:    b.String(),
	}
}

// summaryMessage condenses a large push into one mail listing the
// commits instead of mailing each one.
func (n *Notifier) summaryMessage(u refs.Update, commits []*git.Commit) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new commits pushed to %s.\n\n", len(commits), u.Refname)
	for _, c := range commits {
		fmt.Fprintf(&b, "  %s %s\n", c.ID[:10], c.Subject())
	}
	fmt.Fprintf(&b, "\nView: %s\n", n.gitwebURL("shortlog", u.Refname))

	return Message{
		To:      n.cfg.Destination,
		From:    n.cfg.FallbackSender,
		Subject: n.subject(fmt.Sprintf("%d new commits on %s", len(commits), u.Refname)),
		Body:    b.String(),
	}
}

func (n *Notifier) gitwebURL(action, commit string) string {
	url := strings.ReplaceAll(n.cfg.Gitweb, "$action", action)
	return strings.ReplaceAll(url, "$commit", commit)
}

// subject expands $shortmsg in the configured subject template. The
// replacement is capped so the whole header stays near 80 characters,
// measured against the raw template.
func (n *Notifier) subject(short string) string {
	limit := 80 - len(n.cfg.Subject)
	if limit < 0 {
		limit = 0
	}
	if len(short) > limit {
		short = truncate(short, limit)
	}
	return strings.ReplaceAll(n.cfg.Subject, "$shortmsg", short)
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && s[limit]&0xc0 == 0x80 {
		limit--
	}
	return s[:limit]
}
