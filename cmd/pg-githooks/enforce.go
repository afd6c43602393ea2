package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mhagander/pg-githooks/internal/audit"
	"github.com/mhagander/pg-githooks/internal/git"
	"github.com/mhagander/pg-githooks/internal/policy"
	"github.com/mhagander/pg-githooks/internal/refs"
	"github.com/mhagander/pg-githooks/internal/revwalk"
)

func init() {
	rootCmd.AddCommand(enforceCmd)
}

var enforceCmd = &cobra.Command{
	Use:   "enforce <refname> <oldsha> <newsha>",
	Short: "Check one ref update against the push policy (update hook)",
	Long: `Check one ref update against the configured push policy.

Wired as the repository's update hook, which hands over the ref name
and the old and new object ids before the ref moves. Exit status 0
allows the update; 1 means the policy refused it; 2 a configuration
problem; 3 a repository problem. The reason goes to stderr for git to
relay back to the pusher.`,
	Args: cobra.ExactArgs(3),
	RunE: runEnforce,
}

func runEnforce(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	repo, err := git.Open("")
	if err != nil {
		exitWithError(ExitIntegrityError, "%v", err)
	}
	defer repo.Close()

	journal := openJournal(cfg)
	defer journal.Close()

	update, err := refs.Classify(revwalk.LoaderFunc(repo.PeelToCommit), args[0], args[1], args[2])
	if err != nil {
		exitWithError(ExitIntegrityError, "%v", err)
	}

	var opts []policy.Option
	if cfg.Debug {
		opts = append(opts, policy.WithDebug(os.Stderr))
	}
	engine, err := policy.NewEngine(cfg.Policy, cfg.Registry(), newRepoFacts(repo), opts...)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	verdict, err := engine.Evaluate(update)
	entry := audit.Entry{
		Event:   "enforce",
		Repo:    repo.Dir(),
		Refname: update.Refname,
		OldID:   string(update.Old),
		NewID:   string(update.New),
		Allowed: err == nil && verdict.Allowed,
	}
	switch {
	case err != nil:
		// Fail closed: an evaluation failure refuses the update.
		entry.Detail = err.Error()
		record(journal, entry)
		exitWithError(ExitIntegrityError, "%v", err)
	case !verdict.Allowed:
		entry.Detail = verdict.Reason
		record(journal, entry)
		exitWithError(ExitFailure, "%s", verdict.Reason)
	}
	record(journal, entry)
	return nil
}
