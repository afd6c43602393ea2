package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mhagander/pg-githooks/internal/audit"
	"github.com/mhagander/pg-githooks/internal/wrap"
)

func init() {
	rootCmd.AddCommand(wrapCmd)
}

var wrapCmd = &cobra.Command{
	Use:   "wrap <user>",
	Short: "Run a restricted git command for an SSH user (forced command)",
	Long: `Run the git transport command an SSH client asked for, after
checking it against the allowlist and the repository base.

Wired as the forced command in authorized_keys:

  command="pg-githooks wrap magnus" ssh-rsa AAAA...

The requested command arrives in $SSH_ORIGINAL_COMMAND. Only
git-upload-pack and git-receive-pack are allowed, against existing
.git directories under the configured repository base. Every attempt
is journaled.`,
	Args: cobra.ExactArgs(1),
	RunE: runWrap,
}

func runWrap(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	journal := openJournal(cfg)
	defer journal.Close()

	user := args[0]
	raw := os.Getenv("SSH_ORIGINAL_COMMAND")

	w := wrap.New(cfg.Wrap)
	inv, err := w.Parse(user, raw)
	if err != nil {
		record(journal, audit.Entry{
			Event:  "wrap",
			User:   user,
			Detail: fmt.Sprintf("%v (%q)", err, raw),
		})
		exitWithError(ExitFailure, "%v", err)
	}
	record(journal, audit.Entry{
		Event:   "wrap",
		User:    user,
		Repo:    inv.Path,
		Allowed: true,
		Detail:  inv.ShellCommand(),
	})

	code, err := w.Exec(inv)
	if err != nil {
		exitWithError(ExitFailure, "%v", err)
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}
