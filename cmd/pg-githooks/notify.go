package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mhagander/pg-githooks/internal/git"
	"github.com/mhagander/pg-githooks/internal/notify"
	"github.com/mhagander/pg-githooks/internal/refs"
	"github.com/mhagander/pg-githooks/internal/revwalk"
)

func init() {
	rootCmd.AddCommand(notifyCmd)
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Mail the commits a push brought in (post-receive hook)",
	Long: `Mail the commits a push brought in, plus branch and tag
lifecycle events.

Wired as the repository's post-receive hook: reads the
"<old> <new> <ref>" lines git writes on stdin after the refs have
moved. With debug enabled the mails are printed instead of sent.`,
	Args: cobra.NoArgs,
	RunE: runNotify,
}

func runNotify(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	if cfg.Notify.Destination == "" {
		// Not configured for this repository; nothing to send.
		return nil
	}

	repo, err := git.Open("")
	if err != nil {
		exitWithError(ExitIntegrityError, "%v", err)
	}
	defer repo.Close()

	updates, err := parseReceiveLines(os.Stdin, revwalk.LoaderFunc(repo.PeelToCommit))
	if err != nil {
		exitWithError(ExitIntegrityError, "%v", err)
	}
	if len(updates) == 0 {
		return nil
	}

	var sender notify.Sender = notify.SendmailSender{Path: cfg.Notify.Sendmail}
	if cfg.Debug {
		sender = notify.DebugSender{W: cmd.OutOrStdout()}
	}

	n := notify.New(cfg.Notify, repo, sender)
	if err := n.Run(cmd.Context(), updates); err != nil {
		exitWithError(ExitFailure, "%v", err)
	}
	return nil
}

// parseReceiveLines classifies the ref updates git describes on the
// post-receive hook's stdin, one "<old> <new> <ref>" triple per line.
func parseReceiveLines(r io.Reader, src revwalk.Loader) ([]refs.Update, error) {
	var updates []refs.Update
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed post-receive line %q", line)
		}
		u, err := refs.Classify(src, parts[2], parts[0], parts[1])
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return updates, nil
}
