package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mhagander/pg-githooks/internal/audit"
)

var (
	auditLimitFlag int
	auditPruneFlag int
)

func init() {
	auditCmd.Flags().IntVar(&auditLimitFlag, "limit", 20, "Number of entries to show")
	auditCmd.Flags().IntVar(&auditPruneFlag, "prune-days", 0, "Delete entries older than this many days instead of listing")
	rootCmd.AddCommand(auditCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show or prune the decision journal",
	Long: `Show the most recent journal entries: policy decisions from the
update hook and command invocations from the wrapper, newest first.`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	if cfg.Audit.Path == "" {
		exitWithError(ExitConfigError, "no audit journal configured")
	}

	j, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		exitWithError(ExitFailure, "%v", err)
	}
	defer j.Close()

	if auditPruneFlag > 0 {
		cutoff := time.Now().AddDate(0, 0, -auditPruneFlag)
		n, err := j.Prune(cutoff)
		if err != nil {
			exitWithError(ExitFailure, "%v", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", n)
		return nil
	}

	entries, err := j.Tail(auditLimitFlag)
	if err != nil {
		exitWithError(ExitFailure, "%v", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	for _, e := range entries {
		verdict := "allow"
		if !e.Allowed {
			verdict = "deny"
		}
		subject := e.Refname
		if subject == "" {
			subject = e.User
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.When.Format(time.RFC3339), e.Event, verdict, subject, e.Detail)
	}
	return tw.Flush()
}
