// Package main provides the pg-githooks CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mhagander/pg-githooks/internal/audit"
	"github.com/mhagander/pg-githooks/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

var configFlag string

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true, so
		// argument mistakes are still visible.
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitConfigError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pg-githooks",
	Short: "Server-side git hooks for hosted PostgreSQL repositories",
	Long: `pg-githooks bundles the server side of a hosted git repository:
the update hook that checks pushes against policy (enforce), the
post-receive hook that mails pushed commits (notify), the SSH forced
command restricting what authenticated users may run (wrap), and the
cron forwarder that keeps mirrors current (mirror).

Configuration comes from one YAML file, resolved from --config,
$PG_GITHOOKS_CONFIG, or pg-githooks.yml in the working directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to the configuration file")
	rootCmd.Version = Version
}

// mustLoadConfig resolves and loads the configuration, exiting on
// failure. Hooks must never guess at policy.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(config.Discover(configFlag))
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return cfg
}

// openJournal opens the configured audit journal. Journal problems
// are reported and otherwise ignored; they never block an operation.
func openJournal(cfg *config.Config) *audit.Journal {
	if cfg.Audit.Path == "" {
		return nil
	}
	j, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: %v\n", err)
		return nil
	}
	return j
}

func record(j *audit.Journal, e audit.Entry) {
	if err := j.Record(e); err != nil {
		fmt.Fprintf(os.Stderr, "audit: %v\n", err)
	}
}

func exitWithError(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
