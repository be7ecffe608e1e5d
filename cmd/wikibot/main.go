package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dalnet/wikibot/internal/irc"
	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

var (
	configPath string
	foreground bool

	rootCmd = &cobra.Command{
		Use:           "wikibot",
		Short:         "IRC bot serving lookups from a mirrored Wikidot site",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Connect to IRC and keep the wiki mirrors in sync",
		Long: `Connects to the configured IRC server, builds every enabled feed once and
then polls each one on its own interval. Daemonizes unless -x is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !foreground {
				return daemonize()
			}
			return run(cmd.Context(), configPath)
		},
	}
	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Fetch every enabled feed once and print snapshot sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return check(cmd.Context(), cmd.OutOrStdout(), configPath)
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wikibot version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildDate)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	runCmd.Flags().BoolVarP(&foreground, "foreground", "x", false, "Run in foreground (don't daemonize)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Set version info in irc package
	irc.Version = version
	irc.BuildDate = buildDate
	irc.GitCommit = gitCommit

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
