// Package cmd defines and implements the CLI commands for the course-archiver
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root command and attaches its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course-archiver",
		Short: "Archives every page of an online course as PDF or PNG.",
		Long: `course-archiver logs into a course site with a headless browser, discovers
the course outline and captures each page to a numbered PDF or PNG file.
Pages are captured concurrently and retried on transient failures.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().Bool("debug", false, "development logging and effective configuration dump")

	cmd.AddCommand(newArchiveCmd())
	return cmd
}

// Execute is the main entry point. It exits non-zero when the command fails.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
