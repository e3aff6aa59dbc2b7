package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	noColor   bool
	quiet     bool

	// Version info - set via SetVersion()
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "flowrefine",
	Short: "Refine visual workflows with an AI completion tool",
	Long: `flowrefine turns natural-language requests into edits of a workflow graph.

It builds a prompt from the current workflow, the recent conversation and
the available skills, runs the completion tool, and validates the proposed
graph before handing it back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and reports errors on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !isReported(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .flowrefine/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress non-essential output")
}

// reportedError marks errors already rendered for the user.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func isReported(err error) bool {
	_, ok := err.(reportedError)
	return ok
}
