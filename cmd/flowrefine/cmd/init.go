package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flowcanvas/flowrefine/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default project configuration",
	Long: `Create .flowrefine/config.yaml in the current directory with the
default settings and a comment for each option.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config")
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := filepath.Join(config.ProjectConfigDir, "config.yaml")
	if err := config.WriteDefault(path, initForce); err != nil {
		return fmt.Errorf("%w (use --force to overwrite)", err)
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	}
	return nil
}
