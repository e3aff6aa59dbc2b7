package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/diff"
)

var diffJSON bool

var diffCmd = &cobra.Command{
	Use:   "diff <baseline> <proposed>",
	Short: "Summarise the changes between two workflow files",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().BoolVar(&diffJSON, "json", false, "print the summary as JSON")
}

func runDiff(cmd *cobra.Command, args []string) error {
	var base, proposed core.Workflow
	if err := readJSONFile(args[0], cmd.InOrStdin(), &base); err != nil {
		return err
	}
	if err := readJSONFile(args[1], cmd.InOrStdin(), &proposed); err != nil {
		return err
	}

	summary := diff.ComputeWorkflows(&base, &proposed)
	if diffJSON {
		return writeJSON(cmd.OutOrStdout(), struct {
			diff.Summary
			Headline string `json:"headline"`
		}{summary, summary.Headline()})
	}
	fmt.Fprint(cmd.OutOrStdout(), newRenderer(cmd.OutOrStdout()).Diff(summary))
	return nil
}
