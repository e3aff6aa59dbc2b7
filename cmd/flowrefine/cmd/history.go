package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowcanvas/flowrefine/internal/core"
)

var (
	historyNestedFlow string
	historyJSON       bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear stored conversations",
}

var historyShowCmd = &cobra.Command{
	Use:   "show <workflow-id>",
	Short: "Print the conversation for a workflow or nested flow",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <workflow-id>",
	Short: "Delete the conversation for a workflow or nested flow",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyCmd.PersistentFlags().StringVar(&historyNestedFlow, "nested-flow", "",
		"nested flow id within the workflow")
	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "print the history as JSON")
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	key := core.HistoryKey(args[0], historyNestedFlow)
	h, err := store.Load(cmd.Context(), key)
	if err != nil {
		return err
	}
	if historyJSON {
		return writeJSON(cmd.OutOrStdout(), h)
	}
	fmt.Fprint(cmd.OutOrStdout(), newRenderer(cmd.OutOrStdout()).History(key, h))
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	key := core.HistoryKey(args[0], historyNestedFlow)
	if err := store.Clear(cmd.Context(), key); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared history for %s\n", key)
	}
	return nil
}
