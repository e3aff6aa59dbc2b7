package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/flowcanvas/flowrefine/internal/clip"
	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/service/refine"
)

var refineCmd = &cobra.Command{
	Use:   "refine <file>",
	Short: "Refine a workflow or nested flow with a natural-language request",
	Long: `Send a workflow (or a nested flow) and a request to the completion tool
and print the proposed result as JSON.

The conversation is kept in the configured history store, so follow-up
requests see the previous rounds. When the tool asks a question instead of
proposing a change, the question is printed and the round is recorded.

Examples:
  # Refine a workflow and print the result
  flowrefine refine workflow.json -m "add a Slack notification after the summary"

  # Refine in place
  flowrefine refine workflow.json -m "remove the approval step" --write

  # Refine a nested flow of workflow wf-1
  flowrefine refine flow.json --workflow wf-1 --nested-flow review -m "add a lint step"`,
	Args: cobra.ExactArgs(1),
	RunE: runRefine,
}

var (
	refineMessage    string
	refineNestedFlow string
	refineWorkflowID string
	refineTimeout    time.Duration
	refineNoSkills   bool
	refineWrite      bool
	refineCopy       bool
	refineID         string
)

func init() {
	rootCmd.AddCommand(refineCmd)

	refineCmd.Flags().StringVarP(&refineMessage, "message", "m", "",
		"refinement request (required)")
	refineCmd.Flags().StringVar(&refineNestedFlow, "nested-flow", "",
		"treat the file as the nested flow with this id")
	refineCmd.Flags().StringVar(&refineWorkflowID, "workflow", "",
		"id of the workflow that owns the nested flow")
	refineCmd.Flags().DurationVar(&refineTimeout, "timeout", 0,
		"tool timeout (default: tool.timeout from config)")
	refineCmd.Flags().BoolVar(&refineNoSkills, "no-skills", false,
		"do not offer skills to the tool")
	refineCmd.Flags().BoolVar(&refineWrite, "write", false,
		"overwrite the input file with the refined result")
	refineCmd.Flags().BoolVar(&refineCopy, "copy", false,
		"copy the refined result to the clipboard")
	refineCmd.Flags().StringVar(&refineID, "correlation-id", "",
		"correlation id for logs (default: random)")
}

func runRefine(cmd *cobra.Command, args []string) error {
	path := args[0]
	if strings.TrimSpace(refineMessage) == "" {
		return fmt.Errorf("--message is required")
	}
	if refineNestedFlow != "" && refineWorkflowID == "" {
		return fmt.Errorf("--workflow is required with --nested-flow")
	}
	if refineWrite && path == "-" {
		return fmt.Errorf("--write needs a file, not stdin")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	store, closeStore, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := refineID
	if id == "" {
		id = uuid.NewString()
	}
	useSkills := cfg.Refine.UseSkills && !refineNoSkills

	var (
		res refine.Result
		key string
	)
	if refineNestedFlow != "" {
		var flow core.NestedFlow
		if err := readJSONFile(path, cmd.InOrStdin(), &flow); err != nil {
			return err
		}
		key = core.HistoryKey(refineWorkflowID, refineNestedFlow)
		h, err := store.Load(ctx, key)
		if err != nil {
			return err
		}
		res = p.refiner.RefineNestedFlow(ctx, refine.NestedFlowRequest{
			CorrelationID: id,
			WorkflowID:    refineWorkflowID,
			NestedFlowID:  refineNestedFlow,
			Flow:          &flow,
			Message:       refineMessage,
			History:       h,
			UseSkills:     useSkills,
			Timeout:       refineTimeout,
		})
		if err := finishRound(ctx, store, key, h, res); err != nil {
			return err
		}
	} else {
		var wf core.Workflow
		if err := readJSONFile(path, cmd.InOrStdin(), &wf); err != nil {
			return err
		}
		if wf.ID == "" {
			wf.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		key = core.HistoryKey(wf.ID, "")
		h, err := store.Load(ctx, key)
		if err != nil {
			return err
		}
		res = p.refiner.RefineWorkflow(ctx, refine.WorkflowRequest{
			CorrelationID: id,
			Workflow:      &wf,
			Message:       refineMessage,
			History:       h,
			UseSkills:     useSkills,
			Timeout:       refineTimeout,
		})
		if err := finishRound(ctx, store, key, h, res); err != nil {
			return err
		}
	}

	return reportRefinement(cmd, path, res)
}

// finishRound persists the history after a round that appended to it.
func finishRound(ctx context.Context, store core.HistoryStore, key string, h *core.ConversationHistory, res refine.Result) error {
	if res.Outcome == refine.OutcomeError {
		return nil
	}
	if err := store.Save(context.WithoutCancel(ctx), key, h); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

func reportRefinement(cmd *cobra.Command, path string, res refine.Result) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	r := newRenderer(stderr)

	switch res.Outcome {
	case refine.OutcomeError:
		fmt.Fprint(stderr, r.Error(res.Error))
		if res.Error == nil {
			return reportedError{err: core.ErrUnknown("refinement failed")}
		}
		return reportedError{err: res.Error}

	case refine.OutcomeClarification:
		fmt.Fprint(stdout, newRenderer(stdout).Clarification(res.Message))
		return nil
	}

	var proposed interface{} = res.Workflow
	if res.NestedFlow != nil {
		proposed = res.NestedFlow
	}

	if !quiet && res.Diff != nil {
		fmt.Fprint(stderr, r.Diff(*res.Diff))
	}
	if !quiet && res.Skills != nil && len(res.Skills.Missing) > 0 {
		fmt.Fprintf(stderr, "Missing skills: %s\n", strings.Join(res.Skills.Missing, ", "))
	}

	if refineWrite {
		data, err := json.MarshalIndent(proposed, "", "  ")
		if err != nil {
			return err
		}
		if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		if !quiet {
			fmt.Fprintf(stderr, "Wrote %s\n", path)
		}
	} else if err := writeJSON(stdout, proposed); err != nil {
		return err
	}

	if refineCopy {
		copied, err := clip.New().CopyJSON(proposed)
		if err != nil {
			return fmt.Errorf("copying result: %w", err)
		}
		if !quiet {
			if copied.Method == clip.MethodFile {
				fmt.Fprintf(stderr, "Clipboard unavailable; result saved to %s\n", copied.FilePath)
			} else {
				fmt.Fprintf(stderr, "Copied to clipboard (%s)\n", copied.Method)
			}
		}
	}
	return nil
}
