package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowcanvas/flowrefine/internal/diagnostics"
	"github.com/flowcanvas/flowrefine/internal/schema"
	"github.com/flowcanvas/flowrefine/internal/skills"
	"github.com/flowcanvas/flowrefine/internal/tui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that refinement can run on this machine",
	Long: `Verify the configuration, the completion tool, the workflow schema and
the skill directories, and print a summary of the host.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	failed := false

	fmt.Fprintln(out, tui.HeaderStyle.Render("flowrefine doctor"))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(out, tui.Check(false, false, "Configuration", err.Error()))
		return reportedError{err: err}
	}
	fmt.Fprintln(out, tui.Check(true, false, "Configuration", ""))

	logger := newLogger(cfg)
	runner := newRunner(cfg, logger)
	if err := runner.CheckAvailability(ctx); err != nil {
		failed = true
		fmt.Fprintln(out, tui.Check(false, false, "Completion tool", err.Error()))
	} else {
		version, err := runner.Version(ctx)
		if err != nil {
			version = "version unknown"
		}
		fmt.Fprintln(out, tui.Check(true, false, "Completion tool", cfg.Tool.Path+" "+version))
	}

	if _, err := schema.NewValidator(); err != nil {
		failed = true
		fmt.Fprintln(out, tui.Check(false, false, "Workflow schema", err.Error()))
	} else if _, err := schema.NewFileLoader(logger).LoadSchema(ctx, cfg.Refine.SchemaPath); err != nil {
		failed = true
		fmt.Fprintln(out, tui.Check(false, false, "Workflow schema", err.Error()))
	} else {
		fmt.Fprintln(out, tui.Check(true, false, "Workflow schema", ""))
	}

	catalogue, err := skills.NewScanner(cfg.Skills.PersonalDir, cfg.Skills.ProjectDir,
		skills.WithScannerLogger(logger)).Scan(ctx)
	switch {
	case err != nil:
		fmt.Fprintln(out, tui.Check(false, true, "Skills", err.Error()))
	case len(catalogue.Personal)+len(catalogue.Project) == 0:
		fmt.Fprintln(out, tui.Check(false, true, "Skills", "none found"))
	default:
		fmt.Fprintln(out, tui.Check(true, false, "Skills",
			fmt.Sprintf("%d personal, %d project", len(catalogue.Personal), len(catalogue.Project))))
	}

	pre := diagnostics.NewPreflight(true, cfg.Diagnostics.MinFreeMemoryMB).Check(ctx)
	detail := strings.Join(append(pre.Errors, pre.Warnings...), "; ")
	if !pre.OK {
		failed = true
	}
	fmt.Fprintln(out, tui.Check(pre.OK && len(pre.Warnings) == 0, pre.OK, "Resources", detail))

	fmt.Fprintln(out)
	fmt.Fprint(out, newRenderer(out).Table("System", diagnostics.CollectReport(ctx).Lines()))

	if failed {
		return reportedError{err: fmt.Errorf("doctor found problems")}
	}
	return nil
}
