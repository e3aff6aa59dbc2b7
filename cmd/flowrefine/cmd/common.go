package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/flowcanvas/flowrefine/internal/adapters/cli"
	"github.com/flowcanvas/flowrefine/internal/adapters/history"
	"github.com/flowcanvas/flowrefine/internal/config"
	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/diagnostics"
	"github.com/flowcanvas/flowrefine/internal/logging"
	"github.com/flowcanvas/flowrefine/internal/schema"
	"github.com/flowcanvas/flowrefine/internal/service"
	"github.com/flowcanvas/flowrefine/internal/service/refine"
	"github.com/flowcanvas/flowrefine/internal/skills"
	"github.com/flowcanvas/flowrefine/internal/tui"
)

// loadConfig loads and validates configuration. Persistent flags override
// every other source.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	if logLevel != "" {
		loader.Set("log.level", logLevel)
	}
	if logFormat != "" {
		loader.Set("log.format", logFormat)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}

// newRenderer sizes output to the terminal on w when there is one.
func newRenderer(w io.Writer) *tui.Renderer {
	width, color := 80, false
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = cols
		}
		color = !noColor
	}
	return tui.NewRenderer(width, color)
}

func newRunner(cfg *config.Config, logger *logging.Logger) *cli.Runner {
	return cli.NewRunner(cli.Config{
		Path:        cfg.Tool.Path,
		ExtraArgs:   cfg.Tool.ExtraArgs,
		Timeout:     cfg.Tool.TimeoutDuration(),
		GracePeriod: cfg.Tool.GracePeriodDuration(),
		StderrLimit: cfg.Tool.StderrLimit,
		WorkDir:     cfg.Tool.WorkDir,
	},
		cli.WithLogger(logger),
		cli.WithPreflight(diagnostics.NewPreflight(cfg.Diagnostics.Preflight, cfg.Diagnostics.MinFreeMemoryMB)),
	)
}

// pipeline holds a refiner and the resources it owns.
type pipeline struct {
	refiner *refine.Refiner
	runner  *cli.Runner
	skills  *skills.CachedScanner
}

func (p *pipeline) Close() error {
	return p.skills.Close()
}

// newPipeline wires the refinement pipeline from configuration.
func newPipeline(cfg *config.Config, logger *logging.Logger, extra ...refine.Option) (*pipeline, error) {
	prompts, err := service.NewPromptRenderer()
	if err != nil {
		return nil, fmt.Errorf("loading prompt templates: %w", err)
	}
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("compiling workflow schema: %w", err)
	}
	scanner, err := skills.NewCachedScanner(
		skills.NewScanner(cfg.Skills.PersonalDir, cfg.Skills.ProjectDir, skills.WithScannerLogger(logger)),
		cfg.Skills.Watch, logger)
	if err != nil {
		return nil, fmt.Errorf("watching skill directories: %w", err)
	}

	runner := newRunner(cfg, logger)
	opts := []refine.Option{
		refine.WithSchemaLoader(schema.NewFileLoader(logger)),
		refine.WithSkillScanner(scanner),
		refine.WithValidator(validator),
		refine.WithFilter(skills.NewFilter(skills.FilterOptions{
			MaxSkills: cfg.Skills.MaxSkills,
			MinScore:  cfg.Skills.MinScore,
		})),
		refine.WithLogger(logger),
		refine.WithConfig(refine.Config{
			SchemaPath:     cfg.Refine.SchemaPath,
			HistoryWindow:  cfg.Refine.HistoryWindow,
			MaxNestedNodes: cfg.Refine.MaxNestedNodes,
			Timeout:        cfg.Tool.TimeoutDuration(),
		}),
	}
	opts = append(opts, extra...)

	return &pipeline{
		refiner: refine.New(runner, prompts, opts...),
		runner:  runner,
		skills:  scanner,
	}, nil
}

func openHistory(cfg *config.Config) (core.HistoryStore, func(), error) {
	store, err := history.NewStore(cfg.History)
	if err != nil {
		return nil, nil, fmt.Errorf("opening history store: %w", err)
	}
	return store, func() { _ = history.CloseStore(store) }, nil
}

// readJSONFile decodes path into dst. "-" reads stdin.
func readJSONFile(path string, stdin io.Reader, dst interface{}) error {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path) // #nosec G304 -- path is a user-supplied input file
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
