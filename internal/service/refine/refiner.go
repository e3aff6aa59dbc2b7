// Package refine turns a natural-language request into a proposed workflow
// or nested-flow change by prompting an external completion tool.
package refine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/flowcanvas/flowrefine/internal/adapters/cli"
	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/diff"
	"github.com/flowcanvas/flowrefine/internal/logging"
	"github.com/flowcanvas/flowrefine/internal/service"
	"github.com/flowcanvas/flowrefine/internal/skills"
)

// ToolRunner executes the completion tool.
type ToolRunner interface {
	Run(ctx context.Context, req cli.RunRequest) cli.RunResult
	Cancel(ctx context.Context, correlationID string) cli.CancelResult
}

// Outcome is the discriminant of a Result.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeClarification Outcome = "clarification"
	OutcomeError         Outcome = "error"
)

// Observer is notified once per refinement.
type Observer interface {
	ObserveRefinement(mode string, outcome Outcome, code string, elapsed time.Duration)
}

// State is a pipeline stage.
type State string

const (
	StateIdle           State = "idle"
	StateLoadingContext State = "loading_context"
	StatePrompting      State = "prompting"
	StateExecuting      State = "executing"
	StateClassifying    State = "classifying"
	StateClarification  State = "clarification"
	StateParsing        State = "parsing"
	StateValidating     State = "validating"
	StateResolving      State = "resolving"
	StateDone           State = "done"
)

// WorkflowRequest asks for a refinement of a whole workflow.
type WorkflowRequest struct {
	CorrelationID string                    `validate:"required"`
	Workflow      *core.Workflow            `validate:"required"`
	Message       string                    `validate:"required,max=100000"`
	History       *core.ConversationHistory `validate:"required"`
	UseSkills     bool
	// Timeout bounds the tool run. Zero uses the refiner default.
	Timeout time.Duration `validate:"gte=0"`
}

// NestedFlowRequest asks for a refinement of a nested flow inside a workflow.
type NestedFlowRequest struct {
	CorrelationID string                    `validate:"required"`
	WorkflowID    string                    `validate:"required"`
	NestedFlowID  string                    `validate:"required"`
	Flow          *core.NestedFlow          `validate:"required"`
	Message       string                    `validate:"required,max=100000"`
	History       *core.ConversationHistory `validate:"required"`
	UseSkills     bool
	Timeout       time.Duration `validate:"gte=0"`
}

// Result is the outcome of a refinement. Exactly one of Workflow,
// NestedFlow, Message and Error is meaningful, depending on Outcome and mode.
type Result struct {
	Outcome    Outcome               `json:"outcome"`
	Workflow   *core.Workflow        `json:"workflow,omitempty"`
	NestedFlow *core.NestedFlow      `json:"nestedFlow,omitempty"`
	Message    string                `json:"message,omitempty"`
	Error      *core.DomainError     `json:"-"`
	Diff       *diff.Summary         `json:"diff,omitempty"`
	Skills     *skills.ResolveReport `json:"skills,omitempty"`
	Elapsed    time.Duration         `json:"elapsedMs"`
}

// Config tunes the refiner.
type Config struct {
	SchemaPath     string
	HistoryWindow  int
	MaxNestedNodes int
	Timeout        time.Duration
}

// Refiner runs the refinement pipeline.
type Refiner struct {
	runner     ToolRunner
	prompts    *service.PromptRenderer
	classifier *Classifier
	schemas    core.SchemaLoader
	scanner    core.SkillScanner
	validator  core.WorkflowValidator
	filter     *skills.Filter
	observer   Observer
	logger     *logging.Logger
	tracer     trace.Tracer
	validate   *validator.Validate
	cfg        Config
	now        func() time.Time
}

// Option configures a Refiner.
type Option func(*Refiner)

// WithSchemaLoader sets the schema source.
func WithSchemaLoader(l core.SchemaLoader) Option {
	return func(r *Refiner) { r.schemas = l }
}

// WithSkillScanner sets the skill catalogue source.
func WithSkillScanner(s core.SkillScanner) Option {
	return func(r *Refiner) { r.scanner = s }
}

// WithValidator sets the semantic workflow validator.
func WithValidator(v core.WorkflowValidator) Option {
	return func(r *Refiner) { r.validator = v }
}

// WithFilter sets the skill relevance filter.
func WithFilter(f *skills.Filter) Option {
	return func(r *Refiner) {
		if f != nil {
			r.filter = f
		}
	}
}

// WithClassifier sets the output classifier.
func WithClassifier(c *Classifier) Option {
	return func(r *Refiner) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithObserver sets the outcome observer.
func WithObserver(o Observer) Option {
	return func(r *Refiner) { r.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Refiner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracer sets the tracer. The global tracer provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(r *Refiner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithConfig sets tuning parameters.
func WithConfig(cfg Config) Option {
	return func(r *Refiner) { r.cfg = cfg }
}

// WithClock overrides the time source used for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Refiner) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a refiner.
func New(runner ToolRunner, prompts *service.PromptRenderer, opts ...Option) *Refiner {
	r := &Refiner{
		runner:     runner,
		prompts:    prompts,
		classifier: NewClassifier(nil),
		filter:     skills.NewFilter(skills.FilterOptions{}),
		logger:     logging.NewNop(),
		tracer:     otel.Tracer("github.com/flowcanvas/flowrefine/internal/service/refine"),
		validate:   validator.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cancel stops an in-flight refinement by correlation id. Cancelling an
// unknown or finished id is a no-op.
func (r *Refiner) Cancel(ctx context.Context, correlationID string) cli.CancelResult {
	res := r.runner.Cancel(ctx, correlationID)
	r.logger.WithRequest(correlationID).Info("refine: cancel requested", "cancelled", res.Cancelled)
	return res
}

// RefineWorkflow refines a whole workflow. On success or clarification the
// request history gains one round; on error nothing is mutated.
func (r *Refiner) RefineWorkflow(ctx context.Context, req WorkflowRequest) Result {
	mode := WorkflowMode()
	j := job{
		mode:          mode,
		correlationID: req.CorrelationID,
		message:       req.Message,
		history:       req.History,
		useSkills:     req.UseSkills,
		timeout:       req.Timeout,
	}
	if req.Workflow != nil {
		j.workflowID = req.Workflow.ID
		j.baseline = req.Workflow
		j.state = req.Workflow
	}
	return r.execute(ctx, j, req)
}

// RefineNestedFlow refines a nested flow.
func (r *Refiner) RefineNestedFlow(ctx context.Context, req NestedFlowRequest) Result {
	mode := NestedFlowMode(r.cfg.MaxNestedNodes)
	j := job{
		mode:          mode,
		correlationID: req.CorrelationID,
		workflowID:    req.WorkflowID,
		nestedFlowID:  req.NestedFlowID,
		message:       req.Message,
		history:       req.History,
		useSkills:     req.UseSkills,
		timeout:       req.Timeout,
	}
	if req.Flow != nil {
		j.baseline = req.Flow.AsWorkflow(req.NestedFlowID)
		j.state = req.Flow
	}
	return r.execute(ctx, j, req)
}

type job struct {
	mode          Mode
	correlationID string
	workflowID    string
	nestedFlowID  string
	message       string
	history       *core.ConversationHistory
	useSkills     bool
	timeout       time.Duration
	state         interface{}
	baseline      *core.Workflow
}

// run carries per-request pipeline context.
type run struct {
	job   job
	ctx   context.Context
	span  trace.Span
	log   *logging.Logger
	start time.Time
	state State
}

func (p *run) enter(s State) {
	p.log.Debug("refine: state transition", "from", p.state, "to", s)
	p.span.AddEvent(string(s))
	p.state = s
}

func (r *Refiner) execute(ctx context.Context, j job, req interface{}) Result {
	ctx, span := r.tracer.Start(ctx, "refine."+j.mode.Name, trace.WithAttributes(
		attribute.String("flowrefine.mode", j.mode.Name),
		attribute.String("flowrefine.correlation_id", j.correlationID),
		attribute.String("flowrefine.workflow_id", j.workflowID),
		attribute.String("flowrefine.nested_flow_id", j.nestedFlowID),
	))
	defer span.End()

	p := &run{
		job:   j,
		ctx:   ctx,
		span:  span,
		log:   r.logger.WithRequest(j.correlationID).WithTarget(j.workflowID, j.nestedFlowID).WithMode(j.mode.Name),
		start: time.Now(),
		state: StateIdle,
	}

	res := r.pipeline(p, req)
	res.Elapsed = time.Since(p.start)

	code := ""
	if res.Error != nil {
		code = res.Error.Code
		span.SetStatus(codes.Error, res.Error.Message)
		span.SetAttributes(attribute.String("flowrefine.error_code", code))
		if res.Error.Code == core.CodeCancelled {
			p.log.Info("refine: cancelled", "elapsed", res.Elapsed)
		} else {
			p.log.Warn("refine: failed", "code", code, "error", res.Error.Message, "elapsed", res.Elapsed)
		}
	} else {
		p.enter(StateDone)
		p.log.Info("refine: completed", "outcome", res.Outcome, "elapsed", res.Elapsed)
	}
	span.SetAttributes(attribute.String("flowrefine.outcome", string(res.Outcome)))

	if r.observer != nil {
		r.observer.ObserveRefinement(j.mode.Name, res.Outcome, code, res.Elapsed)
	}
	return res
}

func failure(err *core.DomainError) Result {
	return Result{Outcome: OutcomeError, Error: err}
}

func (r *Refiner) pipeline(p *run, req interface{}) Result {
	j := p.job

	if err := r.validateRequest(req); err != nil {
		return failure(err)
	}

	p.enter(StateLoadingContext)
	schema, catalogue, err := r.loadContext(p.ctx, p.log, j)
	if err != nil {
		if p.ctx.Err() != nil {
			return failure(core.ErrCancelled().WithCause(err))
		}
		return failure(core.ErrUnknown(fmt.Sprintf("loading context: %v", err)).WithCause(err))
	}

	p.enter(StatePrompting)
	var relevant []core.SkillReference
	if j.useSkills && catalogue != nil {
		relevant = r.filter.Filter(j.message, *catalogue)
	}
	prompt, err := r.prompts.Build(service.PromptInput{
		Template:      j.mode.Template,
		CurrentState:  j.state,
		History:       j.history,
		Message:       j.message,
		Schema:        schema,
		Skills:        relevant,
		Constraints:   j.mode.Constraints(),
		HistoryWindow: r.cfg.HistoryWindow,
	})
	if err != nil {
		return failure(core.ErrUnknown(fmt.Sprintf("building prompt: %v", err)).WithCause(err))
	}
	p.log.Debug("refine: prompt built", "prompt_length", len(prompt), "skills", len(relevant))

	p.enter(StateExecuting)
	timeout := j.timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	out := r.runner.Run(p.ctx, cli.RunRequest{Prompt: prompt, Timeout: timeout, CorrelationID: j.correlationID})
	if !out.Success {
		return failure(mapRunError(out.Err))
	}

	p.enter(StateClassifying)
	cls, err := r.classifier.Classify(out.Output)
	if err != nil {
		return failure(parseFailure(err))
	}

	if cls.Kind == KindClarification {
		p.enter(StateClarification)
		j.history.AppendRound(j.message, cls.Text)
		return Result{Outcome: OutcomeClarification, Message: cls.Text}
	}

	p.enter(StateParsing)
	if missing := RequireFields(cls.Value, j.mode.RequiredFields); len(missing) > 0 {
		return failure(core.ErrParse("response is missing required fields: "+strings.Join(missing, ", ")).
			WithDetail("missing", missing))
	}
	if j.mode.Name == ModeNestedFlow {
		return r.finishNested(p, cls.Raw)
	}
	return r.finishWorkflow(p, cls.Raw, catalogue)
}

// finishWorkflow decodes, resolves and validates a proposed workflow. A nil
// catalogue means it could not be loaded and skill nodes are left as sent.
func (r *Refiner) finishWorkflow(p *run, raw json.RawMessage, catalogue *core.SkillCatalogue) Result {
	j := p.job
	var wf core.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return failure(core.ErrParse("response is not a workflow: " + err.Error()).WithCause(err))
	}

	p.enter(StateValidating)
	if derr := j.mode.CheckNodes(wf.Nodes); derr != nil {
		return failure(derr)
	}

	var report skills.ResolveReport
	if j.mode.ResolveSkills && catalogue != nil {
		p.enter(StateResolving)
		wf.Nodes, report = skills.Resolve(wf.Nodes, *catalogue)
		if len(report.Missing)+len(report.Unresolved) > 0 {
			p.log.Info("refine: unresolved skill references",
				"missing", report.Missing, "unresolved", report.Unresolved)
		}
	}

	base := j.baseline
	if wf.ID != base.ID {
		p.log.Warn("refine: response changed the workflow id, keeping the original", "proposed_id", wf.ID)
		wf.ID = base.ID
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = base.CreatedAt
	}
	wf.UpdatedAt = r.now()

	if j.mode.SemanticValidation && r.validator != nil {
		if vr := r.validator.Validate(&wf); !vr.Valid {
			msgs := vr.Messages()
			return failure(core.ErrInvalidWorkflow("proposed workflow is invalid: "+strings.Join(msgs, "; ")).
				WithDetail("errors", msgs))
		}
	}

	summary := diff.ComputeWorkflows(base, &wf)
	j.history.AppendRound(j.message, assistantSummary("workflow", summary))
	return Result{Outcome: OutcomeSuccess, Workflow: &wf, Diff: &summary, Skills: &report}
}

func (r *Refiner) finishNested(p *run, raw json.RawMessage) Result {
	j := p.job
	var flow core.NestedFlow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return failure(core.ErrParse("response is not a nested flow: " + err.Error()).WithCause(err))
	}

	p.enter(StateValidating)
	if derr := j.mode.CheckNodes(flow.Nodes); derr != nil {
		return failure(derr)
	}

	summary := diff.ComputeWorkflows(j.baseline, flow.AsWorkflow(j.nestedFlowID))
	j.history.AppendRound(j.message, assistantSummary("nested flow", summary))
	return Result{Outcome: OutcomeSuccess, NestedFlow: &flow, Diff: &summary}
}

// loadContext loads the schema and, when needed, the skill catalogue
// concurrently. The catalogue is always loaded in modes that resolve skill
// nodes, but a scan failure is only fatal when skills are offered to the
// tool; otherwise it is logged and the catalogue comes back nil.
func (r *Refiner) loadContext(ctx context.Context, log *logging.Logger, j job) (*core.Schema, *core.SkillCatalogue, error) {
	var (
		schema    *core.Schema
		catalogue *core.SkillCatalogue
	)
	g, gctx := errgroup.WithContext(ctx)

	if r.schemas != nil {
		g.Go(func() error {
			s, err := r.schemas.LoadSchema(gctx, r.cfg.SchemaPath)
			if err != nil {
				return fmt.Errorf("schema: %w", err)
			}
			schema = s
			return nil
		})
	}
	switch {
	case r.scanner == nil:
		catalogue = &core.SkillCatalogue{}
	case j.useSkills || j.mode.ResolveSkills:
		g.Go(func() error {
			c, err := r.scanner.Scan(gctx)
			if err != nil {
				if !j.useSkills && gctx.Err() == nil {
					log.Warn("refine: skill catalogue unavailable, skill nodes left unresolved", "error", err)
					return nil
				}
				return fmt.Errorf("skill catalogue: %w", err)
			}
			catalogue = &c
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return schema, catalogue, nil
}

func (r *Refiner) validateRequest(req interface{}) *core.DomainError {
	if err := r.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return core.ErrValidation(core.CodeValidationError, "invalid request: "+strings.Join(fields, ", ")).
				WithDetail("fields", fields)
		}
		return core.ErrValidation(core.CodeValidationError, "invalid request: "+err.Error())
	}

	var msg string
	switch v := req.(type) {
	case WorkflowRequest:
		msg = v.Message
	case NestedFlowRequest:
		msg = v.Message
	}
	if strings.TrimSpace(msg) == "" {
		return core.ErrValidation(core.CodeValidationError, "invalid request: message is blank")
	}
	return nil
}

// mapRunError converts a runner failure into its public error.
func mapRunError(e *cli.RunError) *core.DomainError {
	if e == nil {
		return core.ErrUnknown("tool run failed without an error")
	}
	var derr *core.DomainError
	switch e.Kind {
	case cli.KindCommandNotFound:
		cmd, _ := e.Details["command"].(string)
		derr = core.ErrCommandNotFound(cmd)
		derr.Message = e.Message
	case cli.KindTimeout:
		derr = core.ErrTimeout(e.Message)
	case cli.KindCancelled:
		derr = core.ErrCancelled()
	default:
		derr = core.ErrUnknown(e.Message)
	}
	for k, v := range e.Details {
		derr.WithDetail(k, v)
	}
	return derr.WithCause(e)
}

func parseFailure(err error) *core.DomainError {
	derr := core.ErrParse(err.Error()).WithCause(err)
	var perr *ParseError
	if errors.As(err, &perr) && perr.Snippet != "" {
		derr.WithDetail("snippet", perr.Snippet)
	}
	return derr
}

// assistantSummary is the assistant message recorded in history for an
// accepted proposal.
func assistantSummary(target string, s diff.Summary) string {
	if !s.HasChanges() {
		return fmt.Sprintf("Proposed an updated %s with no changes.", target)
	}
	return fmt.Sprintf("Proposed an updated %s: %s.", target, s.Headline())
}
