// Package pipeline runs staged generation over a fixed task DAG.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/logger"
	"github.com/kailas-cloud/qanoneed/internal/metrics"
)

// Policy decides what Run returns after a stage fails.
type Policy string

// Failure policies.
const (
	PolicyFail        Policy = "fail"
	PolicyLastSuccess Policy = "last_success"
	PolicyDirect      Policy = "direct"
)

// ParsePolicy maps a config value to a Policy. Empty means PolicyFail.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.TrimSpace(s)); p {
	case "":
		return PolicyFail, nil
	case PolicyFail, PolicyLastSuccess, PolicyDirect:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown failure policy %q", domain.ErrInvalidInput, s)
	}
}

// Engine executes descriptors one task at a time.
type Engine struct {
	gen         domain.Generator
	policy      Policy
	temperature *float32
	maxTokens   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithTemperature sets the sampling temperature of every stage call.
func WithTemperature(t float32) Option {
	return func(e *Engine) { e.temperature = domain.Temperature(t) }
}

// WithMaxTokens caps the completion length of every stage call.
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// NewEngine creates an engine. An empty policy means PolicyFail.
func NewEngine(gen domain.Generator, policy Policy, opts ...Option) *Engine {
	if policy == "" {
		policy = PolicyFail
	}
	e := &Engine{gen: gen, policy: policy}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Policy returns the configured failure policy.
func (e *Engine) Policy() Policy { return e.policy }

// Run executes d in topological order. Each task gets the outputs of its
// dependencies. The first failure stops the run; dependents of a failed
// task stay pending.
func (e *Engine) Run(ctx context.Context, d Descriptor, in Input) (Result, error) {
	runID := uuid.NewString()
	ctx = logger.WithFields(ctx, zap.String("run_id", runID), zap.String("pipeline", d.Name()))
	log := logger.FromContext(ctx)

	tasks := d.Order()
	states := make(map[TaskID]TaskState, len(tasks))
	outputs := make(map[TaskID]StageOutput, len(tasks))
	done := make([]StageOutput, 0, len(tasks))
	for _, t := range tasks {
		states[t.ID] = StatePending
	}

	log.Info("pipeline started", zap.Int("tasks", len(tasks)))
	start := time.Now()

	for _, t := range tasks {
		if err := ready(t, states); err != nil {
			return e.fail(ctx, d, in, done, t.Role, err)
		}

		states[t.ID] = StateRunning
		stageIn := in
		stageIn.Deps = make([]StageOutput, 0, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			stageIn.Deps = append(stageIn.Deps, outputs[dep])
		}

		out, err := e.runStage(ctx, t, stageIn)
		if err != nil {
			states[t.ID] = StateFailed
			return e.fail(ctx, d, in, done, t.Role, err)
		}
		states[t.ID] = StateSucceeded
		outputs[t.ID] = out
		done = append(done, out)
	}

	metrics.PipelineRunsTotal.WithLabelValues(d.Name(), "ok").Inc()
	log.Info("pipeline finished", zap.Duration("duration", time.Since(start)))
	return Stages(done...), nil
}

func ready(t Task, states map[TaskID]TaskState) error {
	for _, dep := range t.DependsOn {
		if states[dep] != StateSucceeded {
			return fmt.Errorf("dependency %s is %s", dep, states[dep])
		}
	}
	return nil
}

func (e *Engine) runStage(ctx context.Context, t Task, in Input) (StageOutput, error) {
	ctx = logger.WithFields(ctx, zap.String("role", t.Role.String()), zap.String("task", string(t.ID)))
	log := logger.FromContext(ctx)
	log.Debug("stage started")
	start := time.Now()

	res, err := e.gen.Generate(ctx, domain.GenerationRequest{
		System:      t.Role.System(),
		Prompt:      t.Role.Prompt(t, in),
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err == nil {
		err = t.Role.Validate(res.Text)
	}

	state := StateSucceeded
	if err != nil {
		state = StateFailed
	}
	dur := time.Since(start)
	metrics.PipelineStageDuration.WithLabelValues(t.Role.String(), state.String()).Observe(dur.Seconds())

	if err != nil {
		log.Warn("stage failed", zap.Duration("duration", dur), zap.Error(err))
		return StageOutput{}, err
	}
	log.Debug("stage finished", zap.Duration("duration", dur), zap.Int("tokens", res.TotalTokens))
	return StageOutput{TaskID: t.ID, Role: t.Role, Raw: strings.TrimSpace(res.Text)}, nil
}

func (e *Engine) fail(ctx context.Context, d Descriptor, in Input, done []StageOutput, role Role, cause error) (Result, error) {
	stageErr := domain.NewStageError(role.String(), cause)
	log := logger.FromContext(ctx)

	switch e.policy {
	case PolicyLastSuccess:
		if len(done) > 0 {
			last := done[len(done)-1]
			log.Warn("pipeline degraded to last successful stage",
				zap.String("stage", last.Role.String()), zap.Error(stageErr))
			metrics.PipelineRunsTotal.WithLabelValues(d.Name(), "degraded").Inc()
			r := Raw(last.Raw)
			r.Degraded = true
			return r, nil
		}
	case PolicyDirect:
		if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
			break
		}
		res, err := e.gen.Generate(ctx, domain.GenerationRequest{
			System:      RoleWriter.System(),
			Prompt:      DirectPrompt(in),
			Temperature: e.temperature,
			MaxTokens:   e.maxTokens,
		})
		if err == nil && strings.TrimSpace(res.Text) != "" {
			log.Warn("pipeline degraded to direct answer", zap.Error(stageErr))
			metrics.PipelineRunsTotal.WithLabelValues(d.Name(), "degraded").Inc()
			r := Text(strings.TrimSpace(res.Text))
			r.Degraded = true
			return r, nil
		}
		if err != nil {
			log.Warn("direct fallback failed", zap.Error(err))
		}
	}

	metrics.PipelineRunsTotal.WithLabelValues(d.Name(), "error").Inc()
	log.Error("pipeline failed", zap.Error(stageErr))
	return Result{}, stageErr
}
