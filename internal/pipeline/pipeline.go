package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/leakbox/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, each receiving the Delivery as left by
// the previous steps.
type Step interface {
	// Do executes the step against the delivery.
	Do(ctx context.Context, d *model.Delivery) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// optionalStep marks a step whose failure does not stop the pipeline.
type optionalStep struct {
	Step
}

// Optional wraps step so that its failure is recorded and skipped.
func Optional(step Step) Step {
	return optionalStep{Step: step}
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// continueOnError makes every step behave as Optional.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a non-optional step fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
// Cancellation is checked between steps; steps handle their own timeouts.
func (p *Pipeline) Execute(ctx context.Context, d *model.Delivery) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"rcpt", d.Recipient,
		)

		if err := step.Do(ctx, d); err != nil {
			_, optional := step.(optionalStep)
			p.logger.Error("step failed",
				"step", step.Name(),
				"rcpt", d.Recipient,
				"error", err,
			)
			d.Errors = append(d.Errors, err)

			if !optional && !p.continueOnError {
				return err
			}
		}

		d.Steps = append(d.Steps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
