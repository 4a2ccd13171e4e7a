package provisioning

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Step is one unit of the deployment pipeline. Run returns the identifiers
// it produced; they are persisted on the deployment record and replayed into
// State on resume.
type Step interface {
	Name() string
	// Needs lists the steps whose outputs this step consumes. Ordering is
	// fixed, so this is a consistency check rather than a scheduler input.
	Needs() []string
	Run(*Context) (map[string]string, error)
}

// Restorer is implemented by steps that can rebuild in-memory State from the
// resources a previous run persisted. The pipeline calls it instead of Run
// when the step is already completed.
type Restorer interface {
	Restore(*Context, map[string]string)
}

// ErrPaused is returned when a requested pause takes effect between steps.
var ErrPaused = errors.New("deployment paused")

// Pipeline executes steps in order with checkpointing after every state
// transition.
type Pipeline struct {
	steps  []Step
	paused atomic.Bool
}

// NewPipeline validates step ordering: every declared need must appear
// earlier in the list.
func NewPipeline(steps []Step) (*Pipeline, error) {
	seen := make(map[string]bool, len(steps))
	for _, step := range steps {
		for _, need := range step.Needs() {
			if !seen[need] {
				return nil, fmt.Errorf("step %q needs %q, which does not precede it", step.Name(), need)
			}
		}
		if seen[step.Name()] {
			return nil, fmt.Errorf("duplicate step %q", step.Name())
		}
		seen[step.Name()] = true
	}
	return &Pipeline{steps: steps}, nil
}

// RequestPause asks the pipeline to stop before the next step boundary. The
// step currently running always finishes; partial step execution is never
// checkpointed as progress.
func (p *Pipeline) RequestPause() {
	p.paused.Store(true)
}

// Run walks the steps in order. Completed steps are skipped and their
// persisted outputs replayed into State; everything else runs, with the
// deployment record saved after every transition.
func (p *Pipeline) Run(ctx *Context) error {
	d := ctx.Deployment
	start := time.Now()
	total := len(p.steps)

	for i, step := range p.steps {
		name := step.Name()

		if d.Completed(name) {
			if r, ok := step.(Restorer); ok {
				r.Restore(ctx, d.Step(name).Resources)
			}
			ctx.Observer.Event(Event{Type: EventStepSkipped, Step: name,
				Message: "already completed, skipping"})
			continue
		}

		if p.paused.Load() {
			ctx.Observer.Event(Event{Type: EventRunPaused,
				Message: fmt.Sprintf("paused before step %s", name)})
			return ErrPaused
		}

		if err := d.MarkInProgress(name); err != nil {
			return err
		}
		if err := ctx.Store.Save(ctx, d); err != nil {
			return fmt.Errorf("failed to checkpoint before step %s: %w", name, err)
		}
		ctx.Observer.Event(Event{Type: EventStepStarted, Step: name,
			Message: fmt.Sprintf("starting (%d/%d)", i+1, total)})

		stepStart := time.Now()
		resources, runErr := step.Run(ctx)
		elapsed := time.Since(stepStart)

		if runErr != nil {
			observeStep(name, "failure", elapsed)
			if markErr := d.MarkFailed(name, runErr); markErr != nil {
				return markErr
			}
			if saveErr := ctx.Store.Save(ctx, d); saveErr != nil {
				ctx.Log.Error(saveErr, "failed to checkpoint step failure", "step", name)
			}
			ctx.Observer.Event(Event{Type: EventStepFailed, Step: name,
				Message: fmt.Sprintf("failed after %v: %v", elapsed.Round(time.Millisecond), runErr)})
			return fmt.Errorf("step %s failed: %w", name, runErr)
		}

		observeStep(name, "success", elapsed)
		if err := d.MarkCompleted(name, resources); err != nil {
			return err
		}
		if err := ctx.Store.Save(ctx, d); err != nil {
			return fmt.Errorf("failed to checkpoint after step %s: %w", name, err)
		}
		ctx.Observer.Event(Event{Type: EventStepCompleted, Step: name,
			Message: fmt.Sprintf("completed in %v", elapsed.Round(time.Millisecond))})
	}

	ctx.Observer.Event(Event{Type: EventRunCompleted,
		Message: fmt.Sprintf("deployment completed in %v", time.Since(start).Round(time.Second))})
	return nil
}
