package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/leakbox/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, d *model.Delivery) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, d *model.Delivery) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, d)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func newTestDelivery() *model.Delivery {
	return model.NewDelivery("news@shop.example.com", "apple.banana.0001@mail.example.org", []byte("Subject: hi\r\n\r\nbody"))
}

func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()

		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))

		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, Optional(&mockStep{name: "third"}))

	names := p.StepNames()
	expected := []string{"first", "second", "third"}
	if len(names) != len(expected) {
		t.Fatalf("got %d steps, expected %d", len(names), len(expected))
	}
	for i, name := range names {
		if name != expected[i] {
			t.Errorf("step %d: got %q, expected %q", i, name, expected[i])
		}
	}
}

func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		executionOrder := make([]string, 0)
		record := func(name string) func(context.Context, *model.Delivery) error {
			return func(context.Context, *model.Delivery) error {
				executionOrder = append(executionOrder, name)
				return nil
			}
		}

		p := New()
		p.AddStep(&mockStep{name: "step-1", doFunc: record("step-1")})
		p.AddStep(&mockStep{name: "step-2", doFunc: record("step-2")})

		d := newTestDelivery()
		if err := p.Execute(context.Background(), d); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(executionOrder) != 2 || executionOrder[0] != "step-1" || executionOrder[1] != "step-2" {
			t.Errorf("wrong execution order: %v", executionOrder)
		}
		if len(d.Steps) != 2 {
			t.Errorf("expected 2 recorded steps, got %v", d.Steps)
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		expectedErr := errors.New("step failed")
		next := &mockStep{name: "should-not-run"}

		p := New()
		p.AddStep(&mockStep{
			name: "failing-step",
			doFunc: func(context.Context, *model.Delivery) error {
				return expectedErr
			},
		})
		p.AddStep(next)

		d := newTestDelivery()
		err := p.Execute(context.Background(), d)

		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if next.callCount != 0 {
			t.Error("second step should not have been called")
		}
		if len(d.Errors) != 1 {
			t.Errorf("expected 1 recorded error, got %d", len(d.Errors))
		}
	})

	t.Run("optional step failure does not stop the pipeline", func(t *testing.T) {
		t.Parallel()

		next := &mockStep{name: "should-run"}

		p := New()
		p.AddStep(Optional(&mockStep{
			name: "best-effort",
			doFunc: func(context.Context, *model.Delivery) error {
				return errors.New("disk full")
			},
		}))
		p.AddStep(next)

		d := newTestDelivery()
		if err := p.Execute(context.Background(), d); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
		if next.callCount != 1 {
			t.Error("second step should have been called")
		}
		if len(d.Errors) != 1 {
			t.Errorf("expected the optional failure to be recorded, got %v", d.Errors)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		next := &mockStep{name: "should-run"}

		p := New(WithContinueOnError(true))
		p.AddStep(&mockStep{
			name: "failing-step",
			doFunc: func(context.Context, *model.Delivery) error {
				return errors.New("step failed")
			},
		})
		p.AddStep(next)

		if err := p.Execute(context.Background(), newTestDelivery()); err != nil {
			t.Errorf("expected nil error with continueOnError, got %v", err)
		}
		if next.callCount != 1 {
			t.Error("second step should have been called")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "should-not-run"}
		p := New()
		p.AddStep(step)

		err := p.Execute(ctx, newTestDelivery())

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("step should not have been called")
		}
	})
}
