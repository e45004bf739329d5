package orchestrator

import (
	"context"
	"testing"
	"time"

	"planloop/internal/eventbus"
	"planloop/internal/oracle"
	"planloop/internal/planner"
	"planloop/internal/taskrunner"
)

// Each test builds its own oracle.Func that answers by call count: the
// first call is the planner's, later calls are task-runner attempts. To
// keep these tests simple and deterministic, each test constructs a fresh
// oracle tailored to one scenario instead of sharing a generic fixture.

func TestScenario1EndToEndSuccess(t *testing.T) {
	plannerReply := `{"todos":[{"id":"t1","title":"Create file","description":"...","dependencies":[],"requires-doc-search":false}],"complexity":"simple"}`
	taskReply := `{"status":"success","result":"file created","log_entries":[{"level":"info","message":"wrote /a"}]}`

	calls := 0
	o := oracle.Func(func(ctx context.Context, system, user string, opts oracle.Options) (string, error) {
		calls++
		if calls == 1 {
			return plannerReply, nil
		}
		return taskReply, nil
	})

	p := planner.New(o)
	tr := taskrunner.New(o)
	bus := eventbus.New()
	tap := bus.Tap(32)

	orc := New("s1", p, tr, bus, nil)
	summary, err := orc.Execute(context.Background(), "create a file")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.Success || summary.CompletedTasks != 1 || summary.FailedTasks != 0 {
		t.Fatalf("got %+v", summary)
	}

	var kinds []eventbus.Kind
	for {
		select {
		case ev := <-tap:
			kinds = append(kinds, ev.Kind)
		default:
			goto done
		}
	}
done:
	want := []eventbus.Kind{
		eventbus.PlanningStarted,
		eventbus.PlanCreated,
		eventbus.TaskStarted,
		eventbus.TaskCompleted,
		eventbus.ExecutionCompleted,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("got %v, want %v", kinds, want)
		}
	}
}

func TestScenario4TwoTaskContextPassing(t *testing.T) {
	plannerReply := `{"todos":[{"id":"a","dependencies":[]},{"id":"b","dependencies":["a"]}],"complexity":"simple"}`

	var capturedPromptForB string
	calls := 0
	o := oracle.Func(func(ctx context.Context, system, user string, opts oracle.Options) (string, error) {
		calls++
		switch calls {
		case 1:
			return plannerReply, nil
		case 2:
			return `{"status":"success","result":"X=42","log_entries":[]}`, nil
		default:
			capturedPromptForB = user
			return `{"status":"success","result":"used 42","log_entries":[]}`, nil
		}
	})

	p := planner.New(o)
	tr := taskrunner.New(o)
	bus := eventbus.New()
	orc := New("s1", p, tr, bus, nil)

	summary, err := orc.Execute(context.Background(), "two step task")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.CompletedTasks != 2 {
		t.Fatalf("got %+v", summary)
	}
	if !contains(capturedPromptForB, "X=42") {
		t.Fatalf("expected b's prompt to contain X=42, got: %s", capturedPromptForB)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

func TestScenario5CancellationMidTask(t *testing.T) {
	plannerReply := `{"todos":[{"id":"a","dependencies":[]},{"id":"b","dependencies":["a"]}],"complexity":"simple"}`

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	o := oracle.Func(func(ctx context.Context, system, user string, opts oracle.Options) (string, error) {
		calls++
		if calls == 1 {
			return plannerReply, nil
		}
		// Cancel during task a's oracle call.
		cancel()
		return `{"status":"success","result":"X","log_entries":[]}`, nil
	})

	p := planner.New(o)
	tr := taskrunner.New(o)
	bus := eventbus.New()
	tap := bus.Tap(32)
	orc := New("s1", p, tr, bus, nil)

	_, err := orc.Execute(ctx, "two step task")
	if err == nil {
		t.Fatal("expected cancellation error")
	}

	var sawTaskBStarted bool
	for {
		select {
		case ev := <-tap:
			if ev.Kind == eventbus.TaskStarted && ev.Task != nil && ev.Task.ID == "b" {
				sawTaskBStarted = true
			}
		case <-time.After(10 * time.Millisecond):
			goto done
		}
	}
done:
	if sawTaskBStarted {
		t.Fatal("task b should never have started after cancellation during task a")
	}
}

func TestEmptyUserRequestDoesNotCrash(t *testing.T) {
	o := oracle.Func(func(ctx context.Context, system, user string, opts oracle.Options) (string, error) {
		return "not json at all", nil
	})
	p := planner.New(o)
	tr := taskrunner.New(o)
	bus := eventbus.New()
	orc := New("s1", p, tr, bus, nil)

	summary, err := orc.Execute(context.Background(), "")
	if err != nil && summary.TotalTasks == 0 {
		t.Fatalf("execution crashed on empty request: %v", err)
	}
}
