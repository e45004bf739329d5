package planner

import (
	"context"
	"testing"

	"planloop/internal/oracle"
)

func fixedOracle(reply string) oracle.Oracle {
	return oracle.Func(func(ctx context.Context, system, user string, opts oracle.Options) (string, error) {
		return reply, nil
	})
}

func TestPlanHappyPath(t *testing.T) {
	reply := `{"todos":[{"id":"t1","title":"Create file","description":"make a file","dependencies":[],"requires-doc-search":false}],"complexity":"simple"}`
	p := New(fixedOracle(reply))

	plan, err := p.Plan(context.Background(), "create a file")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Tasks) != 1 || plan.Tasks[0].ID != "t1" || plan.Complexity != "simple" {
		t.Fatalf("got %+v", plan)
	}
}

func TestPlanReordersOutOfOrderDependency(t *testing.T) {
	reply := `{"todos":[{"id":"b","dependencies":["a"]},{"id":"a","dependencies":[]}],"complexity":"moderate"}`
	p := New(fixedOracle(reply))

	plan, err := p.Plan(context.Background(), "do two things")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.Reordered {
		t.Fatal("expected Reordered=true")
	}
	if plan.Tasks[0].ID != "a" || plan.Tasks[1].ID != "b" {
		t.Fatalf("got order %v", []string{plan.Tasks[0].ID, plan.Tasks[1].ID})
	}
}

func TestPlanCyclicDependencyFallsBackToDegenerate(t *testing.T) {
	reply := `{"todos":[{"id":"a","dependencies":["b"]},{"id":"b","dependencies":["a"]}],"complexity":"simple"}`
	p := New(fixedOracle(reply))

	plan, err := p.Plan(context.Background(), "circular request")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Tasks) != 1 || !plan.Tasks[0].RequiresDocSearch {
		t.Fatalf("expected degenerate plan, got %+v", plan)
	}
	if plan.Tasks[0].Description != "circular request" {
		t.Fatalf("got description %q", plan.Tasks[0].Description)
	}
}

func TestPlanMalformedOutputFallsBackToDegenerate(t *testing.T) {
	p := New(fixedOracle("not json at all"))

	plan, err := p.Plan(context.Background(), "do something")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Tasks) != 1 || plan.Tasks[0].Description != "do something" {
		t.Fatalf("expected degenerate plan, got %+v", plan)
	}
}

func TestPlanEmptyUserRequestDoesNotCrash(t *testing.T) {
	p := New(fixedOracle("not json at all"))
	plan, err := p.Plan(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Tasks) != 1 {
		t.Fatalf("got %+v", plan)
	}
}
