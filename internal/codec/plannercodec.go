package codec

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PlannerTodo mirrors one entry of the oracle's `todos` array in the
// planner wire format defined in spec §4.3:
// {todos: [{id,title,description,dependencies,requires-doc-search}], complexity}.
type PlannerTodo struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Dependencies      []string `json:"dependencies"`
	RequiresDocSearch bool     `json:"requires-doc-search"`
}

// PlannerOutput is the planner codec's typed decode of the oracle's
// response, before planner.go's DAG validation and normalization run.
type PlannerOutput struct {
	Todos      []PlannerTodo `json:"todos"`
	Complexity string        `json:"complexity"`
}

// ParsePlannerOutput applies the same liberal-parse discipline as
// ParseVerdict (strip fencing, locate balanced object, decode) but against
// the planner's distinct schema, per spec §4.3 step 1 ("a dedicated
// planner codec, similar discipline to §4.1 but a different schema").
func ParsePlannerOutput(text string) (*PlannerOutput, error) {
	stripped := stripFences(text)
	span, ok := findBalancedObject(stripped)
	if !ok {
		return nil, &MalformedVerdict{Excerpt: excerpt(text)}
	}

	var out PlannerOutput
	if err := json.Unmarshal([]byte(span), &out); err != nil {
		return nil, &MalformedVerdict{Excerpt: excerpt(span)}
	}

	if len(out.Todos) == 0 {
		return nil, &InvalidSchema{Reason: "todos must be non-empty", Excerpt: excerpt(span)}
	}
	switch out.Complexity {
	case "simple", "moderate", "complex":
	default:
		return nil, &InvalidSchema{Reason: fmt.Sprintf("unknown complexity %q", out.Complexity), Excerpt: excerpt(span)}
	}
	seen := make(map[string]bool, len(out.Todos))
	for _, t := range out.Todos {
		if strings.TrimSpace(t.ID) == "" {
			return nil, &InvalidSchema{Reason: "todo with empty id", Excerpt: excerpt(span)}
		}
		if seen[t.ID] {
			return nil, &InvalidSchema{Reason: fmt.Sprintf("duplicate todo id %q", t.ID), Excerpt: excerpt(span)}
		}
		seen[t.ID] = true
	}

	return &out, nil
}
