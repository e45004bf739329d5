// Package approval implements the optional Approval Gate extension point
// (spec §4.6): a pluggable human-confirmation collaborator the
// Orchestrator consults on the plan and on risky tasks. Absent by
// default — when the Orchestrator's Gate field is nil, every approval is
// implicit-approve (spec §9 open question 3).
//
// There is no teacher precedent for a human-approval gate specifically;
// the callback shape is adapted from the clarify func(string) (string,
// error) pattern in the teacher's internal/roles/perceiver/perceiver.go,
// generalized from a single clarification prompt into the two-callback
// contract spec §4.6 defines.
package approval

import (
	"context"

	"planloop/internal/schema"
)

// Gate exposes two callbacks to the Orchestrator. Implementations may
// defer implementing one or both by always returning ApprovalApprove.
type Gate interface {
	// ApprovePlan is consulted once, after the plan is constructed and
	// before execution starts.
	ApprovePlan(ctx context.Context, plan schema.Plan, userRequest string) (schema.ApprovalVerdict, error)

	// ApproveTask is consulted once per task whose risk classification is
	// at or above the Orchestrator's threshold.
	ApproveTask(ctx context.Context, task schema.Task, risk schema.RiskLevel, taskContext string) (schema.ApprovalVerdict, error)
}

// CallbackGate adapts two plain functions to the Gate interface — the
// shape a caller embedding this module as a library will most often want,
// rather than defining a named type per deployment.
type CallbackGate struct {
	OnApprovePlan func(ctx context.Context, plan schema.Plan, userRequest string) (schema.ApprovalVerdict, error)
	OnApproveTask func(ctx context.Context, task schema.Task, risk schema.RiskLevel, taskContext string) (schema.ApprovalVerdict, error)
}

// ApprovePlan implements Gate. A nil OnApprovePlan implicit-approves.
func (g CallbackGate) ApprovePlan(ctx context.Context, plan schema.Plan, userRequest string) (schema.ApprovalVerdict, error) {
	if g.OnApprovePlan == nil {
		return schema.ApprovalApprove, nil
	}
	return g.OnApprovePlan(ctx, plan, userRequest)
}

// ApproveTask implements Gate. A nil OnApproveTask implicit-approves.
func (g CallbackGate) ApproveTask(ctx context.Context, task schema.Task, risk schema.RiskLevel, taskContext string) (schema.ApprovalVerdict, error) {
	if g.OnApproveTask == nil {
		return schema.ApprovalApprove, nil
	}
	return g.OnApproveTask(ctx, task, risk, taskContext)
}
