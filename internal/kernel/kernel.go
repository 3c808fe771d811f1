// Package kernel exposes the thin, stable contracts that cmd/pagi and
// cmd/pagid both depend on: self-audit, onboarding, effective mental state,
// consensus, and rollback. Each is a pass-through to the owning component
// package, kept here so the CLI and daemon entry points share one surface
// instead of reaching into internal packages directly.
package kernel

import (
	"context"
	"fmt"

	"pagi/internal/collab"
	"pagi/internal/evolution"
	"pagi/internal/governor"
	"pagi/internal/store"
)

// SelfAuditReport summarizes the store's known inconsistencies: absurdity
// log entries oldest first, then recorded dead ends in code-hash order,
// truncated to the first ten.
type SelfAuditReport struct {
	TopInconsistencies []string
	Count              int
}

// SelfAudit scans the store for anomalies an operator should review.
func SelfAudit(st *store.Store) (SelfAuditReport, error) {
	anomalies, err := st.GetAbsurdityLogSummary()
	if err != nil {
		return SelfAuditReport{}, fmt.Errorf("get absurdity log: %w", err)
	}
	deadEnds, err := st.ListDeadEnds()
	if err != nil {
		return SelfAuditReport{}, fmt.Errorf("list dead ends: %w", err)
	}

	report := SelfAuditReport{}
	for _, a := range anomalies {
		report.TopInconsistencies = append(report.TopInconsistencies, fmt.Sprintf("%s: %s", a.Source, a.Message))
	}
	for _, d := range deadEnds {
		report.TopInconsistencies = append(report.TopInconsistencies, "dead end: "+d.Reason)
	}
	if len(report.TopInconsistencies) > 10 {
		report.TopInconsistencies = report.TopInconsistencies[:10]
	}
	report.Count = len(anomalies) + len(deadEnds)
	return report, nil
}

// OnboardingState is the human-facing snapshot of first-run setup progress.
type OnboardingState struct {
	HasBirthChart  bool
	HasEthosPolicy bool
	HasPeople      bool
	Greeting       string
}

// OnboardingSequence inspects the store for the minimum setup a new
// installation needs and returns a greeting describing what's missing.
func OnboardingSequence(st *store.Store) (OnboardingState, error) {
	state := OnboardingState{}

	if profile, err := st.GetArchetypeProfile(); err == nil && profile.Archetype != "" {
		state.HasBirthChart = true
	}
	if policy, _ := st.GetEthosPhilosophicalPolicy(); policy.ActiveSchool != "" || len(policy.CoreMaxims) > 0 {
		state.HasEthosPolicy = true
	}
	people, err := st.ListPeople()
	if err != nil {
		return OnboardingState{}, fmt.Errorf("list people: %w", err)
	}
	state.HasPeople = len(people) > 0

	switch {
	case !state.HasBirthChart && !state.HasEthosPolicy:
		state.Greeting = "Welcome. Let's set up your birth chart and an ethos policy before we begin."
	case !state.HasBirthChart:
		state.Greeting = "Welcome back. Add a birth chart in KB-01 to enable astro-weather correlation."
	case !state.HasEthosPolicy:
		state.Greeting = "Welcome back. Set an ethos policy so the governor has a philosophical frame to reason from."
	default:
		state.Greeting = "Welcome back."
	}
	return state, nil
}

// GetEffectiveMentalState recomputes the Mental State Governor's fused
// MentalState (Soma + active Shadow anchors + Kardia people) for agentID,
// caching the result so later reads don't re-derive it (§6).
func GetEffectiveMentalState(st *store.Store, agentID string) (governor.MentalState, error) {
	return st.GetEffectiveMentalState(agentID)
}

// RunConsensus is a thin pass-through to the collaboration runner's
// five-phase propose/red-team/gate/approve/apply pipeline.
func RunConsensus(ctx context.Context, runner *collab.Runner, change collab.ProposedChange) (collab.ConsensusResult, error) {
	return runner.RunConsensus(ctx, change)
}

// RollbackSkill is a thin pass-through to the evolution pipeline's rollback.
func RollbackSkill(forge *evolution.Forge, skill string) (store.VersionedPatch, error) {
	return forge.Rollback(skill)
}
