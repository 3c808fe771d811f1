package kernel

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pagi/internal/collab"
	"pagi/internal/evolution"
	"pagi/internal/manifest"
	"pagi/internal/store"
	"pagi/internal/vault"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	v, err := vault.New(make([]byte, 32))
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	st, err := store.Open(filepath.Join(t.TempDir(), "kernel.db"), v)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOnboardingSequenceFreshStoreNeedsEverything(t *testing.T) {
	st := testStore(t)
	state, err := OnboardingSequence(st)
	if err != nil {
		t.Fatalf("OnboardingSequence: %v", err)
	}
	if state.HasBirthChart || state.HasEthosPolicy {
		t.Fatalf("expected a fresh store to have nothing configured, got %+v", state)
	}
	if state.Greeting == "" {
		t.Fatal("expected a non-empty greeting")
	}
}

func TestOnboardingSequenceDetectsConfiguredProfile(t *testing.T) {
	st := testStore(t)
	if err := st.SetArchetypeProfile(store.ArchetypeProfile{Archetype: "pisces"}); err != nil {
		t.Fatalf("SetArchetypeProfile: %v", err)
	}
	if err := st.SetEthosPolicy(store.EthosPolicy{ActiveSchool: "custom", CoreMaxims: []string{"be gentle"}}); err != nil {
		t.Fatalf("SetEthosPolicy: %v", err)
	}

	state, err := OnboardingSequence(st)
	if err != nil {
		t.Fatalf("OnboardingSequence: %v", err)
	}
	if !state.HasBirthChart || !state.HasEthosPolicy {
		t.Fatalf("expected configured profile to be detected, got %+v", state)
	}
	if state.Greeting != "Welcome back." {
		t.Fatalf("expected plain welcome-back greeting, got %q", state.Greeting)
	}
}

func TestSelfAuditCountsAnomaliesAndDeadEnds(t *testing.T) {
	st := testStore(t)
	if err := st.LogConnectionAnomaly(1000, "test", "something odd"); err != nil {
		t.Fatalf("LogConnectionAnomaly: %v", err)
	}
	if err := st.RecordDeadEnd(store.DeadEndEntry{CodeHash: "abc", Reason: "lethal", TimestampMs: 1000}); err != nil {
		t.Fatalf("RecordDeadEnd: %v", err)
	}

	report, err := SelfAudit(st)
	if err != nil {
		t.Fatalf("SelfAudit: %v", err)
	}
	if report.Count != 2 {
		t.Fatalf("expected count 2, got %d", report.Count)
	}
	want := []string{"test: something odd", "dead end: lethal"}
	if diff := cmp.Diff(want, report.TopInconsistencies); diff != "" {
		t.Fatalf("unexpected inconsistency list (-want +got):\n%s", diff)
	}
}

// TestGetEffectiveMentalStateAppliesBioGate mirrors spec.md's BioGate
// scenario: a low-sleep, low-readiness Soma reading must flow through the
// governor and surface as a Supportive-Tone grace override.
func TestGetEffectiveMentalStateAppliesBioGate(t *testing.T) {
	st := testStore(t)
	if err := st.SetSomaState(1000, store.SomaState{SleepHours: 4.0, ReadinessScore: 30}); err != nil {
		t.Fatalf("SetSomaState: %v", err)
	}
	got, err := GetEffectiveMentalState(st, "default")
	if err != nil {
		t.Fatalf("GetEffectiveMentalState: %v", err)
	}
	if got.GraceMultiplier != 1.6 {
		t.Fatalf("expected grace multiplier 1.6, got %f", got.GraceMultiplier)
	}
	if !got.HasPhysicalLoadAdjustment {
		t.Fatal("expected physical-load adjustment to fire")
	}
}

func TestRunConsensusAndRollbackSkillPassThrough(t *testing.T) {
	st := testStore(t)
	runner := collab.NewRunner(st, nil, nil, nil, false)

	code := `
package main

import "strings"

func RunSkill(input string) (string, error) {
	return strings.ToUpper(input), nil
}
`
	result, err := RunConsensus(context.Background(), runner, collab.ProposedChange{SkillID: "greeter", Code: code, Rationale: "v1"})
	if err != nil {
		t.Fatalf("RunConsensus: %v", err)
	}
	if !result.Approved {
		t.Fatalf("expected approval, got %+v", result)
	}

	v2 := `
package main

import "strings"

func RunSkill(input string) (string, error) {
	return strings.ToLower(input), nil
}
`
	if _, err := RunConsensus(context.Background(), runner, collab.ProposedChange{SkillID: "greeter", Code: v2, Rationale: "v2"}); err != nil {
		t.Fatalf("RunConsensus v2: %v", err)
	}

	forge := evolution.NewForge(st, manifest.NewRegistry(), nil, "")
	rolledBackTo, err := RollbackSkill(forge, "greeter")
	if err != nil {
		t.Fatalf("RollbackSkill: %v", err)
	}
	if rolledBackTo.Reason != "v1" {
		t.Fatalf("expected rollback to v1, got %+v", rolledBackTo)
	}
}
