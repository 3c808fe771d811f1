package collab

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

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

const cleanCode = `
package main

import "strings"

func RunSkill(input string) (string, error) {
	return strings.ToUpper(input), nil
}
`

const secretLeakCode = `
package main

func RunSkill(input string) (string, error) {
	apiKey := "sk-abcdef0123456789"
	return apiKey, nil
}
`

type stubApproval struct {
	approve bool
	err     error
}

func (s stubApproval) RequestApproval(ctx context.Context, change ProposedChange) (bool, error) {
	return s.approve, s.err
}

type stubBuilder struct{ err error }

func (s stubBuilder) Build(ctx context.Context, path string) error { return s.err }

type stubLLM struct {
	out string
	err error
}

func (s stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return s.out, s.err
}

func TestRunConsensusApprovesCleanPatchWithoutApprovalGate(t *testing.T) {
	st := testStore(t)
	r := NewRunner(st, nil, nil, nil, false)
	result, err := r.RunConsensus(context.Background(), ProposedChange{SkillID: "greeter", Code: cleanCode, Rationale: "v1"})
	if err != nil {
		t.Fatalf("RunConsensus: %v", err)
	}
	if !result.Approved {
		t.Fatalf("expected approval, got %+v", result)
	}
	if result.Version.Status != "applied" || !result.Version.IsActive {
		t.Fatalf("expected applied+active version, got %+v", result.Version)
	}
}

func TestRunConsensusRejectsSecretLeak(t *testing.T) {
	st := testStore(t)
	r := NewRunner(st, nil, nil, nil, false)
	result, err := r.RunConsensus(context.Background(), ProposedChange{SkillID: "leaky", Code: secretLeakCode})
	if err != nil {
		t.Fatalf("RunConsensus: %v", err)
	}
	if result.Approved {
		t.Fatal("expected rejection for secret leak")
	}
	if result.Verdict.OverallSeverity != SeverityCritical {
		t.Fatalf("expected critical severity, got %v", result.Verdict.OverallSeverity)
	}
}

func TestRunConsensusRecordsDeadEndAndShortCircuitsResubmission(t *testing.T) {
	st := testStore(t)
	r := NewRunner(st, nil, nil, nil, false)
	change := ProposedChange{SkillID: "leaky", Code: secretLeakCode}

	if _, err := r.RunConsensus(context.Background(), change); err != nil {
		t.Fatalf("first RunConsensus: %v", err)
	}
	result, err := r.RunConsensus(context.Background(), change)
	if err != nil {
		t.Fatalf("second RunConsensus: %v", err)
	}
	if result.Approved {
		t.Fatal("expected dead-end rejection on resubmission")
	}
	if result.Reason == "" {
		t.Fatal("expected a dead-end reason")
	}
}

func TestRunConsensusRequiresApprovalBridgeWhenGateEnabled(t *testing.T) {
	st := testStore(t)
	r := NewRunner(st, nil, nil, nil, true)
	if _, err := r.RunConsensus(context.Background(), ProposedChange{SkillID: "greeter", Code: cleanCode}); err == nil {
		t.Fatal("expected error for missing approval bridge")
	}
}

func TestRunConsensusDeniedByHumanOperator(t *testing.T) {
	st := testStore(t)
	r := NewRunner(st, nil, nil, stubApproval{approve: false}, true)
	result, err := r.RunConsensus(context.Background(), ProposedChange{SkillID: "greeter", Code: cleanCode})
	if err != nil {
		t.Fatalf("RunConsensus: %v", err)
	}
	if result.Approved {
		t.Fatal("expected denial by human operator")
	}
}

func TestRunConsensusApprovedAfterHumanApproval(t *testing.T) {
	st := testStore(t)
	r := NewRunner(st, nil, nil, stubApproval{approve: true}, true)
	result, err := r.RunConsensus(context.Background(), ProposedChange{SkillID: "greeter", Code: cleanCode})
	if err != nil {
		t.Fatalf("RunConsensus: %v", err)
	}
	if !result.Approved {
		t.Fatalf("expected approval, got %+v", result)
	}
}

func TestRunConsensusBuildFailureRollsBack(t *testing.T) {
	st := testStore(t)
	r := NewRunner(st, nil, stubBuilder{err: errors.New("compile error")}, nil, false)
	result, err := r.RunConsensus(context.Background(), ProposedChange{SkillID: "greeter", Code: cleanCode, FilePath: "greeter.go"})
	if err != nil {
		t.Fatalf("RunConsensus: %v", err)
	}
	if result.Approved {
		t.Fatal("expected rejection on build failure")
	}
}

func TestRunConsensusLLMReviewFallsBackToHeuristicOnError(t *testing.T) {
	st := testStore(t)
	r := NewRunner(st, stubLLM{err: errors.New("provider down")}, nil, nil, false)
	result, err := r.RunConsensus(context.Background(), ProposedChange{SkillID: "greeter", Code: cleanCode})
	if err != nil {
		t.Fatalf("RunConsensus: %v", err)
	}
	if !result.Approved {
		t.Fatalf("expected fallback heuristic approval, got %+v", result)
	}
	if result.Verdict.ReviewerModel != "heuristic" {
		t.Fatalf("expected heuristic reviewer after LLM failure, got %q", result.Verdict.ReviewerModel)
	}
}

func TestRunConsensusUsesLLMVerdictWhenAvailable(t *testing.T) {
	st := testStore(t)
	r := NewRunner(st, stubLLM{out: "PASS looks fine"}, nil, nil, false)
	result, err := r.RunConsensus(context.Background(), ProposedChange{SkillID: "greeter", Code: cleanCode})
	if err != nil {
		t.Fatalf("RunConsensus: %v", err)
	}
	if result.Verdict.ReviewerModel != "llm" {
		t.Fatalf("expected llm reviewer, got %q", result.Verdict.ReviewerModel)
	}
	if !result.Approved {
		t.Fatal("expected approval on PASS verdict")
	}
}

func TestRunConsensusDeactivatesPriorVersion(t *testing.T) {
	st := testStore(t)
	r := NewRunner(st, nil, nil, nil, false)
	ctx := context.Background()

	if _, err := r.RunConsensus(ctx, ProposedChange{SkillID: "greeter", Code: cleanCode, Rationale: "v1"}); err != nil {
		t.Fatalf("apply v1: %v", err)
	}
	v2 := `
package main

import "strings"

func RunSkill(input string) (string, error) {
	return strings.ToLower(input), nil
}
`
	if _, err := r.RunConsensus(ctx, ProposedChange{SkillID: "greeter", Code: v2, Rationale: "v2"}); err != nil {
		t.Fatalf("apply v2: %v", err)
	}

	versions, err := st.ListVersions("greeter")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	activeCount := 0
	for _, v := range versions {
		if v.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly 1 active version, got %d across %+v", activeCount, versions)
	}
}
