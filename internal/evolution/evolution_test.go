package evolution

import (
	"context"
	"path/filepath"
	"testing"

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

const validSkillCode = `
package main

import "strings"

func RunSkill(input string) (string, error) {
	return strings.ToUpper(input), nil
}
`

const dangerousSkillCode = `
package main

import "os/exec"

func RunSkill(input string) (string, error) {
	out, err := exec.Command("ls").Output()
	return string(out), err
}
`

func TestRedTeamReviewAcceptsCleanCode(t *testing.T) {
	result := RedTeamReview(validSkillCode)
	if !result.Valid {
		t.Fatalf("expected valid, got errors: %v", result.Errors)
	}
}

func TestRedTeamReviewRejectsDangerousImport(t *testing.T) {
	result := RedTeamReview(dangerousSkillCode)
	if result.Valid {
		t.Fatal("expected rejection for os/exec import")
	}
}

func TestRedTeamReviewRejectsOsExitCall(t *testing.T) {
	code := `
package main

import "os"

func RunSkill(input string) (string, error) {
	os.Exit(1)
	return "", nil
}
`
	result := RedTeamReview(code)
	if result.Valid {
		t.Fatal("expected rejection for os.Exit call")
	}
}

func TestVerifyRunnerExecutesCleanCode(t *testing.T) {
	v := NewVerifyRunner()
	out, err := v.Verify(context.Background(), validSkillCode, "hello")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out != "HELLO" {
		t.Fatalf("expected HELLO, got %q", out)
	}
}

func TestVerifyRunnerRejectsForbiddenImport(t *testing.T) {
	v := NewVerifyRunner()
	if _, err := v.Verify(context.Background(), dangerousSkillCode, "x"); err == nil {
		t.Fatal("expected forbidden-import error")
	}
}

func testRegistry(t *testing.T) *manifest.Registry {
	return manifest.NewRegistry()
}

func TestForgeApplyAcceptsCleanPatch(t *testing.T) {
	f := NewForge(testStore(t), testRegistry(t), []string{"evolution", "orchestrator"}, "shadow-key")
	_, err := f.Apply(context.Background(), Proposal{SkillID: "greeter", Code: validSkillCode, SampleInput: "hi", Reason: "initial version"}, false, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestForgeApplyRejectsProtectedWithoutForce(t *testing.T) {
	f := NewForge(testStore(t), testRegistry(t), []string{"evolution"}, "shadow-key")
	_, err := f.Apply(context.Background(), Proposal{SkillID: "evolution", Code: validSkillCode}, false, "")
	if err != ErrProtected {
		t.Fatalf("expected ErrProtected, got %v", err)
	}
}

func TestForgeApplyAllowsProtectedWithMatchingSovereignKey(t *testing.T) {
	f := NewForge(testStore(t), testRegistry(t), []string{"evolution"}, "shadow-key")
	_, err := f.Apply(context.Background(), Proposal{SkillID: "evolution", Code: validSkillCode}, true, "shadow-key")
	if err != nil {
		t.Fatalf("Apply with matching key: %v", err)
	}
}

func TestForgeApplyRejectsWrongSovereignKey(t *testing.T) {
	f := NewForge(testStore(t), testRegistry(t), []string{"evolution"}, "shadow-key")
	_, err := f.Apply(context.Background(), Proposal{SkillID: "evolution", Code: validSkillCode}, true, "wrong-key")
	if err != ErrProtected {
		t.Fatalf("expected ErrProtected for wrong key, got %v", err)
	}
}

func TestForgeApplyRecordsDeadEndOnRedTeamFailure(t *testing.T) {
	f := NewForge(testStore(t), testRegistry(t), nil, "")
	_, err := f.Apply(context.Background(), Proposal{SkillID: "bad_skill", Code: dangerousSkillCode}, false, "")
	if err == nil {
		t.Fatal("expected red team rejection")
	}
	// Re-proposing the identical body must short-circuit via the dead-end index.
	_, err2 := f.Apply(context.Background(), Proposal{SkillID: "bad_skill", Code: dangerousSkillCode}, false, "")
	if err2 == nil {
		t.Fatal("expected dead-end rejection on resubmission")
	}
}

func TestForgeRollbackReactivatesPreviousVersion(t *testing.T) {
	f := NewForge(testStore(t), testRegistry(t), nil, "")
	ctx := context.Background()

	if _, err := f.Apply(ctx, Proposal{SkillID: "greeter", Code: validSkillCode, Reason: "v1"}, false, ""); err != nil {
		t.Fatalf("apply v1: %v", err)
	}

	v2 := `
package main

import "strings"

func RunSkill(input string) (string, error) {
	return strings.ToLower(input), nil
}
`
	if _, err := f.Apply(ctx, Proposal{SkillID: "greeter", Code: v2, Reason: "v2"}, false, ""); err != nil {
		t.Fatalf("apply v2: %v", err)
	}

	rolledBackTo, err := f.Rollback("greeter")
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rolledBackTo.Reason != "v1" {
		t.Fatalf("expected rollback to v1, got %+v", rolledBackTo)
	}
}

func TestForgeRollbackFailsWithoutPriorVersion(t *testing.T) {
	f := NewForge(testStore(t), testRegistry(t), nil, "")
	if _, err := f.Rollback("never_applied"); err == nil {
		t.Fatal("expected error rolling back a skill with no history")
	}
}
