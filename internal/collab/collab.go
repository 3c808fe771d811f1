// Package collab defines the wire contracts the kernel consumes from its
// external collaborators (LLM text generation, skill compilation, human
// approval, credential resolution) and RunConsensus, the five-phase
// propose/red-team/gate/approve/apply pipeline that wires them together
// around the evolution pipeline's storage primitives. Rollback is not part
// of this package; it is evolution.Forge.Rollback.
package collab

import (
	"context"
	"fmt"
	"time"

	"pagi/internal/evolution"
	"pagi/internal/logging"
	"pagi/internal/store"
)

var log = logging.Get(logging.CategoryCollab)

// LLMGenerator is the kernel's only path to natural-language generation;
// implementations must not retry internally, since the kernel treats a
// failure as a hard stop for that turn.
type LLMGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Builder compiles a proposed skill change in place; Build must block
// until the result is known and return a non-nil error on any failure.
type Builder interface {
	Build(ctx context.Context, path string) error
}

// ApprovalBridge surfaces a pending change to a human operator, synchronously
// or via a queued UI confirmation, and reports whether they approved it.
type ApprovalBridge interface {
	RequestApproval(ctx context.Context, change ProposedChange) (bool, error)
}

// KeyStore resolves credentials by name, falling back to the environment
// when a key is not present.
type KeyStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Severity is the Red-Team reviewer's verdict bucket.
type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

// ProposedChange is Phase 1's input: a caller-submitted candidate patch.
type ProposedChange struct {
	SkillID     string
	FilePath    string
	Rationale   string
	UnifiedDiff string
	Severity    Severity
	Code        string
	SampleInput string
}

// SecurityFinding is a single Red-Team observation.
type SecurityFinding struct {
	Category    string
	Severity    Severity
	Description string
	Remediation string
}

// SecurityVerdict is Phase 2's output.
type SecurityVerdict struct {
	OverallSeverity Severity
	Passed          bool
	Findings        []SecurityFinding
	ReviewerModel   string
	Summary         string
	MemoryWarning   string
}

// ConsensusResult is RunConsensus's final outcome.
type ConsensusResult struct {
	Approved bool
	Verdict  SecurityVerdict
	Reason   string
	Version  store.VersionedPatch
}

// Runner wires an LLM reviewer, a Builder, and an ApprovalBridge around the
// evolution pipeline's dead-end index and version store to implement
// phases 1-5 of the consensus flow. Any of llm/builder/approval may be nil:
// a nil llm falls back to the deterministic heuristic reviewer, a nil
// builder skips the compile-verification phase, and a nil approval bridge
// is only safe when approvalRequired is false.
type Runner struct {
	st              *store.Store
	llm             LLMGenerator
	builder         Builder
	approval        ApprovalBridge
	approvalRequired bool
}

func NewRunner(st *store.Store, llm LLMGenerator, builder Builder, approval ApprovalBridge, approvalRequired bool) *Runner {
	return &Runner{st: st, llm: llm, builder: builder, approval: approval, approvalRequired: approvalRequired}
}

// RunConsensus executes Phases 1-5 of the evolution pipeline against change.
func (r *Runner) RunConsensus(ctx context.Context, change ProposedChange) (ConsensusResult, error) {
	nowMs := time.Now().UnixMilli()
	hash := evolution.CodeHash(change.Code)

	// Phase 1 — propose / dead-end check.
	if entry, found, err := r.st.CheckDeadEnd(hash); err != nil {
		return ConsensusResult{}, fmt.Errorf("check dead end: %w", err)
	} else if found {
		return ConsensusResult{Approved: false, Reason: "Known Evolutionary Dead-End: " + entry.Reason}, nil
	}

	// Phase 2 — red-team review.
	verdict := r.review(ctx, change)

	// Phase 3 — consensus gate.
	if !verdict.Passed || verdict.OverallSeverity == SeverityCritical {
		reason := "rejected by red team"
		if verdict.OverallSeverity == SeverityCritical {
			reason = "Lethal Mutation"
		} else if len(verdict.Findings) > 0 {
			reason = verdict.Findings[0].Description
		}
		if recErr := r.st.RecordDeadEnd(store.DeadEndEntry{CodeHash: hash, Reason: reason, TimestampMs: nowMs}); recErr != nil {
			log.Errorf("failed to record dead end for %s: %v", change.SkillID, recErr)
		}
		return ConsensusResult{Approved: false, Verdict: verdict, Reason: reason}, nil
	}

	// Phase 4 — human approval.
	if r.approvalRequired {
		if r.approval == nil {
			return ConsensusResult{}, fmt.Errorf("approval required but no ApprovalBridge configured")
		}
		ok, err := r.approval.RequestApproval(ctx, change)
		if err != nil {
			return ConsensusResult{}, fmt.Errorf("request approval: %w", err)
		}
		if !ok {
			if recErr := store.InsertJSON(r.st, store.SlotSoma, fmt.Sprintf("forge_approval/%s/%020d", change.SkillID, nowMs), map[string]interface{}{
				"skill_id": change.SkillID, "approved": false, "timestamp_ms": nowMs,
			}); recErr != nil {
				log.Errorf("failed to record forge_approval event for %s: %v", change.SkillID, recErr)
			}
			return ConsensusResult{Approved: false, Verdict: verdict, Reason: "denied by human operator"}, nil
		}
	}

	// Phase 5 — apply & verify.
	if r.builder != nil {
		if err := r.builder.Build(ctx, change.FilePath); err != nil {
			if recErr := r.st.RecordDeadEnd(store.DeadEndEntry{CodeHash: hash, Reason: "CheckFailedRollback: " + err.Error(), TimestampMs: nowMs}); recErr != nil {
				log.Errorf("failed to record dead end for %s: %v", change.SkillID, recErr)
			}
			return ConsensusResult{Approved: false, Verdict: verdict, Reason: "build failed, rolled back: " + err.Error()}, nil
		}
	}

	version := store.VersionedPatch{
		Skill:       change.SkillID,
		TimestampMs: nowMs,
		Code:        change.Code,
		Status:      "applied",
		IsActive:    true,
		Reason:      change.Rationale,
	}
	if err := deactivatePriorVersions(r.st, change.SkillID); err != nil {
		return ConsensusResult{}, fmt.Errorf("deactivate prior versions: %w", err)
	}
	if err := r.st.PutVersion(version); err != nil {
		return ConsensusResult{}, fmt.Errorf("store version: %w", err)
	}
	log.Infof("promotion: skill %s at %d (hash %s)", change.SkillID, nowMs, hash[:12])

	return ConsensusResult{Approved: true, Verdict: verdict, Version: version}, nil
}

// review runs Phase 2: an LLM-backed reviewer when configured, falling back
// to the deterministic heuristic pass on any LLM failure or absence.
func (r *Runner) review(ctx context.Context, change ProposedChange) SecurityVerdict {
	if r.llm != nil {
		if verdict, ok := r.llmReview(ctx, change); ok {
			return verdict
		}
	}
	return heuristicReview(change)
}

func (r *Runner) llmReview(ctx context.Context, change ProposedChange) (SecurityVerdict, bool) {
	prompt := fmt.Sprintf(
		"Review this proposed skill patch for security issues. Skill: %s\nDiff:\n%s\nCode:\n%s\n"+
			"Respond with one line: PASS or FAIL, followed by a one-sentence reason.",
		change.SkillID, change.UnifiedDiff, change.Code,
	)
	out, err := r.llm.Generate(ctx, prompt)
	if err != nil {
		log.Warnf("LLM red team review failed, falling back to heuristic: %v", err)
		return SecurityVerdict{}, false
	}
	passed := len(out) >= 4 && out[:4] == "PASS"
	severity := SeverityInfo
	if !passed {
		severity = SeverityWarning
	}
	return SecurityVerdict{
		OverallSeverity: severity,
		Passed:          passed,
		ReviewerModel:   "llm",
		Summary:         out,
	}, true
}

// heuristicReview is the deterministic fallback: it flags unredacted
// secret patterns, path traversal, and unchecked shell invocations, layered
// on top of the evolution pipeline's AST red team. It does not check
// whether change.SkillID is a protected skill; the Runner has no protected
// list, and only evolution.Forge enforces one.
func heuristicReview(change ProposedChange) SecurityVerdict {
	astResult := evolution.RedTeamReview(change.Code)

	var findings []SecurityFinding
	overall := SeverityInfo

	for _, e := range astResult.Errors {
		findings = append(findings, SecurityFinding{
			Category: "static-analysis", Severity: SeverityCritical,
			Description: e, Remediation: "remove the offending construct",
		})
		overall = SeverityCritical
	}
	for _, w := range astResult.Warnings {
		findings = append(findings, SecurityFinding{
			Category: "static-analysis", Severity: SeverityWarning,
			Description: w, Remediation: "review before promoting",
		})
		if overall != SeverityCritical {
			overall = SeverityWarning
		}
	}

	if containsSecretPattern(change.Code) {
		findings = append(findings, SecurityFinding{
			Category: "secret-exposure", Severity: SeverityCritical,
			Description: "code contains what looks like an unredacted secret", Remediation: "use KeyStore instead of inline credentials",
		})
		overall = SeverityCritical
	}
	if containsPathTraversal(change.UnifiedDiff) || containsPathTraversal(change.Code) {
		findings = append(findings, SecurityFinding{
			Category: "path-traversal", Severity: SeverityCritical,
			Description: "diff or code references a parent-directory path traversal", Remediation: "constrain file access to the skill's own directory",
		})
		overall = SeverityCritical
	}
	if containsUncheckedShell(change.Code) {
		findings = append(findings, SecurityFinding{
			Category: "shell-invocation", Severity: SeverityCritical,
			Description: "code invokes a shell without an allow-list", Remediation: "remove shell invocation or route through a validated command table",
		})
		overall = SeverityCritical
	}

	return SecurityVerdict{
		OverallSeverity: overall,
		Passed:          overall != SeverityCritical,
		Findings:        findings,
		ReviewerModel:   "heuristic",
		Summary:         fmt.Sprintf("%d findings, overall %s", len(findings), overall),
	}
}

func deactivatePriorVersions(st *store.Store, skill string) error {
	versions, err := st.ListVersions(skill)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v.IsActive {
			v.IsActive = false
			v.Status = "superseded"
			if err := st.PutVersion(v); err != nil {
				return err
			}
		}
	}
	return nil
}
