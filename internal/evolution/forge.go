package evolution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"pagi/internal/logging"
	"pagi/internal/manifest"
	"pagi/internal/store"
)

var log = logging.Get(logging.CategoryEvolution)

// ErrProtected is returned when a patch targets a protected skill without
// a matching Sovereign-Key override.
var ErrProtected = fmt.Errorf("protected skill: use Force with a matching Sovereign-Key")

// ErrDeadEnd is returned when a proposed patch body has already been
// rejected and recorded in the dead-end index.
var ErrDeadEnd = fmt.Errorf("patch matches a known dead end")

// ErrRedTeamFailed is returned when the static AST pass rejects a patch.
type ErrRedTeamFailed struct{ Result RedTeamResult }

func (e ErrRedTeamFailed) Error() string {
	return fmt.Sprintf("red team rejected patch: %v", e.Result.Errors)
}

// Forge is the evolution pipeline's full adapter lifecycle authority:
// propose, red-team, verify, apply, or roll back — protected skills
// (orchestrator, evolution, gateway, manifest) require a Sovereign-Key
// to touch at all.
type Forge struct {
	st              *store.Store
	registry        *manifest.Registry
	verifier        *VerifyRunner
	protectedSkills map[string]bool
	sovereignKey    string
}

func NewForge(st *store.Store, registry *manifest.Registry, protectedSkills []string, sovereignKey string) *Forge {
	protected := make(map[string]bool, len(protectedSkills))
	for _, s := range protectedSkills {
		protected[s] = true
	}
	return &Forge{
		st:              st,
		registry:        registry,
		verifier:        NewVerifyRunner(),
		protectedSkills: protected,
		sovereignKey:    sovereignKey,
	}
}

func (f *Forge) IsProtected(skillID string) bool { return f.protectedSkills[skillID] }

func (f *Forge) allowForce(key string) bool {
	return f.sovereignKey != "" && key == f.sovereignKey
}

// Proposal is a candidate patch body awaiting review.
type Proposal struct {
	SkillID     string
	Code        string
	SampleInput string
	Reason      string
}

// CodeHash fingerprints a patch body for the dead-end index: two proposals
// with identical bodies hash identically regardless of SkillID/Reason.
// Whitespace runs are collapsed to a single space before hashing, so
// reformatting a body does not change its hash.
func CodeHash(code string) string {
	normalized := strings.Join(strings.Fields(code), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Apply runs the full propose -> dead-end check -> red-team -> verify ->
// write sequence for a non-protected skill. force/sovereignKey only
// matter when SkillID is protected.
func (f *Forge) Apply(ctx context.Context, p Proposal, force bool, sovereignKey string) (RedTeamResult, error) {
	nowMs := time.Now().UnixMilli()

	if f.IsProtected(p.SkillID) && !(force && f.allowForce(sovereignKey)) {
		return RedTeamResult{}, ErrProtected
	}

	hash := CodeHash(p.Code)
	if entry, found, err := f.st.CheckDeadEnd(hash); err != nil {
		return RedTeamResult{}, fmt.Errorf("check dead end: %w", err)
	} else if found {
		return RedTeamResult{}, fmt.Errorf("%w: %s", ErrDeadEnd, entry.Reason)
	}

	review := RedTeamReview(p.Code)
	if !review.Valid {
		if err := f.st.RecordDeadEnd(store.DeadEndEntry{CodeHash: hash, Reason: fmt.Sprintf("red team: %v", review.Errors), TimestampMs: nowMs}); err != nil {
			log.Errorf("failed to record dead end for %s: %v", p.SkillID, err)
		}
		return review, ErrRedTeamFailed{Result: review}
	}

	if _, err := f.verifier.Verify(ctx, p.Code, p.SampleInput); err != nil {
		if recErr := f.st.RecordDeadEnd(store.DeadEndEntry{CodeHash: hash, Reason: "verify failed: " + err.Error(), TimestampMs: nowMs}); recErr != nil {
			log.Errorf("failed to record dead end for %s: %v", p.SkillID, recErr)
		}
		return review, fmt.Errorf("verify failed, not applied: %w", err)
	}

	version := store.VersionedPatch{
		Skill:       p.SkillID,
		TimestampMs: nowMs,
		Code:        p.Code,
		Status:      "applied",
		IsActive:    true,
		Reason:      p.Reason,
	}
	if err := f.deactivatePriorVersions(p.SkillID); err != nil {
		return review, fmt.Errorf("deactivate prior versions: %w", err)
	}
	if err := f.st.PutVersion(version); err != nil {
		return review, fmt.Errorf("store version: %w", err)
	}

	log.Infof("applied patch to skill %s (hash %s)", p.SkillID, hash[:12])
	return review, nil
}

// Rollback reactivates the most recent prior version of skillID, marking
// the currently active version as rolled back.
func (f *Forge) Rollback(skillID string) (store.VersionedPatch, error) {
	versions, err := f.st.ListVersions(skillID)
	if err != nil {
		return store.VersionedPatch{}, fmt.Errorf("list versions: %w", err)
	}
	if len(versions) < 2 {
		return store.VersionedPatch{}, fmt.Errorf("no prior version of %s to roll back to", skillID)
	}

	// ListVersions is ordered ascending by timestamp key; the active one
	// is the newest, the rollback target is the one before it.
	current := versions[len(versions)-1]
	previous := versions[len(versions)-2]

	current.IsActive = false
	current.Status = "rolled_back"
	if err := f.st.PutVersion(current); err != nil {
		return store.VersionedPatch{}, fmt.Errorf("mark current rolled back: %w", err)
	}

	previous.IsActive = true
	previous.Status = "applied"
	previous.TimestampMs = time.Now().UnixMilli()
	if err := f.st.PutVersion(previous); err != nil {
		return store.VersionedPatch{}, fmt.Errorf("reactivate previous version: %w", err)
	}

	log.Infof("rolled back skill %s to version at %d", skillID, previous.TimestampMs)
	return previous, nil
}

func (f *Forge) deactivatePriorVersions(skillID string) error {
	versions, err := f.st.ListVersions(skillID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v.IsActive {
			v.IsActive = false
			v.Status = "superseded"
			if err := f.st.PutVersion(v); err != nil {
				return err
			}
		}
	}
	return nil
}
