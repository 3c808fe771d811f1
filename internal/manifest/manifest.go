// Package manifest implements the three-tier Skill Manifest Registry and
// its sovereignty firewall: only Core (Tier 1) skills may ever touch KB-01
// (mental state) or KB-09 (Shadow), and in strict mode only Core may touch
// any KB layer at all.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"pagi/internal/logging"
)

// Tier is the trust level of a loaded skill.
type Tier string

const (
	TierCore      Tier = "core"      // human-authored, local; may access KB-01/KB-09
	TierImport    Tier = "import"    // community patterns, quarantined
	TierGenerated Tier = "generated" // orchestrator-generated, ephemeral
)

func tierFromString(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "core":
		return TierCore
	case "generated":
		return TierGenerated
	default:
		return TierImport
	}
}

// Entry is a single skill's manifest record: which tier it loaded from and
// which KB layers (1-9) it may touch.
type Entry struct {
	SkillID         string `yaml:"skill_id"`
	Tier            Tier   `yaml:"-"`
	KBLayersAllowed []int  `yaml:"kb_layers_allowed"`
	Description     string `yaml:"description,omitempty"`
}

// tierManifest is the on-disk shape of core.yaml/import.yaml/ephemeral.yaml.
type tierManifest struct {
	TrustTier   string  `yaml:"trust_tier"`
	Skills      []Entry `yaml:"skills"`
	Description string  `yaml:"description,omitempty"`
}

var log = logging.Get(logging.CategoryManifest)

// Registry is the in-memory skill manifest, loaded once at startup.
type Registry struct {
	mu    sync.RWMutex
	index map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]Entry)}
}

// LoadFromDir loads core.yaml, import.yaml, and ephemeral.yaml from root,
// skipping any that don't exist — an empty registry denies everything by
// default, which is the safe failure mode for a missing manifest.
func LoadFromDir(root string) (*Registry, error) {
	r := NewRegistry()
	files := []struct {
		name string
		tier Tier
	}{
		{"core.yaml", TierCore},
		{"import.yaml", TierImport},
		{"ephemeral.yaml", TierGenerated},
	}
	for _, f := range files {
		path := filepath.Join(root, f.name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var tm tierManifest
		if err := yaml.Unmarshal(data, &tm); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		tier := f.tier
		if tm.TrustTier != "" {
			tier = tierFromString(tm.TrustTier)
		}
		for _, e := range tm.Skills {
			e.Tier = tier
			r.index[e.SkillID] = e
		}
	}
	log.Infof("manifest loaded: %d skills across 3 tiers", len(r.index))
	return r, nil
}

// Allows reports whether skillID may access kbLayer (1-9). strict, when
// true, restricts ALL KB access to Core skills; otherwise only KB-01 and
// KB-09 are Core-only.
func (r *Registry) Allows(skillID string, kbLayer int, strict bool) bool {
	if kbLayer < 1 || kbLayer > 9 {
		return false
	}
	r.mu.RLock()
	entry, ok := r.index[skillID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if !containsInt(entry.KBLayersAllowed, kbLayer) {
		return false
	}
	if strict {
		return entry.Tier == TierCore
	}
	if kbLayer == 1 || kbLayer == 9 {
		return entry.Tier == TierCore
	}
	return true
}

// Get returns the manifest entry for skillID, if registered.
func (r *Registry) Get(skillID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.index[skillID]
	return e, ok
}

// List returns every registered skill, for the CLI/API inventory view.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.index))
	for _, e := range r.index {
		out = append(out, e)
	}
	return out
}

// PromoteToCore moves a Generated-tier skill into Core. Returns false if
// the skill is unregistered or not currently Generated — only the
// evolution pipeline's human-approval path should call this.
func (r *Registry) PromoteToCore(skillID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.index[skillID]
	if !ok || e.Tier != TierGenerated {
		return false
	}
	e.Tier = TierCore
	r.index[skillID] = e
	return true
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Violation is raised when a skill attempts to access a KB layer it is not
// allowed to touch; the runtime logs this as "Failed Leak Attempt".
type Violation struct {
	SkillID string
	KBLayer int
}

func (v Violation) Error() string {
	return fmt.Sprintf("sovereignty violation: skill %q is not allowed to access KB-%d", v.SkillID, v.KBLayer)
}
