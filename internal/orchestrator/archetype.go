// Package orchestrator composes runtime directives from KB-01 archetype
// data, Social Protocol ranking, and ROI/threat heuristics into the
// system-prompt overlay the kernel injects ahead of every turn.
package orchestrator

import (
	"encoding/json"
	"strings"

	"pagi/internal/store"
)

// SovereigntyLeakTriggersKey is where process_archetype_triggers syncs
// parsed sovereignty-leak keywords for Social Protocol subject ranking.
const SovereigntyLeakTriggersKey = "sovereignty_leak_triggers"

// KB05Slot is the Social Protocols layer these triggers are synced to.
const KB05Slot = store.Slot(5)

// TriggerResult is what processing a KB-01 profile against the
// astro-logic and tone rules produces.
type TriggerResult struct {
	Directive           string
	TemperatureOverride float32
	HasTemperature      bool
	VerbosityOverride   string
}

// ProcessArchetypeTriggers inspects a KB-01 profile map and returns the
// directive/override bundle, writing any sovereignty-leak keywords found
// to KB-05 along the way. Pass astroLogicEnabled=false to short-circuit
// to an empty result, matching the config gate in the original.
func ProcessArchetypeTriggers(st *store.Store, profile map[string]interface{}, astroLogicEnabled bool) TriggerResult {
	var result TriggerResult
	if !astroLogicEnabled || profile == nil {
		return result
	}

	var directiveParts []string

	astro := stringField(profile, "astro_archetype")
	if strings.Contains(strings.ToLower(astro), "pisces") {
		directiveParts = append(directiveParts, "=== ASTRO-LOGIC (KB-01) ===\n"+
			"Monitor for Savior-Complex resource drains. User archetype indicates Pisces; "+
			"prioritize boundary-focused advice and flag situations where over-giving or "+
			"rescuing others may drain the user's sovereignty.")
	}

	tone := stringField(profile, "tone_preference")
	if strings.EqualFold(tone, "Strictly Technical") {
		result.TemperatureOverride = 0.3
		result.HasTemperature = true
		result.VerbosityOverride = "minimal"
		directiveParts = append(directiveParts, "=== TONE (KB-01) ===\n"+
			"User prefers Strictly Technical tone. Be concise, factual, and low-verbosity. "+
			"Avoid therapeutic elaboration unless the user asks for it.")
	}

	if leaks := strings.TrimSpace(stringField(profile, "sovereignty_leaks")); leaks != "" {
		keywords := splitKeywords(leaks)
		if len(keywords) > 0 {
			if st != nil {
				if bytes, err := json.Marshal(keywords); err == nil {
					_ = st.Insert(KB05Slot, SovereigntyLeakTriggersKey, bytes)
				}
			}
			directiveParts = append(directiveParts, "=== SOVEREIGNTY LEAKS (KB-01 -> KB-05) ===\n"+
				"User has specified sovereignty leaks to monitor. When discussing people or "+
				"situations, rank subjects that trigger these leaks higher for Gray Rock / "+
				"boundary protocols. Keywords are synced to KB-05 (Social Protocols).")
		}
	}

	result.Directive = strings.Join(directiveParts, "\n\n")
	return result
}

// GetSovereigntyLeakTriggers reads back the keywords synced to KB-05 by
// ProcessArchetypeTriggers. Returns an empty slice if unset or corrupt.
func GetSovereigntyLeakTriggers(st *store.Store) []string {
	if st == nil {
		return nil
	}
	b, err := st.Get(KB05Slot, SovereigntyLeakTriggersKey)
	if err != nil || len(b) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// ActiveArchetypeLabel derives a short display label like
// "Pisces-Protector · Technical" from a KB-01 profile, or "" if neither
// field is set.
func ActiveArchetypeLabel(profile map[string]interface{}) string {
	if profile == nil {
		return ""
	}
	astro := strings.TrimSpace(stringField(profile, "astro_archetype"))
	tone := strings.TrimSpace(stringField(profile, "tone_preference"))
	if astro == "" && tone == "" {
		return ""
	}

	var part1 string
	switch {
	case strings.Contains(strings.ToLower(astro), "pisces"):
		part1 = "Pisces-Protector"
	case astro != "":
		part1 = strings.TrimSpace(strings.SplitN(astro, ",", 2)[0])
	}

	var part2 string
	switch {
	case strings.EqualFold(tone, "Strictly Technical"):
		part2 = "Technical"
	case strings.EqualFold(tone, "Therapeutic Peer"):
		part2 = "Peer"
	case tone != "":
		part2 = tone
	}

	switch {
	case part1 != "" && part2 != "":
		return part1 + " · " + part2
	case part1 != "":
		return part1
	default:
		return part2
	}
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func splitKeywords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
