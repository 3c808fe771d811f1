// Package governor implements the Mental State Governor: a pure function
// that fuses the latest Soma biometrics, active Shadow-vault anchors, and
// Kardia relationship data into a single MentalState, plus a secondary
// pure function that turns a MentalState into the per-turn advisory the
// orchestrator renders into its system-prompt overlay. No I/O, no logging,
// no side effects — every call with the same inputs returns the same
// output.
package governor

import "strings"

// SomaState mirrors store.SomaState; kept as its own type here so this
// package stays free of store imports, the same reasoning the teacher
// applies to every pure-function package's Input/Output types.
type SomaState struct {
	SleepHours     float32
	RestingHR      float32
	HRV            float32
	ReadinessScore float32
}

// Anchor is an active EmotionalAnchor from Slot 9. Callers are expected to
// have already filtered to active anchors (ListActiveShadowAnchors does
// this) — the governor treats every Anchor it's given as live.
type Anchor struct {
	AnchorType string
	Intensity  float32
	Label      string
	Note       string
}

// Relationship is a KB-07 person's trust/attachment data.
type Relationship struct {
	TrustScore      float32
	AttachmentStyle string // secure|anxious|avoidant|disorganized
}

// Input bundles everything the governor needs; callers gather it from the
// store ahead of time so this package stays free of store imports.
type Input struct {
	Soma          SomaState
	ActiveAnchors []Anchor
	People        []Relationship
}

// MentalState is the governor's pure, derived output (§3).
type MentalState struct {
	RelationalStress          float32
	BurnoutRisk               float32
	GraceMultiplier           float32
	HasPhysicalLoadAdjustment bool
}

// graceMultiplierOverride is the Supportive-Tone/BioGate override value;
// 1.0 is the ungated default.
const graceMultiplierOverride = 1.6

// Evaluate is the governor's single pure entry point: given the latest
// SomaState, active Shadow anchors, and mentioned Kardia people, it
// produces the fused MentalState (§4.3).
func Evaluate(in Input) MentalState {
	var stress float32
	highIntensityAnchor := false
	for _, p := range in.People {
		stress += lowTrustWeight(p.TrustScore) + attachmentPenalty(p.AttachmentStyle)
	}
	for _, a := range in.ActiveAnchors {
		stress += a.Intensity
		if a.Intensity >= 0.8 {
			highIntensityAnchor = true
		}
	}

	grace := float32(1.0)
	physicalLoad := false
	if in.Soma.ReadinessScore < 40 || in.Soma.SleepHours < 5 || highIntensityAnchor {
		grace = graceMultiplierOverride
		physicalLoad = true
	}

	return MentalState{
		RelationalStress:          clamp01(stress),
		BurnoutRisk:               burnoutRisk(in.Soma.SleepHours, in.Soma.ReadinessScore),
		GraceMultiplier:           grace,
		HasPhysicalLoadAdjustment: physicalLoad,
	}
}

// burnoutRisk grows monotonically as sleep_hours drops below 7 and
// readiness_score drops below 50, capped at 1.0 (§4.3). Both deficits
// accumulate independently so a bad-sleep, low-readiness night compounds
// rather than picking the worse of the two.
func burnoutRisk(sleepHours, readinessScore float32) float32 {
	var risk float32
	if sleepHours < 7 {
		risk += (7 - sleepHours) * 0.15
	}
	if readinessScore < 50 {
		risk += (50 - readinessScore) * 0.02
	}
	return clamp01(risk)
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// EffectiveState is the per-turn advisory the orchestrator renders into a
// turn's system-prompt overlay: directive text plus tone/temperature/
// verbosity adjustments derived from a MentalState and the same
// active-anchor list that fed it.
type EffectiveState struct {
	DirectiveText          string
	TemperatureOverride    float32
	HasTemperatureOverride bool
	VerbosityOverride      string
	LoadMultiplier         float32 // >1.0 increases perceived cognitive load
}

// Advise turns a derived MentalState plus its active anchors into the
// orchestrator's per-turn directive. Ties: when both the Physical-Load
// grace override and a High-Anchor directive fire, Anchor wins the text
// (§4.3); the load multiplier is set once from MentalState and never
// stacked further.
func Advise(ms MentalState, anchors []Anchor) EffectiveState {
	state := EffectiveState{LoadMultiplier: 1.0 + ms.RelationalStress + ms.BurnoutRisk}
	if state.LoadMultiplier > 3.0 {
		state.LoadMultiplier = 3.0
	}

	var strongest *Anchor
	for i := range anchors {
		a := &anchors[i]
		if strongest == nil || a.Intensity > strongest.Intensity {
			strongest = a
		}
	}

	switch {
	case strongest != nil && strongest.Intensity >= 0.6:
		state.DirectiveText = anchorDirective(*strongest)
	case ms.HasPhysicalLoadAdjustment:
		state.DirectiveText = "Physical load is elevated (low sleep/readiness); lead with a supportive, low-pressure tone."
		state.VerbosityOverride = "supportive"
	}

	if ms.HasPhysicalLoadAdjustment {
		state.TemperatureOverride = 0.5
		state.HasTemperatureOverride = true
	}

	return state
}

func anchorDirective(a Anchor) string {
	switch a.AnchorType {
	case "high_stress", "burnout":
		return "Lead with brevity and a single next action; the user is under load."
	case "grief":
		return "Hold space before problem-solving; do not rush to fix."
	case "conflict":
		return "Stay neutral and factual; avoid taking a side in described conflicts."
	default:
		if a.Note != "" {
			return "Respond with care: " + a.Note
		}
		return "Respond with heightened care for " + a.Label
	}
}

// lowTrustWeight penalizes load for relationships the user has rated with
// low trust — advice involving them should be handled more cautiously.
func lowTrustWeight(trust float32) float32 {
	switch {
	case trust < 0.3:
		return 0.4
	case trust < 0.6:
		return 0.2
	default:
		return 0.0
	}
}

// attachmentPenalty scores attachment styles by how much caution the
// governor should add; secure relationships add nothing.
func attachmentPenalty(style string) float32 {
	switch strings.ToLower(style) {
	case "disorganized":
		return 0.5
	case "anxious":
		return 0.35
	case "avoidant":
		return 0.3
	case "secure":
		return 0.0
	default:
		return 0.1
	}
}
