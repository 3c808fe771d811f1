package orchestrator

import (
	"fmt"
	"strings"
)

// VitalityLevel summarizes how loaded the sovereign domain is.
type VitalityLevel string

const (
	VitalityStable   VitalityLevel = "stable"
	VitalityDraining VitalityLevel = "draining"
	VitalityCritical VitalityLevel = "critical"
)

// SovereignAttributes is the domain-neutral capacity/load/status triple
// the heuristic processor uses to judge system vitality.
type SovereignAttributes struct {
	Capacity *float64
	Load     *float64
	Status   string
}

// SovereignDomain is the conceptual boundary the processor defends — a
// portable label plus attributes, no hardcoded domain names.
type SovereignDomain struct {
	Attributes SovereignAttributes
	Label      string
}

// ThreatContext is the situational input the heuristic processor judges.
type ThreatContext struct {
	Situation        string
	EmotionalValence string
}

// RoiResult is the calculated return-on-investment for engaging with a
// situation.
type RoiResult struct {
	Score    float64
	IsLowROI bool
	Reason   string
}

// HeuristicResult bundles ROI, threat analysis, and counsel.
type HeuristicResult struct {
	ROI                      RoiResult
	ThreatAnalysis           string
	SovereignOverrideCounsel string
}

// HeuristicProcessor identifies external resource drains and low-ROI
// requests, producing Sovereign Override counsel when warranted.
type HeuristicProcessor struct {
	Domain SovereignDomain
}

func NewHeuristicProcessor(domain SovereignDomain) *HeuristicProcessor {
	return &HeuristicProcessor{Domain: domain}
}

func (h *HeuristicProcessor) Process(ctx ThreatContext) HeuristicResult {
	roi := h.CalculateROI(ctx)
	threat := h.AnalyzeThreat(ctx)
	var counsel string
	if roi.IsLowROI {
		counsel = fmt.Sprintf("Sovereign Override: %s Prioritize system stability over external accommodation.", roi.Reason)
	}
	return HeuristicResult{ROI: roi, ThreatAnalysis: threat, SovereignOverrideCounsel: counsel}
}

func (h *HeuristicProcessor) AnalyzeThreat(ctx ThreatContext) string {
	if ctx.Situation == "" {
		return ""
	}
	s := strings.ToLower(ctx.Situation)
	if strings.Contains(s, "drain") || strings.Contains(s, "demand") || strings.Contains(s, "guilt") || strings.Contains(s, "obligation") {
		return "Potential external resource drain or guilt-driven demand."
	}
	if strings.EqualFold(ctx.EmotionalValence, "guilt") || strings.EqualFold(ctx.EmotionalValence, "grief") {
		return "Emotional state (guilt/grief) may compromise sovereign boundaries."
	}
	return ""
}

func (h *HeuristicProcessor) CalculateROI(ctx ThreatContext) RoiResult {
	s := strings.ToLower(ctx.Situation)
	score := 0.5
	if strings.Contains(s, "reciproc") || strings.Contains(s, "mutual") {
		score += 0.2
	}
	if strings.Contains(s, "one-way") || strings.Contains(s, "again") || strings.Contains(s, "recurring") {
		score -= 0.3
	}
	if strings.EqualFold(ctx.EmotionalValence, "guilt") {
		score -= 0.2
	}
	score = clamp(score, 0.0, 1.0)
	isLow := score < 0.4
	reason := "ROI within acceptable range."
	if isLow {
		reason = "High input, low return for the sovereign system."
	}
	return RoiResult{Score: score, IsLowROI: isLow, Reason: reason}
}

// Heuristic is a named maneuver the processor can be asked to execute.
type Heuristic struct {
	ID string
}

// ManeuverOutcome reports whether a maneuver was applied.
type ManeuverOutcome struct {
	Applied bool
	Message string
}

func (h *HeuristicProcessor) ExecuteManeuver(heuristic Heuristic) ManeuverOutcome {
	switch heuristic.ID {
	case "sovereign_override":
		return ManeuverOutcome{Applied: true, Message: "Sovereign Override counsel applied: protect system stability."}
	case "boundary_hold":
		return ManeuverOutcome{Applied: true, Message: "Boundary hold: no accommodation beyond current limits."}
	default:
		return ManeuverOutcome{Applied: false, Message: fmt.Sprintf("Unknown heuristic: %s", heuristic.ID)}
	}
}

func (h *HeuristicProcessor) EvaluateVitality(attrs SovereignAttributes) (VitalityLevel, bool) {
	if attrs.Status != "" {
		lower := strings.ToLower(attrs.Status)
		switch {
		case strings.Contains(lower, "critical"):
			return VitalityCritical, true
		case strings.Contains(lower, "draining"):
			return VitalityDraining, true
		default:
			return VitalityStable, true
		}
	}
	if attrs.Capacity == nil {
		return "", false
	}
	cap := *attrs.Capacity
	load := 0.0
	if attrs.Load != nil {
		load = *attrs.Load
	}
	if cap <= 0.0 {
		return VitalityStable, true
	}
	ratio := load / cap
	switch {
	case ratio >= 1.0 || ratio > 0.9:
		return VitalityCritical, true
	case ratio > 0.6:
		return VitalityDraining, true
	default:
		return VitalityStable, true
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
