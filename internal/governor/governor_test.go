package governor

import "testing"

func restedSoma() SomaState {
	return SomaState{SleepHours: 8, RestingHR: 60, HRV: 50, ReadinessScore: 70}
}

func TestEvaluateRestedSomaIsUngated(t *testing.T) {
	ms := Evaluate(Input{Soma: restedSoma()})
	if ms.GraceMultiplier != 1.0 {
		t.Fatalf("expected default grace multiplier, got %f", ms.GraceMultiplier)
	}
	if ms.HasPhysicalLoadAdjustment {
		t.Fatal("expected no physical-load adjustment for a well-rested reading")
	}
	if ms.BurnoutRisk != 0 {
		t.Fatalf("expected zero burnout risk, got %f", ms.BurnoutRisk)
	}
	if ms.RelationalStress != 0 {
		t.Fatalf("expected zero relational stress with no people or anchors, got %f", ms.RelationalStress)
	}
}

// TestBioGateOverrideFromLowSleepAndReadiness mirrors the original's
// total_context_stress_test_scenario_setup and spec.md's BioGate scenario:
// sleep_hours=4.0, readiness_score=30 must force the Supportive-Tone
// override.
func TestBioGateOverrideFromLowSleepAndReadiness(t *testing.T) {
	ms := Evaluate(Input{Soma: SomaState{SleepHours: 4.0, ReadinessScore: 30}})
	if ms.GraceMultiplier != graceMultiplierOverride {
		t.Fatalf("expected grace multiplier %.1f, got %f", graceMultiplierOverride, ms.GraceMultiplier)
	}
	if !ms.HasPhysicalLoadAdjustment {
		t.Fatal("expected physical-load adjustment to fire")
	}
	if ms.BurnoutRisk < 0.15 {
		t.Fatalf("expected elevated burnout risk, got %f", ms.BurnoutRisk)
	}
}

func TestBioGateOverrideFromHighIntensityAnchor(t *testing.T) {
	ms := Evaluate(Input{
		Soma:          restedSoma(),
		ActiveAnchors: []Anchor{{AnchorType: "grief", Intensity: 0.85}},
	})
	if ms.GraceMultiplier != graceMultiplierOverride {
		t.Fatalf("expected a high-intensity anchor to trigger the override, got %f", ms.GraceMultiplier)
	}
	if !ms.HasPhysicalLoadAdjustment {
		t.Fatal("expected physical-load adjustment to fire from the anchor")
	}
}

func TestBurnoutRiskMonotonicAsSleepDrops(t *testing.T) {
	high := Evaluate(Input{Soma: SomaState{SleepHours: 8, ReadinessScore: 70}}).BurnoutRisk
	mid := Evaluate(Input{Soma: SomaState{SleepHours: 6, ReadinessScore: 70}}).BurnoutRisk
	low := Evaluate(Input{Soma: SomaState{SleepHours: 3, ReadinessScore: 70}}).BurnoutRisk
	if !(high <= mid && mid <= low) {
		t.Fatalf("expected burnout risk to never decrease as sleep drops, got high=%f mid=%f low=%f", high, mid, low)
	}
	if high == low {
		t.Fatal("expected a meaningfully different burnout risk between well-rested and sleep-deprived readings")
	}
}

func TestGraceMultiplierMonotonicAsAnchorIntensityRises(t *testing.T) {
	low := Evaluate(Input{Soma: restedSoma(), ActiveAnchors: []Anchor{{AnchorType: "conflict", Intensity: 0.4}}}).GraceMultiplier
	mid := Evaluate(Input{Soma: restedSoma(), ActiveAnchors: []Anchor{{AnchorType: "conflict", Intensity: 0.79}}}).GraceMultiplier
	high := Evaluate(Input{Soma: restedSoma(), ActiveAnchors: []Anchor{{AnchorType: "conflict", Intensity: 0.8}}}).GraceMultiplier
	if !(low <= mid && mid <= high) {
		t.Fatalf("expected grace multiplier to never decrease as anchor intensity rises, got low=%f mid=%f high=%f", low, mid, high)
	}
}

func TestRelationalStressSumsTrustAttachmentAndAnchors(t *testing.T) {
	ms := Evaluate(Input{
		Soma:          restedSoma(),
		ActiveAnchors: []Anchor{{AnchorType: "conflict", Intensity: 0.4}},
		People:        []Relationship{{TrustScore: 0.1, AttachmentStyle: "disorganized"}},
	})
	// lowTrustWeight(0.1)=0.4 + attachmentPenalty(disorganized)=0.5 + anchor 0.4 = 1.3, clamped to 1.0.
	if ms.RelationalStress != 1.0 {
		t.Fatalf("expected relational stress clamped to 1.0, got %f", ms.RelationalStress)
	}
}

func TestAdviseAnchorWinsOverPhysicalLoadText(t *testing.T) {
	ms := MentalState{HasPhysicalLoadAdjustment: true}
	eff := Advise(ms, []Anchor{{AnchorType: "high_stress", Intensity: 0.9}})
	if eff.DirectiveText == "" {
		t.Fatal("expected an anchor directive")
	}
	if eff.DirectiveText == "Physical load is elevated (low sleep/readiness); lead with a supportive, low-pressure tone." {
		t.Fatal("expected the anchor's directive text to win over the physical-load text")
	}
	if !eff.HasTemperatureOverride {
		t.Fatal("expected the physical-load temperature override to still apply")
	}
}

func TestAdviseNoAnchorsNoLoadIsNeutral(t *testing.T) {
	eff := Advise(MentalState{}, nil)
	if eff.LoadMultiplier != 1.0 {
		t.Fatalf("expected neutral load multiplier, got %f", eff.LoadMultiplier)
	}
	if eff.DirectiveText != "" {
		t.Fatalf("expected no directive, got %q", eff.DirectiveText)
	}
}

func TestAdviseLoadMultiplierIsCapped(t *testing.T) {
	eff := Advise(MentalState{RelationalStress: 1.0, BurnoutRisk: 1.0}, nil)
	if eff.LoadMultiplier > 3.0 {
		t.Fatalf("expected multiplier capped at 3.0, got %f", eff.LoadMultiplier)
	}
}
